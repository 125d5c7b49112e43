package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(seconds int64) time.Time {
	return time.Unix(seconds, 0).UTC()
}

func localItem(name string, modified int64) LocalItem {
	return NewLocalItem(name, "file://"+name, 10, "text/plain", at(modified), at(modified))
}

func cloudItem(name string, modified int64, opts ...func(*CloudItem)) CloudItem {
	c := NewCloudItem(name, "cloud://"+name, 10, "text/plain", at(modified), at(modified))
	c.IsDownloaded = true
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func trashed() func(*CloudItem) {
	return func(c *CloudItem) { c.IsInTrash = true }
}

func notDownloaded() func(*CloudItem) {
	return func(c *CloudItem) { c.IsDownloaded = false }
}

func unresolvedConflict() func(*CloudItem) {
	return func(c *CloudItem) { c.HasUnresolvedConflicts = true }
}

func keyed(items ...CloudItem) CloudSet {
	set := make(CloudSet, len(items))
	for i, it := range items {
		key := it.Name
		if it.IsInTrash {
			key = ".Trash/" + it.Name
		}
		// guard against accidental key collisions in test fixtures
		if _, exists := set[key]; exists {
			key = key + string(rune('a'+i))
		}
		set[key] = it
	}
	return set
}

func localKeyed(items ...LocalItem) LocalSet {
	set := make(LocalSet, len(items))
	for _, it := range items {
		set[it.Name] = it
	}
	return set
}

// Scenario 1: both empty at first sync.
func TestScenario_BothEmptyAtFirstSync(t *testing.T) {
	r := New(true)
	out1 := r.Resolve(DidFinishGatheringCloud{Set: CloudSet{}})
	assert.Nil(t, out1)

	out2 := r.Resolve(DidFinishGatheringLocal{Set: LocalSet{}})
	require.Len(t, out2, 1)
	assert.IsType(t, DidFinishInitialSync{}, out2[0])
}

// Scenario 2: local-only population.
func TestScenario_LocalOnlyPopulation(t *testing.T) {
	r := New(true)
	r.Resolve(DidFinishGatheringCloud{Set: CloudSet{}})
	out := r.Resolve(DidFinishGatheringLocal{Set: localKeyed(
		localItem("a", 1), localItem("b", 2), localItem("c", 3),
	)})

	var creates []string
	var sawFinish bool
	for _, e := range out {
		switch ev := e.(type) {
		case CreateCloud:
			creates = append(creates, ev.Item.Name)
		case DidFinishInitialSync:
			sawFinish = true
		default:
			t.Fatalf("unexpected event %T", e)
		}
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, creates)
	assert.True(t, sawFinish)
}

// Scenario 3: cloud-only, all trashed.
func TestScenario_CloudOnlyAllTrashed(t *testing.T) {
	r := New(true)
	r.Resolve(DidFinishGatheringLocal{Set: LocalSet{}})
	out := r.Resolve(DidFinishGatheringCloud{Set: keyed(
		cloudItem("a", 1, trashed()), cloudItem("b", 2, trashed()), cloudItem("c", 3, trashed()),
	)})

	require.Len(t, out, 1)
	assert.IsType(t, DidFinishInitialSync{}, out[0])
}

// Scenario 4: mixed newer-each-side.
func TestScenario_MixedNewerEachSide(t *testing.T) {
	r := New(false)
	r.Resolve(DidFinishGatheringLocal{Set: localKeyed(
		localItem("f1", 1), localItem("f2", 3), localItem("f3", 3), localItem("f4", 1),
	)})
	out := r.Resolve(DidFinishGatheringCloud{Set: keyed(
		cloudItem("f1", 4), cloudItem("f2", 2), cloudItem("f3", 7, trashed()),
	)})

	var updateLocal, removeLocal, createCloud, updateCloud []string
	for _, e := range out {
		switch ev := e.(type) {
		case UpdateLocal:
			updateLocal = append(updateLocal, ev.Item.Name)
		case RemoveLocal:
			removeLocal = append(removeLocal, ev.Item.Name)
		case CreateCloud:
			createCloud = append(createCloud, ev.Item.Name)
		case UpdateCloud:
			updateCloud = append(updateCloud, ev.Item.Name)
		default:
			t.Fatalf("unexpected event %T", e)
		}
	}
	assert.ElementsMatch(t, []string{"f1"}, updateLocal)
	assert.ElementsMatch(t, []string{"f3"}, removeLocal)
	assert.ElementsMatch(t, []string{"f4"}, createCloud)
	assert.ElementsMatch(t, []string{"f2"}, updateCloud)
}

// Scenario 5: two-phase download.
func TestScenario_TwoPhaseDownload(t *testing.T) {
	r := New(false)
	r.Resolve(DidFinishGatheringLocal{Set: localKeyed(localItem("a", 1))})
	out := r.Resolve(DidFinishGatheringCloud{Set: keyed(cloudItem("a", 1))})
	assert.Empty(t, out)

	out = r.Resolve(DidUpdateCloud{Set: keyed(
		cloudItem("a", 1), cloudItem("b", 3, notDownloaded()),
	)})
	require.Len(t, out, 1)
	sd, ok := out[0].(StartDownloading)
	require.True(t, ok)
	assert.Equal(t, "b", sd.Item.Name)

	out = r.Resolve(DidUpdateCloud{Set: keyed(
		cloudItem("a", 1), cloudItem("b", 3),
	)})
	require.Len(t, out, 1)
	cl, ok := out[0].(CreateLocal)
	require.True(t, ok)
	assert.Equal(t, "b", cl.Item.Name)
}

// Scenario 6: unresolved conflict short-circuits updates.
func TestScenario_UnresolvedConflictShortCircuits(t *testing.T) {
	r := New(false)
	r.Resolve(DidFinishGatheringLocal{Set: localKeyed(localItem("a", 1))})
	r.Resolve(DidFinishGatheringCloud{Set: keyed(cloudItem("a", 1))})

	out := r.Resolve(DidUpdateCloud{Set: keyed(
		cloudItem("a", 5, unresolvedConflict()), cloudItem("b", 2),
	)})
	require.Len(t, out, 1)
	rv, ok := out[0].(ResolveVersionsConflict)
	require.True(t, ok)
	assert.Equal(t, "a", rv.Item.Name)

	// cloudSnapshot must not have been committed: a follow-up identical
	// DidUpdateCloud without the conflict flag should still see "a" as
	// stale relative to the old snapshot, not the one just offered.
	assert.Len(t, r.cloudSnapshot, 1)
	_, stillOld := r.cloudSnapshot["a"]
	assert.True(t, stillOld)
}

// --- universal properties ---

func TestIdempotenceOfSteadyState(t *testing.T) {
	r := New(false)
	local := localKeyed(localItem("a", 1))
	cloud := keyed(cloudItem("a", 1))
	r.Resolve(DidFinishGatheringLocal{Set: local})
	out := r.Resolve(DidFinishGatheringCloud{Set: cloud})
	require.Empty(t, out)

	assert.Empty(t, r.Resolve(DidUpdateLocal{Set: local}))
	assert.Empty(t, r.Resolve(DidUpdateCloud{Set: cloud}))
}

func TestDeterminism(t *testing.T) {
	build := func() *Reconciler {
		r := New(true)
		r.Resolve(DidFinishGatheringLocal{Set: localKeyed(localItem("a", 1), localItem("b", 2))})
		return r
	}
	r1 := build()
	r2 := build()

	out1 := r1.Resolve(DidFinishGatheringCloud{Set: keyed(cloudItem("a", 5))})
	out2 := r2.Resolve(DidFinishGatheringCloud{Set: keyed(cloudItem("a", 5))})
	assert.Equal(t, len(out1), len(out2))
	assert.ElementsMatch(t, out1, out2)
}

func TestInitialSyncTerminatesExactlyOnce(t *testing.T) {
	r := New(true)
	r.Resolve(DidFinishGatheringLocal{Set: localKeyed(localItem("a", 1))})
	out := r.Resolve(DidFinishGatheringCloud{Set: keyed(cloudItem("a", 1))})

	count := 0
	for _, e := range out {
		if _, ok := e.(DidFinishInitialSync); ok {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.False(t, r.isInitialSync)

	// a subsequent update must never re-emit it.
	out = r.Resolve(DidUpdateLocal{Set: localKeyed(localItem("a", 9))})
	for _, e := range out {
		_, ok := e.(DidFinishInitialSync)
		assert.False(t, ok)
	}
}

func TestErrorsDoNotHaltTheDiff(t *testing.T) {
	r := New(false)
	r.Resolve(DidFinishGatheringLocal{Set: LocalSet{}})
	r.Resolve(DidFinishGatheringCloud{Set: CloudSet{}})

	broken := cloudItem("a", 1)
	broken.DownloadingError = errors.New("not uploaded yet")
	out := r.Resolve(DidUpdateCloud{Set: keyed(broken)})

	require.Len(t, out, 2) // error + CreateLocal for "a"
	_, isErr := out[0].(DidReceiveError)
	assert.True(t, isErr)
	_, isCreate := out[1].(CreateLocal)
	assert.True(t, isCreate)

	// unlike the conflict short-circuit, a per-item error still commits
	// the new snapshot.
	assert.Len(t, r.cloudSnapshot, 1)
}
