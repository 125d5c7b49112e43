package reconcile

import mapset "github.com/deckarep/golang-set/v2"

// Reconciler is the synchronization state manager. It retains the last
// snapshot observed from each side and, given a single fresh observation,
// computes the minimal ordered set of outgoing events needed to bring the
// two sides into agreement.
//
// Reconciler performs no I/O and is not safe for concurrent use; callers
// (the orchestrator's serial lane) must serialize calls to Resolve.
type Reconciler struct {
	localSnapshot LocalSet
	cloudSnapshot CloudSet

	localGathered bool
	cloudGathered bool

	isInitialSync bool
}

// New builds a Reconciler. isInitialSync should be seeded from the durable
// "didFinishInitialSynchronization" flag: true means this installation has
// never completed a full sync.
func New(isInitialSync bool) *Reconciler {
	return &Reconciler{
		localSnapshot: LocalSet{},
		cloudSnapshot: CloudSet{},
		isInitialSync: isInitialSync,
	}
}

// Reset clears all retained state, including the gathering flags. The next
// Resolve call behaves as if the Reconciler were freshly constructed, aside
// from isInitialSync which callers re-seed explicitly via SetInitialSync if
// needed.
func (r *Reconciler) Reset() {
	r.localSnapshot = LocalSet{}
	r.cloudSnapshot = CloudSet{}
	r.localGathered = false
	r.cloudGathered = false
}

// SetInitialSync overrides the initial-sync flag, used when the orchestrator
// reloads the durable flag after a Reset.
func (r *Reconciler) SetInitialSync(v bool) {
	r.isInitialSync = v
}

// Resolve advances the state machine by one observation and returns the
// ordered outgoing events it produces.
func (r *Reconciler) Resolve(event IncomingEvent) []OutgoingEvent {
	switch e := event.(type) {
	case DidFinishGatheringLocal:
		r.localSnapshot = e.Set
		r.localGathered = true
		return r.maybeInitialReconcile()
	case DidFinishGatheringCloud:
		r.cloudSnapshot = e.Set
		r.cloudGathered = true
		return r.maybeInitialReconcile()
	case DidUpdateLocal:
		return r.diffLocal(e.Set)
	case DidUpdateCloud:
		return r.diffCloud(e.Set)
	default:
		panic("reconcile: unhandled IncomingEvent variant")
	}
}

// maybeInitialReconcile runs the initial reconciliation table (SPEC_FULL.md
// §4.3) once both sides have reported gathering complete. It is a no-op
// (returns nil) until both flags are set. Resolve never clears
// localGathered/cloudGathered (only Reset does), so once both are set every
// later DidFinishGathering* event runs the full reconciliation again.
func (r *Reconciler) maybeInitialReconcile() []OutgoingEvent {
	if !r.localGathered || !r.cloudGathered {
		return nil
	}

	localEmpty := len(r.localSnapshot) == 0
	cloudEmpty := len(r.cloudSnapshot) == 0

	var out []OutgoingEvent

	switch {
	case localEmpty && cloudEmpty:
		// nothing to do
	case localEmpty && !cloudEmpty:
		for _, c := range r.cloudSnapshot {
			if c.IsInTrash {
				continue
			}
			out = append(out, gatedCreate(c)...)
		}
	case !localEmpty && cloudEmpty:
		for _, l := range r.localSnapshot {
			out = append(out, CreateCloud{Item: l})
		}
	default: // both non-empty
		if r.isInitialSync {
			cloudByName := cloudItemsByName(r.cloudSnapshot)
			for name, l := range r.localSnapshot {
				if _, ok := cloudByName[name]; ok {
					out = append(out, ResolveInitialSyncConflict{Item: l})
				}
			}
		}
		out = append(out, r.diffCloud(r.cloudSnapshot)...)
		out = append(out, r.diffLocal(r.localSnapshot)...)
	}

	if r.isInitialSync {
		out = append(out, DidFinishInitialSync{})
		r.isInitialSync = false
	}

	return out
}

// gatedCreate applies the download-gating rule (§4.5 step 4) to a single
// cloud item that has no local counterpart at all.
func gatedCreate(c CloudItem) []OutgoingEvent {
	if !c.IsDownloaded {
		return []OutgoingEvent{StartDownloading{Item: c}}
	}
	return []OutgoingEvent{CreateLocal{Item: c}}
}

// diffLocal implements SPEC_FULL.md §4.4 and commits newLocal as the
// retained snapshot.
func (r *Reconciler) diffLocal(newLocal LocalSet) []OutgoingEvent {
	prevNames := mapset.NewThreadUnsafeSet[string]()
	for name := range r.localSnapshot {
		prevNames.Add(name)
	}
	newNames := mapset.NewThreadUnsafeSet[string]()
	for name := range newLocal {
		newNames.Add(name)
	}

	var out []OutgoingEvent

	for _, name := range prevNames.Difference(newNames).ToSlice() {
		out = append(out, RemoveCloud{Item: r.localSnapshot[name]})
	}

	cloudByName := cloudItemsByName(r.cloudSnapshot)

	for _, name := range newNames.ToSlice() {
		l := newLocal[name]
		matches := cloudByName[name]
		live, hasLive := firstNonTrashed(matches)

		switch {
		case hasLive:
			if !r.isInitialSync && live.ModifiedAt.Before(l.ModifiedAt) {
				out = append(out, UpdateCloud{Item: l})
			}
		case len(matches) == 0:
			out = append(out, CreateCloud{Item: l})
		default:
			// every match is trashed; the most recent trash entry governs.
			if mostRecent(matches).ModifiedAt.Before(l.ModifiedAt) {
				out = append(out, CreateCloud{Item: l})
			}
		}
	}

	r.localSnapshot = newLocal
	return out
}

// diffCloud implements SPEC_FULL.md §4.5 and commits newCloud as the
// retained snapshot, unless an unresolved conflict short-circuits the
// commit.
func (r *Reconciler) diffCloud(newCloud CloudSet) []OutgoingEvent {
	var out []OutgoingEvent

	for _, c := range newCloud {
		if c.DownloadingError != nil {
			out = append(out, DidReceiveError{Err: classifyItemError(c.Name, c.DownloadingError)})
		}
		if c.UploadingError != nil {
			out = append(out, DidReceiveError{Err: classifyItemError(c.Name, c.UploadingError)})
		}
	}

	var conflicted []CloudItem
	for _, c := range newCloud {
		if !c.IsInTrash && c.HasUnresolvedConflicts {
			conflicted = append(conflicted, c)
		}
	}
	if len(conflicted) > 0 {
		for _, c := range conflicted {
			out = append(out, ResolveVersionsConflict{Item: c})
		}
		return out
	}

	var toRemove, toCreate, toUpdate []CloudItem

	byName := cloudItemsByName(newCloud)
	for name, matches := range byName {
		live, hasLive := firstNonTrashed(matches)

		if hasLive && !live.HasUnresolvedConflicts {
			l, existsLocally := r.localSnapshot[name]
			switch {
			case !existsLocally:
				toCreate = append(toCreate, live)
			case r.isInitialSync:
				toUpdate = append(toUpdate, live)
			case l.ModifiedAt.Before(live.ModifiedAt):
				toUpdate = append(toUpdate, live)
			}
		}

		if trashed, hasTrashed := mostRecentTrashed(matches); hasTrashed {
			// trash dominates unless a live entry of the same name is
			// strictly newer, including when both coexist (the concurrent
			// offline-edit-vs-delete case); deliberate ≤ on the local
			// comparison.
			if !hasLive || !live.ModifiedAt.After(trashed.ModifiedAt) {
				if l, ok := r.localSnapshot[name]; ok && l.ModifiedAt.Compare(trashed.ModifiedAt) <= 0 {
					toRemove = append(toRemove, trashed)
				}
			}
		}
	}

	for _, c := range toRemove {
		if c.IsDownloaded {
			out = append(out, RemoveLocal{Item: c})
		}
		// a not-yet-downloaded trashed item needs no download; there is
		// nothing to remove locally.
	}
	for _, c := range toCreate {
		out = append(out, gatedCreate(c)...)
	}
	for _, c := range toUpdate {
		if c.IsDownloaded {
			out = append(out, UpdateLocal{Item: c})
		} else {
			out = append(out, StartDownloading{Item: c})
		}
	}

	r.cloudSnapshot = newCloud
	return out
}

// cloudItemsByName groups a CloudSet's values by their Name field. A name
// may map to more than one item when the trash tier and the live tier both
// carry an entry for it.
func cloudItemsByName(set CloudSet) map[string][]CloudItem {
	out := make(map[string][]CloudItem, len(set))
	for _, c := range set {
		out[c.Name] = append(out[c.Name], c)
	}
	return out
}

// firstNonTrashed returns the first non-trashed item in matches, if any.
func firstNonTrashed(matches []CloudItem) (CloudItem, bool) {
	for _, c := range matches {
		if !c.IsInTrash {
			return c, true
		}
	}
	return CloudItem{}, false
}

// mostRecent returns the item with the greatest ModifiedAt, used when more
// than one trashed entry exists for the same name.
func mostRecent(matches []CloudItem) CloudItem {
	best := matches[0]
	for _, c := range matches[1:] {
		if c.ModifiedAt.After(best.ModifiedAt) {
			best = c
		}
	}
	return best
}

// mostRecentTrashed returns the trashed item with the greatest ModifiedAt
// among matches, if any entry is trashed at all.
func mostRecentTrashed(matches []CloudItem) (CloudItem, bool) {
	var best CloudItem
	found := false
	for _, c := range matches {
		if !c.IsInTrash {
			continue
		}
		if !found || c.ModifiedAt.After(best.ModifiedAt) {
			best = c
			found = true
		}
	}
	return best, found
}

func classifyItemError(name string, err error) SyncError {
	return NewSyncError(ErrInternal, name, err)
}
