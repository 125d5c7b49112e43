package localwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubisync/syncd/internal/reconcile"
)

func TestWatcher_InitialScanReportsGatheringEvent(t *testing.T) {
	tempDir := t.TempDir()
	tempDir, err := filepath.EvalSymlinks(tempDir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "a.txt"), []byte("hello"), 0o644))

	ignore := reconcile.NewIgnoreList(tempDir)
	ignore.Load()

	w := New(tempDir, ignore, reconcile.DefaultAcceptedTypes())
	require.NoError(t, w.Start(t.Context()))
	defer w.Stop()

	select {
	case event := <-w.Events:
		gathered, ok := event.(reconcile.DidFinishGatheringLocal)
		require.True(t, ok, "expected DidFinishGatheringLocal, got %T", event)
		assert.Len(t, gathered.Set, 1)
		assert.Contains(t, gathered.Set, "a.txt")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for initial gathering event")
	}
}

func TestWatcher_ReportsUpdateAfterWrite(t *testing.T) {
	tempDir := t.TempDir()
	tempDir, err := filepath.EvalSymlinks(tempDir)
	require.NoError(t, err)

	ignore := reconcile.NewIgnoreList(tempDir)
	ignore.Load()

	w := New(tempDir, ignore, reconcile.DefaultAcceptedTypes())
	require.NoError(t, w.Start(t.Context()))
	defer w.Stop()

	// drain the initial (empty) gathering event
	<-w.Events

	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "b.txt"), []byte("world"), 0o644))

	select {
	case event := <-w.Events:
		updated, ok := event.(reconcile.DidUpdateLocal)
		require.True(t, ok, "expected DidUpdateLocal, got %T", event)
		assert.Contains(t, updated.Set, "b.txt")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for update event")
	}
}

func TestWatcher_IgnoreListExcludesMatchedPaths(t *testing.T) {
	tempDir := t.TempDir()
	tempDir, err := filepath.EvalSymlinks(tempDir)
	require.NoError(t, err)

	require.NoError(t, os.Mkdir(filepath.Join(tempDir, "__pycache__"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "__pycache__", "x.pyc"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "keep.txt"), []byte("keep"), 0o644))

	ignore := reconcile.NewIgnoreList(tempDir)
	ignore.Load()

	w := New(tempDir, ignore, reconcile.DefaultAcceptedTypes())
	require.NoError(t, w.Start(t.Context()))
	defer w.Stop()

	event := <-w.Events
	gathered := event.(reconcile.DidFinishGatheringLocal)
	assert.Contains(t, gathered.Set, "keep.txt")
	assert.NotContains(t, gathered.Set, filepath.Join("__pycache__", "x.pyc"))
}
