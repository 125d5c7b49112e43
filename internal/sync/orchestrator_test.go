package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ubisync/syncd/internal/reconcile"
)

func TestMutatesCloud(t *testing.T) {
	assert.True(t, mutatesCloud(reconcile.CreateCloud{}))
	assert.True(t, mutatesCloud(reconcile.UpdateCloud{}))
	assert.True(t, mutatesCloud(reconcile.RemoveCloud{}))
	assert.True(t, mutatesCloud(reconcile.ResolveVersionsConflict{}))

	assert.False(t, mutatesCloud(reconcile.CreateLocal{}))
	assert.False(t, mutatesCloud(reconcile.StartDownloading{}))
	assert.False(t, mutatesCloud(reconcile.DidFinishInitialSync{}))
}

func TestEventName(t *testing.T) {
	assert.Equal(t, "CreateLocal", eventName(reconcile.CreateLocal{}))
	assert.Equal(t, "RemoveCloud", eventName(reconcile.RemoveCloud{}))
	assert.Equal(t, "DidFinishInitialSync", eventName(reconcile.DidFinishInitialSync{}))
}

func TestOrchestrator_CommitBatchFiresReloadHookOnceWhenLatched(t *testing.T) {
	var fired int
	o := &Orchestrator{onReload: func() { fired++ }}

	o.setReloadLatch()
	o.commitBatch()
	assert.Equal(t, 1, fired)

	// no latch set this time, no reload
	o.commitBatch()
	assert.Equal(t, 1, fired)
}

func TestOrchestrator_CommitBatchNoopsWithoutHook(t *testing.T) {
	o := &Orchestrator{}
	o.setReloadLatch()
	assert.NotPanics(t, func() { o.commitBatch() })
}
