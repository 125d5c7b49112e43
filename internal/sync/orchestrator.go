// Package sync owns the watchers, the Reconciler, and the single
// serialized work lane that dispatches every outgoing event to the
// filesystem or the cloud container.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ubisync/syncd/internal/applife"
	"github.com/ubisync/syncd/internal/cloudstore"
	"github.com/ubisync/syncd/internal/config"
	"github.com/ubisync/syncd/internal/diagnostics"
	"github.com/ubisync/syncd/internal/filecoord"
	"github.com/ubisync/syncd/internal/localwatch"
	"github.com/ubisync/syncd/internal/reconcile"
	"github.com/ubisync/syncd/internal/workspace"
	"golang.org/x/sync/errgroup"
)

// ReloadHook is invoked at most once per dispatched batch that wrote or
// removed a local file or resolved a versions conflict, standing in for the
// host's "reload bookmarks" side effect.
type ReloadHook func()

// Orchestrator owns the local and cloud watchers, the Reconciler, and the
// serialized lane that both mutates Reconciler state and performs all I/O.
type Orchestrator struct {
	cfg     *config.Config
	ws      *workspace.Workspace
	store   *cloudstore.Store
	taskLog *diagnostics.TaskLog
	coord   *filecoord.Coordinator

	reconciler *reconcile.Reconciler
	localW     *localwatch.Watcher
	cloudW     *cloudstore.Watcher
	lifecycle  applife.AppLifecycle

	onReload ReloadHook

	lane        chan func()
	reloadLatch bool
	latchMu     sync.Mutex

	stopped   bool
	stoppedMu sync.Mutex
}

// New builds an Orchestrator. Call Start to begin watching and
// reconciling.
func New(
	cfg *config.Config,
	ws *workspace.Workspace,
	store *cloudstore.Store,
	taskLog *diagnostics.TaskLog,
	ignore *reconcile.IgnoreList,
	accepted *reconcile.AcceptedTypes,
	lifecycle applife.AppLifecycle,
	onReload ReloadHook,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		ws:         ws,
		store:      store,
		taskLog:    taskLog,
		coord:      filecoord.New(),
		reconciler: reconcile.New(!cfg.DidFinishInitialSynchronization),
		localW:     localwatch.New(ws.Root, ignore, accepted),
		cloudW:     cloudstore.NewWatcher(store),
		lifecycle:  lifecycle,
		onReload:   onReload,
		lane:       make(chan func(), 64),
	}
}

// Start subscribes to foreground/background transitions, launches the
// serialized lane, and on foreground starts the cloud watcher followed by
// the local watcher. It blocks until ctx is cancelled, grouping its
// goroutines with an errgroup the way the teacher's daemon Start does.
func (o *Orchestrator) Start(ctx context.Context) error {
	slog.Info("orchestrator start", "root", o.ws.Root)

	<-o.lifecycle.Foreground()

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()

	if err := o.cloudW.Start(watchCtx); err != nil {
		return fmt.Errorf("start cloud watcher: %w", err)
	}
	if err := o.localW.Start(watchCtx); err != nil {
		return fmt.Errorf("start local watcher: %w", err)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { o.runLane(egCtx); return nil })
	eg.Go(func() error { o.pump(egCtx, o.localW.Events); return nil })
	eg.Go(func() error { o.pump(egCtx, o.cloudW.Events); return nil })
	eg.Go(func() error { o.watchBackground(egCtx, cancelWatch); return nil })

	err := eg.Wait()
	o.localW.Stop()
	cancelWatch()
	if err != nil {
		return err
	}
	return ctx.Err()
}

// watchBackground requests a bounded background-execution extension once
// the lifecycle reports a background transition, then pauses both watchers
// by cancelling their shared context once the extension expires or ctx is
// cancelled outright, whichever comes first.
func (o *Orchestrator) watchBackground(ctx context.Context, cancelWatch context.CancelFunc) {
	select {
	case <-ctx.Done():
		return
	case <-o.lifecycle.Background():
	}

	slog.Info("orchestrator backgrounded, requesting extension")
	ext, done := applife.RequestExtension(ctx, applife.DefaultExtensionBudget)
	defer done()

	select {
	case <-ext.Done():
		slog.Info("background extension expired, pausing watchers")
	case <-ctx.Done():
	}
	o.localW.Stop()
	cancelWatch()
}

// pump forwards each watcher observation onto the serialized lane as one
// Resolve-and-dispatch task.
func (o *Orchestrator) pump(ctx context.Context, events <-chan reconcile.IncomingEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			select {
			case o.lane <- func() { o.handleBatch(ctx, event) }:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (o *Orchestrator) runLane(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-o.lane:
			task()
		}
	}
}

// stopSynchronization flips the stopped flag, standing in for the host's
// StopSynchronization(): every lane task queued from this point on
// short-circuits to a no-op instead of touching the reconciler or the
// filesystem/cloud layers.
func (o *Orchestrator) stopSynchronization() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()
}

func (o *Orchestrator) isStopped() bool {
	o.stoppedMu.Lock()
	defer o.stoppedMu.Unlock()
	return o.stopped
}

// handleBatch resolves one IncomingEvent and dispatches the resulting
// OutgoingEvents in order, then commits the reload-latch side effect. Once a
// fatal error has called stopSynchronization, the rest of the current batch
// is skipped and every subsequent batch is a no-op.
func (o *Orchestrator) handleBatch(ctx context.Context, event reconcile.IncomingEvent) {
	if o.isStopped() {
		return
	}

	outgoing := o.reconciler.Resolve(event)

	for _, out := range outgoing {
		if o.isStopped() {
			break
		}
		o.dispatch(ctx, out)
	}

	o.commitBatch()
}

func (o *Orchestrator) setReloadLatch() {
	o.latchMu.Lock()
	o.reloadLatch = true
	o.latchMu.Unlock()
}

func (o *Orchestrator) commitBatch() {
	o.latchMu.Lock()
	needsReload := o.reloadLatch
	o.reloadLatch = false
	o.latchMu.Unlock()

	if needsReload && o.onReload != nil {
		o.onReload()
	}
}

// dispatch runs the I/O worker for a single OutgoingEvent, matching
// SPEC_FULL.md's per-task dispatch table, and records the outcome.
func (o *Orchestrator) dispatch(ctx context.Context, out reconcile.OutgoingEvent) {
	var (
		name string
		err  error
	)

	switch e := out.(type) {
	case reconcile.CreateLocal:
		name = e.Item.Name
		err = o.handleCreateOrUpdateLocal(ctx, e.Item)
		o.setReloadLatch()

	case reconcile.UpdateLocal:
		name = e.Item.Name
		err = o.handleCreateOrUpdateLocal(ctx, e.Item)
		o.setReloadLatch()

	case reconcile.RemoveLocal:
		name = e.Item.Name
		err = o.handleRemoveLocal(e.Item)
		o.setReloadLatch()

	case reconcile.StartDownloading:
		name = e.Item.Name
		go func() {
			if dlErr := o.handleStartDownloading(ctx, e.Item); dlErr != nil {
				slog.Warn("background download failed", "name", e.Item.Name, "error", dlErr)
			}
			o.cloudW.Refresh(ctx)
		}()
		return

	case reconcile.CreateCloud:
		name = e.Item.Name
		err = o.handleCreateOrUpdateCloud(ctx, e.Item)

	case reconcile.UpdateCloud:
		name = e.Item.Name
		err = o.handleCreateOrUpdateCloud(ctx, e.Item)

	case reconcile.RemoveCloud:
		name = e.Item.Name
		err = o.handleRemoveCloud(ctx, e.Item)

	case reconcile.ResolveVersionsConflict:
		name = e.Item.Name
		err = o.handleResolveVersionsConflict(ctx, e.Item)
		o.setReloadLatch()

	case reconcile.ResolveInitialSyncConflict:
		name = e.Item.Name
		err = o.handleResolveInitialSyncConflict(e.Item)

	case reconcile.DidFinishInitialSync:
		err = o.cfg.MarkInitialSyncFinished()
		o.recordOutcome("DidFinishInitialSync", "", err)
		return

	case reconcile.DidReceiveError:
		slog.Warn("reconciler reported error", "kind", e.Err.Kind, "error", e.Err)
		if e.Err.Kind.Fatal() {
			slog.Error("fatal synchronization error, stopping synchronization", "error", e.Err)
			o.stopSynchronization()
		}
		return

	default:
		panic(fmt.Sprintf("sync: unhandled OutgoingEvent %T", out))
	}

	o.recordOutcome(eventName(out), name, err)
	if err != nil {
		slog.Error("sync task failed", "event", eventName(out), "name", name, "error", err)
	}

	if mutatesCloud(out) {
		o.cloudW.Refresh(ctx)
	}
}

// mutatesCloud reports whether an OutgoingEvent changes cloud-side state,
// warranting an out-of-band snapshot refresh rather than waiting out the
// watcher's poll interval.
func mutatesCloud(out reconcile.OutgoingEvent) bool {
	switch out.(type) {
	case reconcile.CreateCloud, reconcile.UpdateCloud, reconcile.RemoveCloud, reconcile.ResolveVersionsConflict:
		return true
	default:
		return false
	}
}

func (o *Orchestrator) recordOutcome(name, item string, err error) {
	if o.taskLog == nil {
		return
	}
	outcome := diagnostics.OutcomeSucceeded
	detail := ""
	if err != nil {
		outcome = diagnostics.OutcomeFailed
		detail = err.Error()
	}
	if logErr := o.taskLog.Record(name, item, outcome, detail); logErr != nil {
		slog.Warn("failed to record task log entry", "error", logErr)
	}
}

func eventName(out reconcile.OutgoingEvent) string {
	switch out.(type) {
	case reconcile.CreateLocal:
		return "CreateLocal"
	case reconcile.UpdateLocal:
		return "UpdateLocal"
	case reconcile.RemoveLocal:
		return "RemoveLocal"
	case reconcile.StartDownloading:
		return "StartDownloading"
	case reconcile.CreateCloud:
		return "CreateCloud"
	case reconcile.UpdateCloud:
		return "UpdateCloud"
	case reconcile.RemoveCloud:
		return "RemoveCloud"
	case reconcile.ResolveVersionsConflict:
		return "ResolveVersionsConflict"
	case reconcile.ResolveInitialSyncConflict:
		return "ResolveInitialSyncConflict"
	case reconcile.DidFinishInitialSync:
		return "DidFinishInitialSync"
	case reconcile.DidReceiveError:
		return "DidReceiveError"
	default:
		return fmt.Sprintf("%T", out)
	}
}
