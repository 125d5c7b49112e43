package cloudstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/ubisync/syncd/internal/reconcile"
)

// DefaultPollInterval is how often Watch re-lists the bucket. The cloud
// container exposes no push notifications in this deployment, so the
// metadata refresh is purely time-driven, matching the teacher's own
// polling-based remote-state refresh loop.
const DefaultPollInterval = time.Second

// Watcher polls a Store on an interval and reports CloudSet snapshots as
// reconcile.IncomingEvent values.
type Watcher struct {
	store    *Store
	interval time.Duration
	Events   chan reconcile.IncomingEvent
}

// NewWatcher builds a Watcher over store, polling at DefaultPollInterval
// unless overridden with SetInterval before Start.
func NewWatcher(store *Store) *Watcher {
	return &Watcher{
		store:    store,
		interval: DefaultPollInterval,
		Events:   make(chan reconcile.IncomingEvent, 16),
	}
}

// SetInterval overrides the poll cadence; call before Start.
func (w *Watcher) SetInterval(d time.Duration) {
	w.interval = d
}

// Start performs an initial list, reports it as DidFinishGatheringCloud,
// then polls on the configured interval reporting DidUpdateCloud until ctx
// is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	initial, err := w.store.Snapshot(ctx)
	if err != nil {
		return err
	}
	w.Events <- reconcile.DidFinishGatheringCloud{Set: initial}

	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.Events)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot, err := w.store.Snapshot(ctx)
			if err != nil {
				slog.Warn("cloud watcher snapshot failed", "error", err)
				continue
			}
			select {
			case w.Events <- reconcile.DidUpdateCloud{Set: snapshot}:
			default:
				slog.Warn("cloud watcher dropped update: events channel full")
			}
		}
	}
}

// Refresh forces an out-of-band snapshot and reports it immediately,
// bypassing the poll ticker. Used by the orchestrator right after an
// upload/download/trash so the next reconciliation sees the change without
// waiting out the full interval.
func (w *Watcher) Refresh(ctx context.Context) {
	snapshot, err := w.store.Snapshot(ctx)
	if err != nil {
		slog.Warn("cloud watcher forced refresh failed", "error", err)
		return
	}
	select {
	case w.Events <- reconcile.DidUpdateCloud{Set: snapshot}:
	default:
		slog.Warn("cloud watcher dropped forced refresh: events channel full")
	}
}
