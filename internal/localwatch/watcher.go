// Package localwatch watches the local sync root and reports LocalSet
// snapshots to the Reconciler as reconcile.IncomingEvent values.
package localwatch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
	"github.com/ubisync/syncd/internal/reconcile"
)

const (
	// DefaultIgnoreOnceTimeout bounds how long a path suppressed via
	// IgnoreOnce (because the orchestrator itself just wrote it) stays
	// suppressed, in case the expected echo event never arrives.
	DefaultIgnoreOnceTimeout = time.Second
	defaultCleanupInterval   = 15 * time.Second
	eventBufferSize          = 256
	defaultDebounceTimeout   = 200 * time.Millisecond
)

// Watcher walks root, reports the first enumeration as
// reconcile.DidFinishGatheringLocal, then emits reconcile.DidUpdateLocal
// after every debounced burst of filesystem activity.
type Watcher struct {
	root     string
	ignore   *reconcile.IgnoreList
	accepted *reconcile.AcceptedTypes

	Events chan reconcile.IncomingEvent

	rawEvents   chan notify.EventInfo
	usingNotify bool

	ignoreOnce   map[string]time.Time
	ignoreOnceMu sync.RWMutex

	pendingPaths   map[string]struct{}
	eventTimer     *time.Timer
	debounceMu     sync.Mutex
	debounceTimeout time.Duration

	done chan struct{}
	wg   sync.WaitGroup

	gatheredOnce sync.Once
	stopOnce     sync.Once
}

// New prepares a Watcher rooted at dir. Call Start to begin emitting.
func New(dir string, ignore *reconcile.IgnoreList, accepted *reconcile.AcceptedTypes) *Watcher {
	return &Watcher{
		root:            dir,
		ignore:          ignore,
		accepted:        accepted,
		Events:          make(chan reconcile.IncomingEvent, 16),
		ignoreOnce:      make(map[string]time.Time),
		pendingPaths:    make(map[string]struct{}),
		debounceTimeout: defaultDebounceTimeout,
		done:            make(chan struct{}),
	}
}

// IgnoreOnce suppresses the next change notification for path, so a write
// the orchestrator itself performed (e.g. materializing a CreateLocal)
// doesn't loop back as a spurious local edit.
func (w *Watcher) IgnoreOnce(path string) {
	w.ignoreOnceMu.Lock()
	defer w.ignoreOnceMu.Unlock()
	w.ignoreOnce[path] = time.Now().Add(DefaultIgnoreOnceTimeout)
}

func (w *Watcher) isIgnoredOnce(path string) bool {
	w.ignoreOnceMu.Lock()
	defer w.ignoreOnceMu.Unlock()
	expiry, ok := w.ignoreOnce[path]
	if !ok {
		return false
	}
	delete(w.ignoreOnce, path)
	return time.Now().Before(expiry)
}

// Start performs the initial scan, then begins watching for further
// changes until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	slog.Info("local watcher start", "dir", w.root)

	initial, err := w.scan()
	if err != nil {
		return err
	}
	w.Events <- reconcile.DidFinishGatheringLocal{Set: initial}

	w.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	recursivePath := filepath.Join(w.root, "...")
	if err := notify.Watch(recursivePath, w.rawEvents, notify.Write, notify.Create, notify.Remove, notify.Rename); err != nil {
		if fallbackErr := notify.Watch(w.root, w.rawEvents, notify.Write, notify.Create, notify.Remove, notify.Rename); fallbackErr != nil {
			slog.Warn("local watcher notify backend unavailable; using polling fallback", "dir", w.root, "error", err)
			w.wg.Add(1)
			go w.poll(ctx)
		} else {
			w.usingNotify = true
			slog.Warn("local watcher recursive watch failed; using non-recursive watch", "dir", w.root, "error", err)
		}
	} else {
		w.usingNotify = true
	}

	if w.usingNotify {
		w.wg.Add(1)
		go w.consumeRaw(ctx)
	}

	return nil
}

// Stop releases watch resources and waits for goroutines to exit. Safe to
// call more than once (e.g. both from a background-transition pause and
// from final shutdown).
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if w.usingNotify && w.rawEvents != nil {
			notify.Stop(w.rawEvents)
		}
		w.wg.Wait()
		close(w.Events)
	})
}

func (w *Watcher) consumeRaw(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.rawEvents:
			if !ok {
				return
			}
			if w.isIgnoredOnce(event.Path()) {
				continue
			}
			w.debounce()
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.debounce()
		}
	}
}

func (w *Watcher) debounce() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.eventTimer != nil {
		w.eventTimer.Stop()
	}
	w.eventTimer = time.AfterFunc(w.debounceTimeout, w.flush)
}

func (w *Watcher) flush() {
	snapshot, err := w.scan()
	if err != nil {
		slog.Warn("local watcher rescan failed", "error", err)
		return
	}
	select {
	case w.Events <- reconcile.DidUpdateLocal{Set: snapshot}:
	default:
		slog.Warn("local watcher dropped update: events channel full")
	}
}

// scan walks root and builds the LocalSet the reconciler expects, applying
// the ignore list. The accepted-content-type patterns only decide each
// item's ContentType; files that match none of them are still reported.
func (w *Watcher) scan() (reconcile.LocalSet, error) {
	set := make(reconcile.LocalSet)
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		if w.ignore != nil && w.ignore.ShouldIgnore(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		contentType := reconcile.DetectContentType(rel, w.accepted)
		item := reconcile.NewLocalItem(rel, path, info.Size(), contentType, info.ModTime(), info.ModTime())
		set[rel] = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}
