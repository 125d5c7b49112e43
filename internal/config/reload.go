package config

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrReloaderClosed is returned by Reloader methods after Stop has run.
var ErrReloaderClosed = errors.New("reloader closed")

// Reloader watches the config file and the ignore file for edits and
// invokes onChange without requiring a process restart. Editors commonly
// replace a file rather than write in place, so the watch targets the
// containing directories and filters events by basename rather than
// watching the files themselves.
type Reloader struct {
	watcher  *fsnotify.Watcher
	onChange func(path string)

	mu       sync.Mutex
	isClosed bool
	watch    map[string]bool // basenames of the watched files
}

// NewReloader watches the given files (config.json, .syncignore, ...) for
// creation or write events and calls onChange with the path that changed.
// An event that is only a rename or a removal does not call onChange.
func NewReloader(onChange func(path string), paths ...string) (*Reloader, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	r := &Reloader{
		watcher:  fw,
		onChange: onChange,
		watch:    make(map[string]bool),
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		dirs[filepath.Dir(p)] = true
		r.watch[filepath.Base(p)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}

	return r, nil
}

// Run blocks, dispatching onChange for matching events until ctx is
// cancelled or Stop is called.
func (r *Reloader) Run(ctx context.Context) error {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return ErrReloaderClosed
			}
			r.handleEvent(event)

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return ErrReloaderClosed
			}
			slog.Warn("config reloader watch error", "error", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Reloader) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Chmod) {
		return
	}
	if !r.watch[filepath.Base(event.Name)] {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	slog.Debug("config reloader detected change", "path", event.Name, "op", event.Op.String())
	r.onChange(event.Name)
}

// Stop releases the underlying fsnotify watches.
func (r *Reloader) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isClosed {
		return ErrReloaderClosed
	}
	r.isClosed = true
	return r.watcher.Close()
}
