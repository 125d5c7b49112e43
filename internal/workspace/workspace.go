// Package workspace manages the local sync root: directory layout and
// single-instance locking.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/ubisync/syncd/internal/utils"
)

const (
	metadataDir = ".ubisync"
	lockFile    = "ubisync.lock"
)

// ErrLocked is returned by Lock when another process already holds the
// workspace lock.
var ErrLocked = errors.New("workspace locked by another process")

// Workspace is the local directory tree the orchestrator watches and
// writes into.
type Workspace struct {
	Root        string
	MetadataDir string

	flock *flock.Flock
}

// New resolves rootDir (expanding "~" and relative segments) and prepares a
// Workspace, without touching disk.
func New(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root %q: %w", rootDir, err)
	}

	meta := filepath.Join(root, metadataDir)
	return &Workspace{
		Root:        root,
		MetadataDir: meta,
		flock:       flock.New(filepath.Join(meta, lockFile)),
	}, nil
}

// Setup creates the required directories and acquires the single-instance
// lock. Call Unlock on shutdown.
func (w *Workspace) Setup() error {
	if err := utils.EnsureDir(w.Root); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}
	if err := w.Lock(); err != nil {
		return err
	}
	slog.Info("workspace ready", "root", w.Root)
	return nil
}

// Lock acquires the advisory single-instance lock, failing with ErrLocked
// if another process already holds it.
func (w *Workspace) Lock() error {
	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock workspace: %w", err)
	}
	if !locked {
		return ErrLocked
	}
	return nil
}

// Unlock releases the lock and removes the lock file, if this process held
// it.
func (w *Workspace) Unlock() error {
	if !w.flock.Locked() {
		return nil
	}
	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock workspace: %w", err)
	}
	return os.Remove(w.flock.Path())
}

// TrashDir returns the "trash" subdirectory of the metadata directory. It
// does not create it, and RemoveCloud does not use it: cloud removals go
// to the cloud store's own trash prefix.
func (w *Workspace) TrashDir() string {
	return filepath.Join(w.MetadataDir, "trash")
}
