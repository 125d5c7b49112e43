package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ubisync/syncd/internal/reconcile"
)

// localPath resolves a logical item name to its absolute path under the
// workspace root.
func (o *Orchestrator) localPath(name string) string {
	return filepath.Join(o.ws.Root, name)
}

// writeLocalAtomic streams src to name under a temp file in the
// workspace's own tmp area, then atomically renames it into place,
// matching the teacher's copy-with-tmp download pattern so a crash never
// leaves a half-written file inside the watched tree.
func (o *Orchestrator) writeLocalAtomic(name string, src io.Reader) error {
	dst := o.localPath(name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	tmpDir := filepath.Join(o.ws.MetadataDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("create tmp dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(tmpDir, filepath.Base(dst)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, src); err != nil {
		return fmt.Errorf("copy to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if o.localW != nil {
		o.localW.IgnoreOnce(dst)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	success = true
	return nil
}

func (o *Orchestrator) stampModTime(name string, t time.Time) {
	path := o.localPath(name)
	if err := os.Chtimes(path, t, t); err != nil {
		slog.Warn("failed to stamp local modification time", "path", path, "error", err)
	}
}

// handleCreateOrUpdateLocal downloads a cloud item's bytes and writes them
// into the workspace, file-coordinated per item name.
func (o *Orchestrator) handleCreateOrUpdateLocal(ctx context.Context, item reconcile.CloudItem) error {
	unlock := o.coord.Lock(item.Name)
	defer unlock()

	body, err := o.store.Download(ctx, item)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := o.writeLocalAtomic(item.Name, body); err != nil {
		return err
	}
	o.stampModTime(item.Name, item.ModifiedAt)

	slog.Info("materialized cloud item locally", "name", item.Name, "size", humanize.Bytes(uint64(item.Size)))
	return nil
}

// handleRemoveLocal deletes a local file whose cloud counterpart was
// trashed, tolerating the file already being gone.
func (o *Orchestrator) handleRemoveLocal(item reconcile.CloudItem) error {
	unlock := o.coord.Lock(item.Name)
	defer unlock()

	path := o.localPath(item.Name)
	if o.localW != nil {
		o.localW.IgnoreOnce(path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove local file: %w", err)
	}
	cleanupEmptyParentDirs(filepath.Dir(path), o.ws.Root)
	return nil
}

// handleStartDownloading requests the cloud layer materialize an item's
// bytes. It has no local filesystem effect; a later cloud snapshot
// reporting IsDownloaded=true lets the reconciler graduate this item to
// CreateLocal/UpdateLocal.
func (o *Orchestrator) handleStartDownloading(ctx context.Context, item reconcile.CloudItem) error {
	body, err := o.store.Download(ctx, item)
	if err != nil {
		return err
	}
	defer body.Close()
	_, err = io.Copy(io.Discard, body)
	return err
}

// handleCreateOrUpdateCloud uploads a local file's bytes to the cloud
// container under its logical name.
func (o *Orchestrator) handleCreateOrUpdateCloud(ctx context.Context, item reconcile.LocalItem) error {
	unlock := o.coord.Lock(item.Name)
	defer unlock()

	f, err := os.Open(o.localPath(item.Name))
	if err != nil {
		return fmt.Errorf("open local file for upload: %w", err)
	}
	defer f.Close()

	_, err = o.store.Upload(ctx, item.Name, f, item.Size, item.ContentType)
	return err
}

// handleRemoveCloud purges any stale trash entry under the same name (so
// the trash tier keeps at most one entry per name) before moving the live
// cloud item there.
func (o *Orchestrator) handleRemoveCloud(ctx context.Context, item reconcile.LocalItem) error {
	unlock := o.coord.Lock(item.Name)
	defer unlock()

	snapshot, err := o.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot before trash: %w", err)
	}

	var liveKey string
	for key, c := range snapshot {
		if c.Name != item.Name {
			continue
		}
		if c.IsInTrash {
			if err := o.store.PermanentlyDelete(ctx, key); err != nil {
				slog.Warn("failed to purge stale trash entry", "name", item.Name, "key", key, "error", err)
			}
			continue
		}
		liveKey = key
	}

	if liveKey == "" {
		return nil // already gone on the cloud side
	}
	return o.store.Trash(ctx, snapshot[liveKey])
}

// handleResolveVersionsConflict preserves the conflicted object's current
// bytes under a generated name, then clears the conflict marker so the
// reconciler can compare the canonical object again. Our cloud store
// tracks conflicts with a marker flag rather than full S3 object
// versioning, so the "other" versions this preserves are the most recent
// upload rather than a full history.
func (o *Orchestrator) handleResolveVersionsConflict(ctx context.Context, item reconcile.CloudItem) error {
	body, err := o.store.Download(ctx, item)
	if err != nil {
		return err
	}
	defer body.Close()

	tmp, err := os.CreateTemp("", "conflict-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	size, err := io.Copy(tmp, body)
	if err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	preserved := preservedCopyName(item.Name, func(n string) bool {
		return o.cloudNameExists(ctx, n)
	})

	f, err := os.Open(tmp.Name())
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := o.store.Upload(ctx, preserved, f, size, item.ContentType); err != nil {
		return fmt.Errorf("preserve conflicted version as %s: %w", preserved, err)
	}

	return o.store.ResolveConflict(ctx, item.URL)
}

// handleResolveInitialSyncConflict renames a local file so it reappears
// as a fresh CreateCloud in the next diff, preserving its bytes rather
// than letting the first sync silently overwrite it.
func (o *Orchestrator) handleResolveInitialSyncConflict(item reconcile.LocalItem) error {
	unlock := o.coord.Lock(item.Name)
	defer unlock()

	newName := preservedCopyName(item.Name, func(n string) bool {
		_, err := os.Stat(o.localPath(n))
		return err == nil
	})

	if o.localW != nil {
		o.localW.IgnoreOnce(o.localPath(item.Name))
		o.localW.IgnoreOnce(o.localPath(newName))
	}
	return os.Rename(o.localPath(item.Name), o.localPath(newName))
}

func (o *Orchestrator) cloudNameExists(ctx context.Context, name string) bool {
	snapshot, err := o.store.Snapshot(ctx)
	if err != nil {
		return false
	}
	for _, c := range snapshot {
		if c.Name == name {
			return true
		}
	}
	return false
}

// cleanupEmptyParentDirs removes dir, and any now-empty ancestor up to (but
// excluding) root, after a file beneath it was deleted.
func cleanupEmptyParentDirs(dir, root string) {
	for {
		if dir == root || dir == "." || dir == string(filepath.Separator) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
