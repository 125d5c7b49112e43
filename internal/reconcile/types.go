// Package reconcile implements the synchronization state manager: a pure,
// in-memory state machine that compares a local directory snapshot against a
// cloud container snapshot and decides what must change on each side.
package reconcile

import "time"

// MetadataItem is the read-only attribute set shared by LocalItem and
// CloudItem. Both sides compare on these fields; nothing else participates
// in reconciliation decisions.
type MetadataItem interface {
	ItemName() string
	ItemURL() string
	ItemSize() int64
	ItemContentType() string
	ItemCreatedAt() time.Time
	ItemModifiedAt() time.Time
}

// LocalItem describes a single file as observed by the local directory
// watcher.
type LocalItem struct {
	Name        string
	URL         string
	Size        int64
	ContentType string
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

func (i LocalItem) ItemName() string          { return i.Name }
func (i LocalItem) ItemURL() string           { return i.URL }
func (i LocalItem) ItemSize() int64           { return i.Size }
func (i LocalItem) ItemContentType() string   { return i.ContentType }
func (i LocalItem) ItemCreatedAt() time.Time  { return i.CreatedAt }
func (i LocalItem) ItemModifiedAt() time.Time { return i.ModifiedAt }

// NewLocalItem truncates the timestamps to whole seconds, matching the
// precision comparisons are made at throughout the reconciler.
func NewLocalItem(name, url string, size int64, contentType string, createdAt, modifiedAt time.Time) LocalItem {
	return LocalItem{
		Name:        name,
		URL:         url,
		Size:        size,
		ContentType: contentType,
		CreatedAt:   createdAt.Truncate(time.Second),
		ModifiedAt:  modifiedAt.Truncate(time.Second),
	}
}

// CloudItem describes a single file as observed by the cloud container
// metadata watcher. It extends LocalItem's attribute set with the
// cloud-only state needed to decide download gating and conflicts.
type CloudItem struct {
	Name        string
	URL         string
	Size        int64
	ContentType string
	CreatedAt   time.Time
	ModifiedAt  time.Time

	IsDownloaded           bool
	IsInTrash              bool
	HasUnresolvedConflicts bool

	DownloadingError error
	UploadingError   error
}

func (i CloudItem) ItemName() string          { return i.Name }
func (i CloudItem) ItemURL() string           { return i.URL }
func (i CloudItem) ItemSize() int64           { return i.Size }
func (i CloudItem) ItemContentType() string   { return i.ContentType }
func (i CloudItem) ItemCreatedAt() time.Time  { return i.CreatedAt }
func (i CloudItem) ItemModifiedAt() time.Time { return i.ModifiedAt }

// NewCloudItem truncates the timestamps to whole seconds.
func NewCloudItem(name, url string, size int64, contentType string, createdAt, modifiedAt time.Time) CloudItem {
	return CloudItem{
		Name:        name,
		URL:         url,
		Size:        size,
		ContentType: contentType,
		CreatedAt:   createdAt.Truncate(time.Second),
		ModifiedAt:  modifiedAt.Truncate(time.Second),
	}
}

// LocalSet is a snapshot of every local item, keyed by Name. Within the
// local namespace a name is always unique.
type LocalSet map[string]LocalItem

// CloudSet is a snapshot of every cloud item, keyed by the cloud layer's own
// identifier for that object (its URL/path). This is deliberately NOT always
// Name: a trashed item and a live item can carry the same Name (the trash
// tier is a separate namespace that retains the original filename), so two
// distinct keys may report the same Name simultaneously. Reconciler diff
// logic groups CloudSet entries by Name via cloudItemsByName before making
// any trash-dominance or create/update decision.
type CloudSet map[string]CloudItem

// Clone returns a shallow copy safe for independent mutation by a caller.
func (s LocalSet) Clone() LocalSet {
	out := make(LocalSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy safe for independent mutation by a caller.
func (s CloudSet) Clone() CloudSet {
	out := make(CloudSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
