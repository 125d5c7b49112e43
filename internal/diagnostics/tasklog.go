// Package diagnostics persists a history of executed synchronization
// actions for status reporting and postmortem debugging. It holds no
// authoritative state of its own; the Reconciler's in-memory snapshots
// remain the source of truth for what is currently synced.
package diagnostics

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ubisync/syncd/internal/db"
	"github.com/ubisync/syncd/internal/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS task_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    item_name TEXT NOT NULL,
    outcome TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    occurred_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_task_log_item_name ON task_log(item_name);
CREATE INDEX IF NOT EXISTS idx_task_log_occurred_at ON task_log(occurred_at);
`

// Outcome classifies how an executed task ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Entry is one row of task history.
type Entry struct {
	ID         int64     `db:"id"`
	Name       string    `db:"name"`
	ItemName   string    `db:"item_name"`
	Outcome    Outcome   `db:"outcome"`
	Detail     string    `db:"detail"`
	OccurredAt time.Time `db:"-"`
}

type dbEntry struct {
	ID         int64  `db:"id"`
	Name       string `db:"name"`
	ItemName   string `db:"item_name"`
	Outcome    string `db:"outcome"`
	Detail     string `db:"detail"`
	OccurredAt string `db:"occurred_at"`
}

// TaskLog is a SQLite-backed append-only history of dispatched
// OutgoingEvents.
type TaskLog struct {
	db     *sqlx.DB
	dbPath string
}

// NewTaskLog prepares a TaskLog backed by the SQLite file at dbPath. Call
// Open before use.
func NewTaskLog(dbPath string) *TaskLog {
	return &TaskLog{dbPath: dbPath}
}

// Open creates or migrates the schema and connects.
func (t *TaskLog) Open() error {
	if t.db != nil {
		return fmt.Errorf("task log already open")
	}

	if err := utils.EnsureParent(t.dbPath); err != nil {
		return fmt.Errorf("create task log directory: %w", err)
	}

	conn, err := db.NewSqliteDB(db.WithPath(t.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("open task log: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return fmt.Errorf("initialize task log schema: %w", err)
	}

	t.db = conn
	return nil
}

// Close releases the underlying connection.
func (t *TaskLog) Close() error {
	if t.db == nil {
		return fmt.Errorf("task log not open")
	}
	if err := t.db.Close(); err != nil {
		slog.Error("failed to close task log", "error", err)
		return err
	}
	return nil
}

// Record appends one entry. name identifies the OutgoingEvent variant
// (e.g. "CreateLocal"), itemName is the affected file, detail carries an
// error message on failure or is empty on success.
func (t *TaskLog) Record(name, itemName string, outcome Outcome, detail string) error {
	_, err := t.db.Exec(
		`INSERT INTO task_log (name, item_name, outcome, detail, occurred_at) VALUES (?, ?, ?, ?, ?)`,
		name, itemName, string(outcome), detail, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record task log entry: %w", err)
	}
	return nil
}

// Recent returns the last n entries, most recent first.
func (t *TaskLog) Recent(n int) ([]Entry, error) {
	var rows []dbEntry
	err := t.db.Select(&rows,
		`SELECT id, name, item_name, outcome, detail, occurred_at FROM task_log ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent task log entries: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		occurredAt, err := time.Parse(time.RFC3339Nano, r.OccurredAt)
		if err != nil {
			slog.Warn("task log entry has unparsable timestamp", "id", r.ID, "value", r.OccurredAt)
			continue
		}
		entries = append(entries, Entry{
			ID:         r.ID,
			Name:       r.Name,
			ItemName:   r.ItemName,
			Outcome:    Outcome(r.Outcome),
			Detail:     r.Detail,
			OccurredAt: occurredAt,
		})
	}
	return entries, nil
}

// FailureCount returns how many entries for itemName ended in failure.
func (t *TaskLog) FailureCount(itemName string) (int, error) {
	var count int
	err := t.db.Get(&count,
		`SELECT COUNT(*) FROM task_log WHERE item_name = ? AND outcome = ?`, itemName, string(OutcomeFailed))
	if err != nil {
		return 0, fmt.Errorf("count failures for %s: %w", itemName, err)
	}
	return count, nil
}
