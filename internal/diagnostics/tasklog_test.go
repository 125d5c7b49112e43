package diagnostics

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *TaskLog {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "diagnostics.db")
	log := NewTaskLog(dbPath)
	require.NoError(t, log.Open())
	t.Cleanup(func() { log.Close() })
	return log
}

func TestTaskLog_RecordAndRecent(t *testing.T) {
	log := openTestLog(t)

	require.NoError(t, log.Record("CreateLocal", "notes/a.md", OutcomeSucceeded, ""))
	require.NoError(t, log.Record("UpdateCloud", "notes/a.md", OutcomeFailed, "connection reset"))

	entries, err := log.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "UpdateCloud", entries[0].Name)
	require.Equal(t, OutcomeFailed, entries[0].Outcome)
	require.Equal(t, "connection reset", entries[0].Detail)
	require.Equal(t, "CreateLocal", entries[1].Name)
}

func TestTaskLog_RecentRespectsLimit(t *testing.T) {
	log := openTestLog(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, log.Record("UpdateLocal", "x.md", OutcomeSucceeded, ""))
	}

	entries, err := log.Recent(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestTaskLog_FailureCount(t *testing.T) {
	log := openTestLog(t)

	require.NoError(t, log.Record("CreateCloud", "a.md", OutcomeFailed, "boom"))
	require.NoError(t, log.Record("CreateCloud", "a.md", OutcomeFailed, "boom again"))
	require.NoError(t, log.Record("CreateCloud", "b.md", OutcomeSucceeded, ""))

	count, err := log.FailureCount("a.md")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	count, err = log.FailureCount("b.md")
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
