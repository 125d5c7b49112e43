package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReloader_FiresOnWriteToWatchedFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	ignorePath := filepath.Join(dir, ".syncignore")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(ignorePath, []byte(""), 0o644))

	var hits int32
	r, err := NewReloader(func(path string) {
		atomic.AddInt32(&hits, 1)
	}, cfgPath, ignorePath)
	require.NoError(t, err)
	defer r.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"cloud_bucket":"b"}`), 0o644))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&hits) > 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestReloader_IgnoresUnwatchedFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	otherPath := filepath.Join(dir, "unrelated.txt")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{}"), 0o644))

	var hits int32
	r, err := NewReloader(func(path string) {
		atomic.AddInt32(&hits, 1)
	}, cfgPath)
	require.NoError(t, err)
	defer r.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(otherPath, []byte("noise"), 0o644))
	time.Sleep(200 * time.Millisecond)

	require.Equal(t, int32(0), atomic.LoadInt32(&hits))
}
