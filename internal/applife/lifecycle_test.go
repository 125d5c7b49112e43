package applife

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalLifecycle_ForegroundIsImmediatelyReady(t *testing.T) {
	l := NewSignalLifecycle(context.Background())
	defer l.Stop()

	select {
	case <-l.Foreground():
	default:
		t.Fatal("expected Foreground() to already be closed at construction")
	}
}

func TestSignalLifecycle_BackgroundFiresOnSignal(t *testing.T) {
	l := NewSignalLifecycle(context.Background())
	defer l.Stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case <-l.Background():
	case <-time.After(2 * time.Second):
		t.Fatal("expected Background() to fire after SIGTERM")
	}
}

func TestRequestExtension_SurvivesParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ext, done := RequestExtension(parent, 50*time.Millisecond)
	defer done()

	cancel()

	select {
	case <-ext.Done():
		t.Fatal("extension context should not be cancelled by parent cancellation")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestRequestExtension_ExpiresAfterBudget(t *testing.T) {
	ext, done := RequestExtension(context.Background(), 10*time.Millisecond)
	defer done()

	select {
	case <-ext.Done():
		assert.ErrorIs(t, ext.Err(), context.DeadlineExceeded)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected extension to expire")
	}
}
