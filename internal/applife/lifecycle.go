// Package applife substitutes process-level signals for the application
// foreground/background transitions a mobile host would deliver natively.
package applife

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
)

// AppLifecycle reports foreground/background transitions. Foreground fires
// once at process start; Background fires once SIGINT or SIGTERM arrives.
type AppLifecycle interface {
	Foreground() <-chan struct{}
	Background() <-chan struct{}
}

// SignalLifecycle is the process-signal-driven AppLifecycle: a Go daemon has
// no OS-level foreground/background notion, so process start stands in for
// "foreground" and SIGINT/SIGTERM stands in for "background", matching the
// signal handling in the teacher's command entrypoint.
type SignalLifecycle struct {
	foreground chan struct{}
	background chan struct{}
	stop       context.CancelFunc
}

// NewSignalLifecycle builds a SignalLifecycle bound to parent. Call Stop to
// release the underlying signal notification when the process shuts down.
func NewSignalLifecycle(parent context.Context) *SignalLifecycle {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)

	l := &SignalLifecycle{
		foreground: make(chan struct{}),
		background: make(chan struct{}),
		stop:       stop,
	}

	close(l.foreground) // a running process is always already foregrounded

	go func() {
		<-ctx.Done()
		slog.Info("applife: background transition requested")
		close(l.background)
	}()

	return l
}

func (l *SignalLifecycle) Foreground() <-chan struct{} { return l.foreground }
func (l *SignalLifecycle) Background() <-chan struct{} { return l.background }

// Stop releases the signal notification without waiting for a signal.
func (l *SignalLifecycle) Stop() {
	l.stop()
}
