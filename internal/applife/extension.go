package applife

import (
	"context"
	"time"
)

// DefaultExtensionBudget bounds how long an in-flight batch may keep running
// past a background transition before the orchestrator pauses its watchers.
const DefaultExtensionBudget = 25 * time.Second

// RequestExtension stands in for the host's background-execution-time API:
// it returns a context that expires budget after the call, unaffected by
// ctx's own cancellation or deadline, and a cancel func the caller must
// invoke once its extended work is done.
func RequestExtension(ctx context.Context, budget time.Duration) (context.Context, func()) {
	return context.WithTimeout(detach(ctx), budget)
}

// detach strips any deadline/cancellation already on ctx while preserving
// its values, so a background-transition context doesn't immediately expire
// the extension it's meant to grant.
func detach(ctx context.Context) context.Context {
	return valuesOnly{ctx}
}

type valuesOnly struct {
	context.Context
}

func (valuesOnly) Deadline() (time.Time, bool) { return time.Time{}, false }
func (valuesOnly) Done() <-chan struct{}       { return nil }
func (valuesOnly) Err() error                  { return nil }
