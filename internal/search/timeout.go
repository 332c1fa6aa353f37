package search

import (
	"context"
	"time"
)

// TimeoutGuard bounds the vector path's latency. On expiry the guard stops
// waiting and the caller proceeds without the vector results; the operation
// itself keeps running on a cancelled context and its late outcome is
// discarded. A timeout is a fallback condition, not a failure.
type TimeoutGuard struct {
	timeout time.Duration
}

// DefaultVectorTimeout aligns with the semantic-query latency budget.
const DefaultVectorTimeout = 5 * time.Second

// NewTimeoutGuard creates a guard with the given deadline. Non-positive
// durations fall back to the default.
func NewTimeoutGuard(timeout time.Duration) *TimeoutGuard {
	if timeout <= 0 {
		timeout = DefaultVectorTimeout
	}
	return &TimeoutGuard{timeout: timeout}
}

// Run executes op under the guard's deadline. It returns timedOut=true when
// the deadline expired first; op's result is then ignored and err is nil.
// Parent-context cancellation is not a timeout and is returned as an error.
func (g *TimeoutGuard) Run(ctx context.Context, op func(context.Context) error) (timedOut bool, err error) {
	runCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(runCtx)
	}()

	select {
	case err := <-done:
		return false, err
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, nil
	}
}
