package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutGuard_FastOperationCompletes(t *testing.T) {
	g := NewTimeoutGuard(time.Second)

	ran := false
	timedOut, err := g.Run(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, timedOut)
	assert.True(t, ran)
}

func TestTimeoutGuard_PropagatesOperationError(t *testing.T) {
	g := NewTimeoutGuard(time.Second)

	timedOut, err := g.Run(context.Background(), func(ctx context.Context) error {
		return assert.AnError
	})
	assert.False(t, timedOut)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestTimeoutGuard_SlowOperationTimesOut(t *testing.T) {
	g := NewTimeoutGuard(20 * time.Millisecond)

	start := time.Now()
	timedOut, err := g.Run(context.Background(), func(ctx context.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	require.NoError(t, err, "a timeout is a fallback condition, not a failure")
	assert.True(t, timedOut)
	assert.Less(t, time.Since(start), time.Second, "caller stops waiting at the deadline")
}

func TestTimeoutGuard_ParentCancellationIsAnError(t *testing.T) {
	g := NewTimeoutGuard(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	timedOut, err := g.Run(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.False(t, timedOut)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewTimeoutGuard_DefaultsNonPositive(t *testing.T) {
	g := NewTimeoutGuard(0)
	assert.Equal(t, DefaultVectorTimeout, g.timeout)
}
