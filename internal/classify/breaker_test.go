package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/routing-engine/internal/config"
)

func testBreaker(t *testing.T) *Breaker {
	t.Helper()
	return NewBreaker("test", config.BreakerConfig{
		FailureThreshold:   3,
		LatencyThresholdMS: 50,
		ResetTimeoutSec:    30,
	}, nil)
}

// rewind moves the last transition into the past so the reset timer fires
// without sleeping through it.
func rewind(b *Breaker, d time.Duration) {
	b.mu.Lock()
	b.lastTransition = b.lastTransition.Add(-d)
	b.mu.Unlock()
}

func failing(context.Context) error { return errors.New("boom") }
func succeeding(context.Context) error { return nil }

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := testBreaker(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.Error(t, b.Call(ctx, failing))
		assert.Equal(t, BreakerClosed, b.State())
	}

	require.Error(t, b.Call(ctx, failing))
	assert.Equal(t, BreakerOpen, b.State())

	err := b.Call(ctx, succeeding)
	assert.ErrorIs(t, err, ErrBreakerOpen)

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.AutoTrips)
	assert.Zero(t, stats.FailureCount, "counters reset on trip")
	assert.Greater(t, stats.SecondsUntilRetry, 0.0)
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b := testBreaker(t)
	ctx := context.Background()

	require.Error(t, b.Call(ctx, failing))
	require.Error(t, b.Call(ctx, failing))
	require.NoError(t, b.Call(ctx, succeeding))
	require.Error(t, b.Call(ctx, failing))
	require.Error(t, b.Call(ctx, failing))

	assert.Equal(t, BreakerClosed, b.State(), "streak was broken by the success")
}

func TestBreakerTripsOnSlowSuccess(t *testing.T) {
	b := testBreaker(t)

	err := b.Call(context.Background(), func(context.Context) error {
		time.Sleep(80 * time.Millisecond)
		return nil
	})

	require.NoError(t, err, "the slow call itself still succeeds")
	assert.Equal(t, BreakerOpen, b.State(), "latency SLO breach trips immediately")
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	ctx := context.Background()

	t.Run("trial success closes", func(t *testing.T) {
		b := testBreaker(t)
		for i := 0; i < 3; i++ {
			_ = b.Call(ctx, failing)
		}
		require.Equal(t, BreakerOpen, b.State())

		rewind(b, b.resetTimeout)
		assert.Equal(t, BreakerHalfOpen, b.State())

		require.NoError(t, b.Call(ctx, succeeding))
		assert.Equal(t, BreakerClosed, b.State())
	})

	t.Run("trial failure reopens", func(t *testing.T) {
		b := testBreaker(t)
		for i := 0; i < 3; i++ {
			_ = b.Call(ctx, failing)
		}
		rewind(b, b.resetTimeout)
		require.Equal(t, BreakerHalfOpen, b.State())

		require.Error(t, b.Call(ctx, failing))
		assert.Equal(t, BreakerOpen, b.State())
	})

	t.Run("single trial at a time", func(t *testing.T) {
		b := testBreaker(t)
		for i := 0; i < 3; i++ {
			_ = b.Call(ctx, failing)
		}
		rewind(b, b.resetTimeout)
		require.Equal(t, BreakerHalfOpen, b.State())

		started := make(chan struct{})
		release := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- b.Call(ctx, func(context.Context) error {
				close(started)
				<-release
				return nil
			})
		}()
		<-started

		err := b.Call(ctx, succeeding)
		assert.ErrorIs(t, err, ErrTrialInFlight)

		close(release)
		require.NoError(t, <-done)
		assert.Equal(t, BreakerClosed, b.State())
	})
}

func TestBreakerForceOpen(t *testing.T) {
	b := testBreaker(t)
	ctx := context.Background()

	b.ForceOpen()
	assert.ErrorIs(t, b.Call(ctx, succeeding), ErrBreakerOpen)

	stats := b.Stats()
	assert.True(t, stats.Forced)
	assert.Zero(t, stats.SecondsUntilRetry, "forced open has no retry timer")

	// A forced-open breaker never recovers on its own.
	rewind(b, 10*b.resetTimeout)
	assert.Equal(t, BreakerOpen, b.State())

	b.ForceClose()
	assert.Equal(t, BreakerClosed, b.State())
	assert.False(t, b.Stats().Forced)
	require.NoError(t, b.Call(ctx, succeeding))
}

func TestBreakerReset(t *testing.T) {
	b := testBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Call(ctx, failing)
	}
	require.Equal(t, BreakerOpen, b.State())

	b.Reset()
	stats := b.Stats()
	assert.Equal(t, BreakerClosed, stats.State)
	assert.Zero(t, stats.FailureCount)
	assert.Zero(t, stats.AverageLatency)
}
