package classify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/routing-engine/internal/config"
)

// BreakerState represents the circuit breaker state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// ErrBreakerOpen is returned without invoking the operation while the
// breaker is OPEN; callers substitute the fallback path.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// ErrTrialInFlight is returned when a HALF_OPEN trial call is already running.
var ErrTrialInFlight = errors.New("half-open trial already in flight")

const latencyHistorySize = 100

// Breaker guards an unreliable dependency with a latency and failure tripped
// failover switch. A slow success counts as a failure: the threshold is a
// latency SLO, not just a correctness check.
type Breaker struct {
	name             string
	failureThreshold int
	latencyThreshold time.Duration
	resetTimeout     time.Duration
	logger           *zap.Logger

	mu             sync.Mutex
	state          BreakerState
	failureCount   int
	successCount   int
	lastTransition time.Time
	trialInFlight  bool
	forced         bool
	autoTrips      uint64
	latencies      []time.Duration
}

// BreakerStats is a read-only snapshot for observability.
type BreakerStats struct {
	Name              string        `json:"name"`
	State             BreakerState  `json:"state"`
	FailureCount      int           `json:"failure_count"`
	SuccessCount      int           `json:"success_count"`
	AverageLatency    time.Duration `json:"average_latency"`
	SecondsUntilRetry float64       `json:"seconds_until_retry"`
	Forced            bool          `json:"forced"`
	AutoTrips         uint64        `json:"auto_trips"`
}

// NewBreaker constructs a breaker from validated configuration.
func NewBreaker(name string, cfg config.BreakerConfig, logger *zap.Logger) *Breaker {
	return &Breaker{
		name:             name,
		failureThreshold: cfg.FailureThreshold,
		latencyThreshold: cfg.LatencyThreshold(),
		resetTimeout:     cfg.ResetTimeout(),
		logger:           logger,
		state:            BreakerClosed,
		lastTransition:   time.Now(),
	}
}

// Call executes op, observing latency and success or failure. While OPEN it
// returns ErrBreakerOpen without invoking op. In HALF_OPEN exactly one trial
// call is admitted at a time.
func (b *Breaker) Call(ctx context.Context, op func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	start := time.Now()
	err := op(ctx)
	latency := time.Since(start)

	b.record(err, latency)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpenLocked()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		return ErrBreakerOpen
	case BreakerHalfOpen:
		if b.trialInFlight {
			return ErrTrialInFlight
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

func (b *Breaker) record(err error, latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.latencies = append(b.latencies, latency)
	if len(b.latencies) > latencyHistorySize {
		b.latencies = b.latencies[1:]
	}

	failed := err != nil || latency > b.latencyThreshold

	switch b.state {
	case BreakerClosed:
		if failed {
			b.failureCount++
			if b.failureCount >= b.failureThreshold || latency > b.latencyThreshold {
				b.tripLocked()
			}
		} else {
			b.successCount++
			b.failureCount = 0
		}
	case BreakerHalfOpen:
		b.trialInFlight = false
		if failed {
			b.transitionLocked(BreakerOpen)
		} else {
			b.successCount++
			b.transitionLocked(BreakerClosed)
		}
	case BreakerOpen:
		// A call already in flight when the breaker opened; nothing to do.
	}
}

// tripLocked performs the CLOSED to OPEN transition, resetting counters.
func (b *Breaker) tripLocked() {
	b.autoTrips++
	b.failureCount = 0
	b.successCount = 0
	b.transitionLocked(BreakerOpen)
}

func (b *Breaker) maybeHalfOpenLocked() {
	if b.state == BreakerOpen && !b.forced && time.Since(b.lastTransition) >= b.resetTimeout {
		b.transitionLocked(BreakerHalfOpen)
	}
}

func (b *Breaker) transitionLocked(next BreakerState) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.lastTransition = time.Now()
	if b.logger != nil {
		b.logger.Info("breaker state change",
			zap.String("breaker", b.name),
			zap.String("from", string(prev)),
			zap.String("to", string(next)))
	}
}

// Available reports whether the breaker admits calls.
func (b *Breaker) Available() bool {
	return b.State() != BreakerOpen
}

// State returns the current state, applying the OPEN to HALF_OPEN timer.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

// ForceOpen opens the breaker manually. A forced-open breaker never moves to
// HALF_OPEN on its own; only ForceClose or Reset clears it.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forced = true
	b.transitionLocked(BreakerOpen)
}

// ForceClose closes the breaker manually and clears the forced flag.
func (b *Breaker) ForceClose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forced = false
	b.failureCount = 0
	b.successCount = 0
	b.trialInFlight = false
	b.transitionLocked(BreakerClosed)
}

// Reset restores automatic operation from a clean CLOSED state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forced = false
	b.failureCount = 0
	b.successCount = 0
	b.trialInFlight = false
	b.latencies = b.latencies[:0]
	b.transitionLocked(BreakerClosed)
}

// Stats returns a read-only snapshot of breaker counters.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()

	var avg time.Duration
	if len(b.latencies) > 0 {
		var total time.Duration
		for _, l := range b.latencies {
			total += l
		}
		avg = total / time.Duration(len(b.latencies))
	}

	var untilRetry float64
	if b.state == BreakerOpen && !b.forced {
		remaining := b.resetTimeout - time.Since(b.lastTransition)
		if remaining > 0 {
			untilRetry = remaining.Seconds()
		}
	}

	return BreakerStats{
		Name:              b.name,
		State:             b.state,
		FailureCount:      b.failureCount,
		SuccessCount:      b.successCount,
		AverageLatency:    avg,
		SecondsUntilRetry: untilRetry,
		Forced:            b.forced,
		AutoTrips:         b.autoTrips,
	}
}
