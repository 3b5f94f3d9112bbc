package classify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/routing-engine/internal/config"
	"github.com/spec-kit/routing-engine/internal/domain"
)

// Model identifies which classifier produced a result.
type Model string

const (
	ModelPrimary  Model = "primary"
	ModelFallback Model = "fallback"
)

// Result is the outcome of a classification pass.
type Result struct {
	Category       domain.Category
	Urgency        float64
	Model          Model
	ProcessingTime time.Duration
}

// Pipeline produces (category, urgency) for a ticket using a primary
// classifier guarded by the circuit breaker with the keyword classifier as a
// deterministic fallback. Intake always gets a result; classifier failure
// degrades quality, not availability.
type Pipeline struct {
	primary  Classifier
	fallback Classifier
	breaker  *Breaker
	timeout  time.Duration
	logger   *zap.Logger
}

// NewPipeline constructs the classification pipeline. The hard timeout on
// primary calls equals the breaker latency threshold, so a hung call is
// recorded as a breaker failure rather than blocking intake.
func NewPipeline(primary Classifier, fallback Classifier, breaker *Breaker, cfg config.BreakerConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		primary:  primary,
		fallback: fallback,
		breaker:  breaker,
		timeout:  cfg.LatencyThreshold(),
		logger:   logger,
	}
}

// Classify runs the pipeline over the combined ticket text. The returned
// urgency is always in [0,1] regardless of which path produced it.
func (p *Pipeline) Classify(ctx context.Context, subject, description string) Result {
	start := time.Now()
	text := subject + " " + description

	if p.primary != nil && p.breaker != nil {
		var (
			category domain.Category
			urgency  float64
		)
		err := p.breaker.Call(ctx, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			var callErr error
			category, urgency, callErr = p.primary.Classify(callCtx, text)
			return callErr
		})
		if err == nil {
			return Result{
				Category:       category,
				Urgency:        clamp01(urgency),
				Model:          ModelPrimary,
				ProcessingTime: time.Since(start),
			}
		}
		if !errors.Is(err, ErrBreakerOpen) && !errors.Is(err, ErrTrialInFlight) && p.logger != nil {
			p.logger.Warn("primary classifier failed, using fallback", zap.Error(err))
		}
	}

	category, urgency, _ := p.fallback.Classify(ctx, text)
	return Result{
		Category:       category,
		Urgency:        clamp01(urgency),
		Model:          ModelFallback,
		ProcessingTime: time.Since(start),
	}
}

// Breaker exposes the guarded breaker for stats and the control surface.
func (p *Pipeline) Breaker() *Breaker {
	return p.breaker
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
