package classify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/routing-engine/internal/config"
	"github.com/spec-kit/routing-engine/internal/domain"
)

type stubClassifier struct {
	category domain.Category
	urgency  float64
	err      error
	calls    atomic.Int64
}

func (s *stubClassifier) Classify(context.Context, string) (domain.Category, float64, error) {
	s.calls.Add(1)
	return s.category, s.urgency, s.err
}

func testPipeline(t *testing.T, primary Classifier) (*Pipeline, *Breaker) {
	t.Helper()
	cfg := config.BreakerConfig{
		FailureThreshold:   3,
		LatencyThresholdMS: 50,
		ResetTimeoutSec:    30,
	}
	b := NewBreaker("classifier", cfg, nil)
	return NewPipeline(primary, NewKeywordClassifier(), b, cfg, nil), b
}

func TestPipelinePrimaryResult(t *testing.T) {
	primary := &stubClassifier{category: domain.CategoryLegal, urgency: 0.65}
	p, _ := testPipeline(t, primary)

	result := p.Classify(context.Background(), "question", "about our contract")

	assert.Equal(t, ModelPrimary, result.Model)
	assert.Equal(t, domain.CategoryLegal, result.Category)
	assert.InDelta(t, 0.65, result.Urgency, 1e-9)
}

func TestPipelineFallbackOnPrimaryError(t *testing.T) {
	primary := &stubClassifier{err: errors.New("model unavailable")}
	p, b := testPipeline(t, primary)

	result := p.Classify(context.Background(), "invoice question", "wrong charge on my invoice")

	assert.Equal(t, ModelFallback, result.Model)
	assert.Equal(t, domain.CategoryBilling, result.Category)
	assert.Equal(t, BreakerClosed, b.State(), "one failure does not trip")
}

func TestPipelineOpenBreakerSkipsPrimary(t *testing.T) {
	primary := &stubClassifier{err: errors.New("model unavailable")}
	p, b := testPipeline(t, primary)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p.Classify(ctx, "server down", "everything is broken")
	}
	require.Equal(t, BreakerOpen, b.State())
	callsWhenOpened := primary.calls.Load()

	result := p.Classify(ctx, "urgent", "server is down again")

	assert.Equal(t, ModelFallback, result.Model)
	assert.Equal(t, domain.CategoryTechnical, result.Category)
	assert.InDelta(t, 1.0, result.Urgency, 1e-9)
	assert.Equal(t, callsWhenOpened, primary.calls.Load(), "open breaker never invokes the primary")
}

func TestPipelineClampsUrgency(t *testing.T) {
	primary := &stubClassifier{category: domain.CategoryGeneral, urgency: 1.7}
	p, _ := testPipeline(t, primary)

	result := p.Classify(context.Background(), "hello", "just checking in")

	assert.Equal(t, 1.0, result.Urgency)
}
