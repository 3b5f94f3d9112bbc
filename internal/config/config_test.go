package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "routing-engine", cfg.App.Name)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.Breaker.LatencyThreshold())
	assert.Equal(t, 30*time.Second, cfg.Breaker.ResetTimeout())
	assert.InDelta(t, 0.2, cfg.Scheduler.PreemptionMargin, 1e-9)
	assert.Equal(t, 3, cfg.Broker.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.Broker.LeaseTTL())
	assert.InDelta(t, 0.9, cfg.Dedup.SimilarityThreshold, 1e-9)
	assert.Equal(t, 5*time.Minute, cfg.Dedup.Window())
	assert.Equal(t, 10, cfg.Dedup.StormCountThreshold)
	assert.Equal(t, 4, cfg.Worker.Count)
	assert.Equal(t, 100*time.Millisecond, cfg.Worker.PollInterval())
	assert.InDelta(t, 0.8, cfg.Alert.HighUrgencyThreshold, 1e-9)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "2")
	t.Setenv("SCHEDULER_PREEMPTION_MARGIN", "0.35")
	t.Setenv("WORKER_COUNT", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Breaker.FailureThreshold)
	assert.InDelta(t, 0.35, cfg.Scheduler.PreemptionMargin, 1e-9)
	assert.Equal(t, 8, cfg.Worker.Count)
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"zero failure threshold", map[string]string{"BREAKER_FAILURE_THRESHOLD": "0"}},
		{"negative latency", map[string]string{"BREAKER_LATENCY_THRESHOLD_MS": "-5"}},
		{"margin above one", map[string]string{"SCHEDULER_PREEMPTION_MARGIN": "1.5"}},
		{"similarity above one", map[string]string{"DEDUP_SIMILARITY_THRESHOLD": "1.2"}},
		{"zero dedup window", map[string]string{"DEDUP_WINDOW_MINUTES": "0"}},
		{"negative lease ttl", map[string]string{"BROKER_LEASE_TTL_SECONDS": "-1"}},
		{"zero workers", map[string]string{"WORKER_COUNT": "0"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for key, val := range tc.env {
				t.Setenv(key, val)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
