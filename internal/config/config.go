package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the engine.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Classifier ClassifierConfig
	Breaker    BreakerConfig
	Scheduler  SchedulerConfig
	Broker     BrokerConfig
	Dedup      DedupConfig
	Worker     WorkerConfig
	Alert      AlertConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds connection values for the archive store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values for the broker.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// ClassifierConfig locates the primary classification model. An empty
// endpoint runs the engine on the keyword classifier alone.
type ClassifierConfig struct {
	ModelEndpoint string
}

// BreakerConfig tunes the classifier circuit breaker.
type BreakerConfig struct {
	FailureThreshold   int
	LatencyThresholdMS int
	ResetTimeoutSec    int
}

// SchedulerConfig tunes dispatch and preemption behavior.
type SchedulerConfig struct {
	// PreemptionMargin is the priority gap the queue head must exceed over
	// every qualified active ticket before preemption is considered.
	PreemptionMargin float64
	HistoryWindow    int
}

// BrokerConfig tunes the async intake boundary.
type BrokerConfig struct {
	MaxRetries int
	// LeaseTTLSec bounds how long a worker may hold a lease before the broker
	// reclaims it; zero disables expiry.
	LeaseTTLSec  int
	QueuePrefix  string
	DialTimeoutS int
}

// DedupConfig tunes incident clustering.
type DedupConfig struct {
	SimilarityThreshold float64
	WindowMinutes       int
	StormCountThreshold int
}

// WorkerConfig controls the dispatch worker pool.
type WorkerConfig struct {
	Count          int
	PollIntervalMS int
}

// AlertConfig controls high-urgency alert events.
type AlertConfig struct {
	HighUrgencyThreshold float64
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "routing-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Classifier: ClassifierConfig{
			ModelEndpoint: os.Getenv("CLASSIFIER_MODEL_ENDPOINT"),
		},
		Breaker: BreakerConfig{
			FailureThreshold:   getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
			LatencyThresholdMS: getEnvAsInt("BREAKER_LATENCY_THRESHOLD_MS", 500),
			ResetTimeoutSec:    getEnvAsInt("BREAKER_RESET_TIMEOUT_SECONDS", 30),
		},
		Scheduler: SchedulerConfig{
			PreemptionMargin: getEnvAsFloat("SCHEDULER_PREEMPTION_MARGIN", 0.2),
			HistoryWindow:    getEnvAsInt("SCHEDULER_HISTORY_WINDOW", 100),
		},
		Broker: BrokerConfig{
			MaxRetries:   getEnvAsInt("BROKER_MAX_RETRIES", 3),
			LeaseTTLSec:  getEnvAsInt("BROKER_LEASE_TTL_SECONDS", 60),
			QueuePrefix:  getEnv("BROKER_QUEUE_PREFIX", "tickets"),
			DialTimeoutS: getEnvAsInt("BROKER_DIAL_TIMEOUT_SECONDS", 5),
		},
		Dedup: DedupConfig{
			SimilarityThreshold: getEnvAsFloat("DEDUP_SIMILARITY_THRESHOLD", 0.9),
			WindowMinutes:       getEnvAsInt("DEDUP_WINDOW_MINUTES", 5),
			StormCountThreshold: getEnvAsInt("DEDUP_STORM_COUNT_THRESHOLD", 10),
		},
		Worker: WorkerConfig{
			Count:          getEnvAsInt("WORKER_COUNT", 4),
			PollIntervalMS: getEnvAsInt("WORKER_POLL_INTERVAL_MS", 100),
		},
		Alert: AlertConfig{
			HighUrgencyThreshold: getEnvAsFloat("ALERT_HIGH_URGENCY_THRESHOLD", 0.8),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects threshold values the engine cannot run with. Errors here
// are fatal at startup; nothing recovers from a bad configuration at runtime.
func (c *Config) Validate() error {
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be positive, got %d", c.Breaker.FailureThreshold)
	}
	if c.Breaker.LatencyThresholdMS <= 0 {
		return fmt.Errorf("BREAKER_LATENCY_THRESHOLD_MS must be positive, got %d", c.Breaker.LatencyThresholdMS)
	}
	if c.Breaker.ResetTimeoutSec <= 0 {
		return fmt.Errorf("BREAKER_RESET_TIMEOUT_SECONDS must be positive, got %d", c.Breaker.ResetTimeoutSec)
	}
	if c.Scheduler.PreemptionMargin < 0 || c.Scheduler.PreemptionMargin > 1 {
		return fmt.Errorf("SCHEDULER_PREEMPTION_MARGIN must be in [0,1], got %f", c.Scheduler.PreemptionMargin)
	}
	if c.Broker.MaxRetries < 0 {
		return fmt.Errorf("BROKER_MAX_RETRIES must not be negative, got %d", c.Broker.MaxRetries)
	}
	if c.Broker.LeaseTTLSec < 0 {
		return fmt.Errorf("BROKER_LEASE_TTL_SECONDS must not be negative, got %d", c.Broker.LeaseTTLSec)
	}
	if c.Dedup.SimilarityThreshold <= 0 || c.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("DEDUP_SIMILARITY_THRESHOLD must be in (0,1], got %f", c.Dedup.SimilarityThreshold)
	}
	if c.Dedup.WindowMinutes <= 0 {
		return fmt.Errorf("DEDUP_WINDOW_MINUTES must be positive, got %d", c.Dedup.WindowMinutes)
	}
	if c.Alert.HighUrgencyThreshold < 0 || c.Alert.HighUrgencyThreshold > 1 {
		return fmt.Errorf("ALERT_HIGH_URGENCY_THRESHOLD must be in [0,1], got %f", c.Alert.HighUrgencyThreshold)
	}
	if c.Worker.Count <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive, got %d", c.Worker.Count)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// LatencyThreshold returns the breaker latency SLO as a duration.
func (b BreakerConfig) LatencyThreshold() time.Duration {
	return time.Duration(b.LatencyThresholdMS) * time.Millisecond
}

// ResetTimeout returns the OPEN to HALF_OPEN cooldown as a duration.
func (b BreakerConfig) ResetTimeout() time.Duration {
	return time.Duration(b.ResetTimeoutSec) * time.Second
}

// Window returns the dedup comparison window as a duration.
func (d DedupConfig) Window() time.Duration {
	return time.Duration(d.WindowMinutes) * time.Minute
}

// LeaseTTL returns the lease lifetime as a duration.
func (b BrokerConfig) LeaseTTL() time.Duration {
	return time.Duration(b.LeaseTTLSec) * time.Second
}

// PollInterval returns the worker poll interval as a duration.
func (w WorkerConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalMS) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
