package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	AssessorURL string `env:"ASSESSOR_URL"`

	// Optional webhook for emitted predictions; logging is the fallback.
	NotifyWebhookURL string `env:"NOTIFY_WEBHOOK_URL"`
	LogLevel         string `env:"LOG_LEVEL" default:"info"`
	LogFormat        string `env:"LOG_FORMAT" default:"text"`

	// Signal claim workers.
	WorkerCount     int           `env:"WORKER_COUNT" default:"2"`
	WorkerPollDelay time.Duration `env:"WORKER_POLL_DELAY" default:"2s"`
	ClaimStaleAfter time.Duration `env:"CLAIM_STALE_AFTER" default:"10m"`
	SignalTTL       time.Duration `env:"SIGNAL_TTL" default:"48h"`

	// Analyst ensemble.
	AnalystMaxParallel   int           `env:"ANALYST_MAX_PARALLEL" default:"4"`
	AnalystCallTimeout   time.Duration `env:"ANALYST_CALL_TIMEOUT" default:"30s"`
	AnalystMaxAttempts   int           `env:"ANALYST_MAX_ATTEMPTS" default:"3"`
	AnalystCallsPerSec   float64       `env:"ANALYST_CALLS_PER_SEC" default:"5"`
	ActionableConfidence float64       `env:"ACTIONABLE_CONFIDENCE" default:"0.6"`
	ActionableConsensus  float64       `env:"ACTIONABLE_CONSENSUS" default:"0.6"`
	DisagreementFloor    float64       `env:"DISAGREEMENT_FLOOR" default:"0.45"`

	// Threshold evaluation.
	MinPredictors         int           `env:"MIN_PREDICTORS" default:"5"`
	MinCombinedStrength   float64       `env:"MIN_COMBINED_STRENGTH" default:"15"`
	MinDirectionConsensus float64       `env:"MIN_DIRECTION_CONSENSUS" default:"0.6"`
	PredictorTTLHours     float64       `env:"PREDICTOR_TTL_HOURS" default:"24"`
	TimeDecayRate         float64       `env:"TIME_DECAY_RATE" default:"0.05"`
	EvaluationLockTTL     time.Duration `env:"EVALUATION_LOCK_TTL" default:"30s"`

	// Maintenance sweeps.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" default:"5m"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"REDIS_URL":    cfg.RedisURL,
		"ASSESSOR_URL": cfg.AssessorURL,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if cfg.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1, got %d", cfg.WorkerCount)
	}
	if cfg.AnalystMaxParallel < 1 {
		return fmt.Errorf("ANALYST_MAX_PARALLEL must be at least 1, got %d", cfg.AnalystMaxParallel)
	}
	if cfg.AnalystMaxAttempts < 1 {
		return fmt.Errorf("ANALYST_MAX_ATTEMPTS must be at least 1, got %d", cfg.AnalystMaxAttempts)
	}
	if cfg.MinPredictors < 1 {
		return fmt.Errorf("MIN_PREDICTORS must be at least 1, got %d", cfg.MinPredictors)
	}
	if cfg.MinDirectionConsensus < 0 || cfg.MinDirectionConsensus > 1 {
		return fmt.Errorf("MIN_DIRECTION_CONSENSUS must be in [0,1], got %g", cfg.MinDirectionConsensus)
	}
	if cfg.PredictorTTLHours <= 0 {
		return fmt.Errorf("PREDICTOR_TTL_HOURS must be positive, got %g", cfg.PredictorTTLHours)
	}
	if cfg.TimeDecayRate < 0 {
		return fmt.Errorf("TIME_DECAY_RATE must not be negative, got %g", cfg.TimeDecayRate)
	}

	return nil
}
