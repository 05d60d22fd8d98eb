package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("ASSESSOR_URL", "http://localhost:9090")
}

func TestLoad_AllRequiredVarsSet(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.Equal(t, "8080", cfg.Port)
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MinPredictors)
	assert.Equal(t, 15.0, cfg.MinCombinedStrength)
	assert.Equal(t, 0.6, cfg.MinDirectionConsensus)
	assert.Equal(t, 24.0, cfg.PredictorTTLHours)
	assert.Equal(t, 0.05, cfg.TimeDecayRate)
	assert.Equal(t, 10*time.Minute, cfg.ClaimStaleAfter)
	assert.Equal(t, 4, cfg.AnalystMaxParallel)
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		skipEnv string
		wantErr string
	}{
		{"missing DATABASE_URL", "DATABASE_URL", "DATABASE_URL is required"},
		{"missing REDIS_URL", "REDIS_URL", "REDIS_URL is required"},
		{"missing ASSESSOR_URL", "ASSESSOR_URL", "ASSESSOR_URL is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.skipEnv, "")

			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero workers", "WORKER_COUNT", "0"},
		{"zero predictors", "MIN_PREDICTORS", "0"},
		{"consensus above one", "MIN_DIRECTION_CONSENSUS", "1.5"},
		{"negative decay rate", "TIME_DECAY_RATE", "-0.1"},
		{"zero ttl", "PREDICTOR_TTL_HOURS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
		})
	}
}
