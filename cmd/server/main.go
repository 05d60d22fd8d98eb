package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/pscheid92/signalpulse/internal/adapter/assessment"
	"github.com/pscheid92/signalpulse/internal/adapter/notify"
	"github.com/pscheid92/signalpulse/internal/adapter/postgres"
	redisadapter "github.com/pscheid92/signalpulse/internal/adapter/redis"
	"github.com/pscheid92/signalpulse/internal/app"
	"github.com/pscheid92/signalpulse/internal/dedup"
	"github.com/pscheid92/signalpulse/internal/domain"
	"github.com/pscheid92/signalpulse/internal/ensemble"
	"github.com/pscheid92/signalpulse/internal/metrics"
	"github.com/pscheid92/signalpulse/internal/platform/config"
	"github.com/pscheid92/signalpulse/internal/platform/logging"
	"github.com/pscheid92/signalpulse/internal/platform/version"
	"github.com/pscheid92/signalpulse/internal/server"
	"github.com/pscheid92/signalpulse/internal/threshold"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redisadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func instanceID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

func runGracefulShutdown(srv *server.Server, appSvc *app.Service) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		appSvc.Stop()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	build := version.Get()
	metrics.BuildInfo.WithLabelValues(build.Version, build.Commit, build.BuildTime, build.GoVersion).Set(1)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "build", build.String())

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(cfg)
	defer func() { _ = redisClient.Close() }()

	// Repositories
	sourceRepo := postgres.NewSourceRepo(pool)
	seenItemRepo := postgres.NewSeenItemRepo(pool)
	fingerprintRepo := postgres.NewFingerprintRepo(pool)
	signalRepo := postgres.NewSignalRepo(pool)
	predictorRepo := postgres.NewPredictorRepo(pool)
	predictionRepo := postgres.NewPredictionRepo(pool)
	analystRepo := postgres.NewAnalystRepo(pool)
	learningRepo := postgres.NewLearningRepo(pool)

	// Collaborators
	assessor := assessment.NewClient(cfg.AssessorURL, &http.Client{Timeout: cfg.AnalystCallTimeout})
	var notifier domain.Notifier = notify.LogNotifier{}
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.NotifyWebhookURL, &http.Client{Timeout: 10 * time.Second})
	}

	// Pipeline components
	gate := dedup.NewGate(seenItemRepo, fingerprintRepo, signalRepo, clock)
	resolver := ensemble.NewResolver(analystRepo, learningRepo)
	limiter := rate.NewLimiter(rate.Limit(cfg.AnalystCallsPerSec), 1)
	coordinator := ensemble.NewCoordinator(signalRepo, predictorRepo, resolver, assessor, limiter, clock, nil,
		ensemble.Config{
			MaxParallel:          cfg.AnalystMaxParallel,
			CallTimeout:          cfg.AnalystCallTimeout,
			MaxAttempts:          cfg.AnalystMaxAttempts,
			ClaimStaleAfter:      cfg.ClaimStaleAfter,
			ActionableConfidence: cfg.ActionableConfidence,
			ActionableConsensus:  cfg.ActionableConsensus,
			DisagreementFloor:    cfg.DisagreementFloor,
			PredictorTTL:         time.Duration(cfg.PredictorTTLHours * float64(time.Hour)),
		})
	emitter := threshold.NewEmitter(predictionRepo, notifier, clock)

	id := instanceID()
	appSvc := app.NewService(app.Dependencies{
		Sources:     sourceRepo,
		Signals:     signalRepo,
		Predictors:  predictorRepo,
		Predictions: predictionRepo,
		Gate:        gate,
		Coordinator: coordinator,
		Emitter:     emitter,
		Locker:      redisadapter.NewTargetLock(redisClient, cfg.EvaluationLockTTL),
		Leader:      redisadapter.NewLeaderElection(redisClient, id, 3*cfg.SweepInterval),
		InstanceID:  id,
	}, app.Config{
		WorkerCount:     cfg.WorkerCount,
		WorkerPollDelay: cfg.WorkerPollDelay,
		ClaimStaleAfter: cfg.ClaimStaleAfter,
		SignalTTL:       cfg.SignalTTL,
		SweepInterval:   cfg.SweepInterval,
		Threshold: domain.ThresholdConfig{
			MinPredictors:         cfg.MinPredictors,
			MinCombinedStrength:   cfg.MinCombinedStrength,
			MinDirectionConsensus: cfg.MinDirectionConsensus,
			PredictorTTLHours:     cfg.PredictorTTLHours,
			TimeDecayRate:         cfg.TimeDecayRate,
		},
	}, clock)
	appSvc.Start()

	srv := server.NewServer(cfg, appSvc, pool, redisClient)
	done := runGracefulShutdown(srv, appSvc)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
