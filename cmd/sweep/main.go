// Command sweep runs one maintenance pass (signal TTL expiry and predictor
// expiry) and exits. Meant for cron-style scheduling next to the server's
// built-in sweep timer.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/signalpulse/internal/adapter/postgres"
	"github.com/pscheid92/signalpulse/internal/app"
	"github.com/pscheid92/signalpulse/internal/platform/config"
	"github.com/pscheid92/signalpulse/internal/platform/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := app.NewService(app.Dependencies{
		Signals:    postgres.NewSignalRepo(pool),
		Predictors: postgres.NewPredictorRepo(pool),
	}, app.Config{
		SignalTTL: cfg.SignalTTL,
	}, clockwork.NewRealClock())

	svc.RunSweep(ctx)
	slog.Info("Sweep finished")
}
