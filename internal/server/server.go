package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/signalpulse/internal/app"
	"github.com/pscheid92/signalpulse/internal/dedup"
	"github.com/pscheid92/signalpulse/internal/domain"
	"github.com/pscheid92/signalpulse/internal/ensemble"
	apperrors "github.com/pscheid92/signalpulse/internal/errors"
	"github.com/pscheid92/signalpulse/internal/platform/config"
	"github.com/pscheid92/signalpulse/internal/platform/correlation"
)

// AppService is the slice of the application layer the handlers use.
type AppService interface {
	ProcessItem(ctx context.Context, sourceSlug string, item domain.CrawledItem) (*domain.ProcessItemResult, error)
	EvaluateSignal(ctx context.Context, signalID uuid.UUID) (*ensemble.Outcome, error)
	EvaluateTarget(ctx context.Context, targetID uuid.UUID) (*app.EvaluationReport, error)
	InvalidatePredictor(ctx context.Context, predictorID uuid.UUID) error
	DedupTally() dedup.Tally

	ListSources(ctx context.Context) ([]domain.Source, error)
	GetSignal(ctx context.Context, signalID uuid.UUID) (*domain.Signal, error)
	ListSignals(ctx context.Context, targetID uuid.UUID, disposition domain.Disposition, limit int) ([]domain.Signal, error)
	GetPredictor(ctx context.Context, predictorID uuid.UUID) (*domain.Predictor, error)
	ListPredictors(ctx context.Context, targetID uuid.UUID, status domain.PredictorStatus, limit int) ([]domain.Predictor, error)
	GetPrediction(ctx context.Context, predictionID uuid.UUID) (*domain.Prediction, error)
	ListPredictions(ctx context.Context, targetID uuid.UUID, limit int) ([]domain.Prediction, error)
}

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	app         AppService
	pool        *pgxpool.Pool
	redisClient *goredis.Client
	startTime   time.Time
}

// NewServer wires the HTTP layer. pool and redisClient are only used by the
// readiness probe and may be nil in tests.
func NewServer(cfg *config.Config, application AppService, pool *pgxpool.Pool, redisClient *goredis.Client) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(correlationMiddleware())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:        e,
		config:      cfg,
		app:         application,
		pool:        pool,
		redisClient: redisClient,
		startTime:   time.Now(),
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// correlationMiddleware attaches a correlation ID to every request context,
// reusing the caller's header when one is sent.
func correlationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(correlation.HeaderName)
			if id == "" {
				id = correlation.NewID()
			}
			ctx := correlation.WithID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(correlation.HeaderName, id)
			return next(c)
		}
	}
}
