package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	// Intake
	s.echo.GET("/api/sources", s.handleListSources)
	s.echo.POST("/api/sources/:slug/items", s.handleProcessItem)
	s.echo.GET("/api/dedup/stats", s.handleDedupStats)

	// Signals
	s.echo.GET("/api/signals/:id", s.handleGetSignal)
	s.echo.POST("/api/signals/:id/evaluate", s.handleEvaluateSignal)
	s.echo.GET("/api/targets/:id/signals", s.handleListSignals)

	// Predictors
	s.echo.GET("/api/predictors/:id", s.handleGetPredictor)
	s.echo.POST("/api/predictors/:id/invalidate", s.handleInvalidatePredictor)
	s.echo.GET("/api/targets/:id/predictors", s.handleListPredictors)

	// Threshold evaluation and predictions
	s.echo.POST("/api/targets/:id/evaluate", s.handleEvaluateTarget)
	s.echo.GET("/api/targets/:id/predictions", s.handleListPredictions)
	s.echo.GET("/api/predictions/:id", s.handleGetPrediction)
}
