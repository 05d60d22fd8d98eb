package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pscheid92/signalpulse/internal/domain"
	apperrors "github.com/pscheid92/signalpulse/internal/errors"
)

const defaultListLimit = 50

func parseIDParam(c echo.Context) (uuid.UUID, error) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.ValidationError("invalid UUID format").WithContext("id", raw)
	}
	return id, nil
}

func parseLimit(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > 500 {
		return 0, apperrors.ValidationError("limit must be an integer in [1,500]").WithContext("limit", raw)
	}
	return limit, nil
}

func (s *Server) handleListSources(c echo.Context) error {
	sources, err := s.app.ListSources(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to list sources", err)
	}
	return c.JSON(http.StatusOK, sources)
}

func (s *Server) handleProcessItem(c echo.Context) error {
	slug := c.Param("slug")

	var item domain.CrawledItem
	if err := c.Bind(&item); err != nil {
		return apperrors.ValidationError("invalid item payload")
	}
	if item.Title == "" && item.Content == "" {
		return apperrors.ValidationError("item needs a title or content")
	}

	result, err := s.app.ProcessItem(c.Request().Context(), slug, item)
	if err != nil {
		if errors.Is(err, domain.ErrSourceNotFound) {
			return apperrors.NotFoundError("source not found").WithContext("slug", slug)
		}
		return apperrors.InternalError("failed to process item", err).WithContext("slug", slug)
	}

	status := http.StatusOK
	if result.IsNew {
		status = http.StatusCreated
	}
	if err := c.JSON(status, result); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleDedupStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.app.DedupTally())
}

func (s *Server) handleGetSignal(c echo.Context) error {
	signalID, err := parseIDParam(c)
	if err != nil {
		return err
	}

	signal, err := s.app.GetSignal(c.Request().Context(), signalID)
	if err != nil {
		if errors.Is(err, domain.ErrSignalNotFound) {
			return apperrors.NotFoundError("signal not found").WithContext("signal_id", signalID.String())
		}
		return apperrors.InternalError("failed to load signal", err)
	}
	return c.JSON(http.StatusOK, signal)
}

func (s *Server) handleEvaluateSignal(c echo.Context) error {
	signalID, err := parseIDParam(c)
	if err != nil {
		return err
	}

	outcome, err := s.app.EvaluateSignal(c.Request().Context(), signalID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSignalNotFound):
			return apperrors.NotFoundError("signal not found").WithContext("signal_id", signalID.String())
		case errors.Is(err, domain.ErrSignalClaimed):
			return apperrors.ConflictError("signal claimed by another worker").WithContext("signal_id", signalID.String())
		case errors.Is(err, domain.ErrSignalTerminal):
			return apperrors.ConflictError("signal already evaluated").WithContext("signal_id", signalID.String())
		default:
			return apperrors.InternalError("signal evaluation failed", err).WithContext("signal_id", signalID.String())
		}
	}
	return c.JSON(http.StatusOK, outcome)
}

func (s *Server) handleListSignals(c echo.Context) error {
	targetID, err := parseIDParam(c)
	if err != nil {
		return err
	}
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}

	signals, err := s.app.ListSignals(c.Request().Context(), targetID, domain.Disposition(c.QueryParam("disposition")), limit)
	if err != nil {
		return apperrors.InternalError("failed to list signals", err)
	}
	return c.JSON(http.StatusOK, signals)
}

func (s *Server) handleGetPredictor(c echo.Context) error {
	predictorID, err := parseIDParam(c)
	if err != nil {
		return err
	}

	predictor, err := s.app.GetPredictor(c.Request().Context(), predictorID)
	if err != nil {
		if errors.Is(err, domain.ErrPredictorNotFound) {
			return apperrors.NotFoundError("predictor not found").WithContext("predictor_id", predictorID.String())
		}
		return apperrors.InternalError("failed to load predictor", err)
	}
	return c.JSON(http.StatusOK, predictor)
}

func (s *Server) handleInvalidatePredictor(c echo.Context) error {
	predictorID, err := parseIDParam(c)
	if err != nil {
		return err
	}

	if err := s.app.InvalidatePredictor(c.Request().Context(), predictorID); err != nil {
		switch {
		case errors.Is(err, domain.ErrPredictorNotFound):
			return apperrors.NotFoundError("predictor not found").WithContext("predictor_id", predictorID.String())
		case errors.Is(err, domain.ErrPredictorNotActive):
			return apperrors.ConflictError("predictor is not active").WithContext("predictor_id", predictorID.String())
		default:
			return apperrors.InternalError("failed to invalidate predictor", err).WithContext("predictor_id", predictorID.String())
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPredictors(c echo.Context) error {
	targetID, err := parseIDParam(c)
	if err != nil {
		return err
	}
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}

	predictors, err := s.app.ListPredictors(c.Request().Context(), targetID, domain.PredictorStatus(c.QueryParam("status")), limit)
	if err != nil {
		return apperrors.InternalError("failed to list predictors", err)
	}
	return c.JSON(http.StatusOK, predictors)
}

func (s *Server) handleEvaluateTarget(c echo.Context) error {
	targetID, err := parseIDParam(c)
	if err != nil {
		return err
	}

	report, err := s.app.EvaluateTarget(c.Request().Context(), targetID)
	if err != nil {
		if errors.Is(err, domain.ErrEvaluationInProgress) {
			return apperrors.ConflictError("threshold evaluation already in progress").WithContext("target_id", targetID.String())
		}
		return apperrors.InternalError("threshold evaluation failed", err).WithContext("target_id", targetID.String())
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleListPredictions(c echo.Context) error {
	targetID, err := parseIDParam(c)
	if err != nil {
		return err
	}
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}

	predictions, err := s.app.ListPredictions(c.Request().Context(), targetID, limit)
	if err != nil {
		return apperrors.InternalError("failed to list predictions", err)
	}
	return c.JSON(http.StatusOK, predictions)
}

func (s *Server) handleGetPrediction(c echo.Context) error {
	predictionID, err := parseIDParam(c)
	if err != nil {
		return err
	}

	prediction, err := s.app.GetPrediction(c.Request().Context(), predictionID)
	if err != nil {
		if errors.Is(err, domain.ErrPredictionNotFound) {
			return apperrors.NotFoundError("prediction not found").WithContext("prediction_id", predictionID.String())
		}
		return apperrors.InternalError("failed to load prediction", err)
	}
	return c.JSON(http.StatusOK, prediction)
}
