package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPErrorsTotal counts handler errors by kind.
var HTTPErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_errors_total",
		Help: "Total HTTP errors by error type",
	},
	[]string{"type"},
)

// Middleware converts errors returned by handlers into JSON responses with
// the kind's status code. Echo's own HTTPErrors (routing, binder) pass
// through untouched so their status survives.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				HTTPErrorsTotal.WithLabelValues(string(kindForStatus(httpErr.Code))).Inc()
				return err
			}

			appErr := coerce(err)
			HTTPErrorsTotal.WithLabelValues(string(appErr.Kind)).Inc()
			logError(c, appErr)

			if err := c.JSON(appErr.HTTPStatus(), appErr.response()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *Error) {
	attrs := []any{
		"error_type", err.Kind,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}
	if err.Cause != nil {
		attrs = append(attrs, "cause", err.Cause)
	}

	switch err.Kind {
	case KindValidation, KindNotFound:
		slog.InfoContext(c.Request().Context(), "Request rejected", attrs...)
	case KindConflict:
		slog.WarnContext(c.Request().Context(), "Request conflicted", attrs...)
	default:
		slog.ErrorContext(c.Request().Context(), "Request failed", attrs...)
	}
}

func kindForStatus(code int) Kind {
	switch {
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusConflict:
		return KindConflict
	case code == http.StatusBadGateway || code == http.StatusServiceUnavailable:
		return KindExternal
	case code >= 400 && code < 500:
		return KindValidation
	default:
		return KindInternal
	}
}
