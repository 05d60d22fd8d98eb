package logging

import (
	"log/slog"
	"os"

	"github.com/pscheid92/signalpulse/internal/platform/correlation"
)

var levelByName = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// InitLogger installs the process-wide slog default. Format is "json" or
// "text" (the default); unknown levels fall back to info. Every logger is
// wrapped in the correlation handler so request-scoped logs carry their ID.
func InitLogger(level, format string) {
	logLevel, ok := levelByName[level]
	if !ok {
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(correlation.NewHandler(handler)))
}
