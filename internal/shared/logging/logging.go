package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// NewLogger creates a new structured logger with the appropriate level and format
func NewLogger(serviceName string, level string, environment string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var handler slog.Handler
	if environment == "production" {
		// JSON format in production for log aggregators
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		// Colorized text in development for readability
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: logLevel})
	}

	logger := slog.New(handler)

	logger = logger.With(
		slog.String("service", serviceName),
		slog.String("environment", environment),
	)

	return logger
}
