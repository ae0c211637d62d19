// Package obs provides the structured logging, fatal-abort, and metrics
// surface shared by every Orthrus component.
package obs

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

var logger = newDefaultLogger()

func newDefaultLogger() *slog.Logger {
	level := parseLevel(os.Getenv("ORTHRUS_LOG_LEVEL"))
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug", "verbose", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger returns the process-wide structured logger.
func Logger() *slog.Logger { return logger }

func Infof(format string, args ...any)  { logger.Info(sprintf(format, args...)) }
func Errorf(format string, args ...any) { logger.Error(sprintf(format, args...)) }
func Debugf(format string, args ...any) { logger.Debug(sprintf(format, args...)) }

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
