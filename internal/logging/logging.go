// Package logging builds the process-wide structured logger, a plain
// slog.New(slog.NewTextHandler(...)) bootstrap made configurable via
// log_level instead of a hardcoded level.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New builds a text-handler slog.Logger writing to stdout at the given
// level name (debug, info, warn, error; unrecognized values fall back to
// info).
func New(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
