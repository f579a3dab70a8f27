package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pscheid92/contestpulse/internal/platform/correlation"
)

// New builds a correlation-aware logger writing to w.
// level: "debug", "info", "warn", "error" (unknown values fall back to info)
// format: "json" or "text"
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(correlation.NewHandler(handler))
}

// InitLogger installs the process-wide default logger. Every record carries the instance id
// so logs from horizontally scaled processes can be told apart.
func InitLogger(level, format, instanceID string) *slog.Logger {
	logger := New(os.Stdout, level, format)
	if instanceID != "" {
		logger = logger.With("instance", instanceID)
	}
	slog.SetDefault(logger)
	return logger
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
