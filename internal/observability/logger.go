package observability

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"

	"github.com/couchcryptid/cat-loss-etl/internal/config"
)

// NewLogger builds a slog.Logger from the configured level and format.
// "json" emits machine-readable logs; anything else gets the tint text handler.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := parseLevel(cfg.LogLevel)

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level})
	}

	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
