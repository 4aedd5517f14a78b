package app

import (
	"log/slog"
	"os"
)

// NewLogger returns a slog.Logger writing JSON in production (or when
// LOG_FORMAT=json) and human-readable text otherwise.
func NewLogger(cfg *Config) *slog.Logger {
	if cfg != nil && (cfg.LogFormat == "json" || cfg.IsProduction()) {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
