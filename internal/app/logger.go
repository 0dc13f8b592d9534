package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the service logger. Production runs at info level;
// everywhere else debug is enabled so local runs show engine decisions.
// Source locations are only worth their cost in the JSON output that log
// aggregation consumes.
func NewLogger(cfg *Config) *slog.Logger {
	level := slog.LevelDebug
	if cfg != nil && cfg.IsProduction() {
		level = slog.LevelInfo
	}
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
