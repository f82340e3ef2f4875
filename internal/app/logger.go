package app

import (
	"log/slog"
	"os"
)

// NewLogger returns the process logger. Production and any explicit json
// format get JSON output; development defaults to the text handler.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler
	if cfg.IsProduction() || cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("app", "vantage"), slog.String("env", cfg.AppEnv))
}
