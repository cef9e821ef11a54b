package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns the process-wide logger. Production runs emit JSON at
// Info; everything else gets the text handler with Debug enabled.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: slog.LevelDebug}
	production := cfg != nil && cfg.IsProduction()
	if production {
		opts.Level = slog.LevelInfo
	}

	var handler slog.Handler
	if production || (cfg != nil && cfg.LogFormat == "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With(slog.String("service", "meshgate"))
}
