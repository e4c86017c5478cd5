package cli

import (
	"io"
	"log/slog"
)

// newLogger builds the process logger. format is "json" or "text"; verbose
// lowers the level to debug regardless of the configured level.
func newLogger(w io.Writer, format string, level slog.Level, verbose bool) *slog.Logger {
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}
