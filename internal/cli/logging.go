package cli

import (
	"io"
	"log/slog"
)

// setupLogging installs a text slog handler on w as the default logger.
// Debug level under --verbose, Info otherwise.
func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
