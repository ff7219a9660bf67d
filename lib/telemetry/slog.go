package telemetry

import (
	"log/slog"
	"os"
)

// InitSlog installs the default slog logger, stdout is reserved for the
// JSON summaries so logs always go to stderr.
func InitSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	})
	slog.SetDefault(slog.New(handler))
}
