// Package logging provides structured logging for go-e2e-harness.
//
// Harness events are slog records with snake_case messages (service_ready,
// suite_finished, teardown_error). Service output is forwarded through
// OutputHandler so it lands in the same stream.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures New.
type Options struct {
	// Format is "json" or "text". Anything else selects text.
	Format string

	// Level is "debug", "info", "warn" or "error". Unknown values select info.
	Level string

	// Verbose forces debug level and adds source locations.
	Verbose bool
}

// New creates a logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	level := parseLevel(opts.Level)
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{
		Level:     level,
		AddSource: opts.Verbose,
	}

	if strings.EqualFold(opts.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// NewLogger creates the process logger on stderr. Unknown formats fall
// back to JSON so log shippers always get structured records.
func NewLogger(format, level string, verbose bool) *slog.Logger {
	if !strings.EqualFold(format, "text") {
		format = "json"
	}
	return New(os.Stderr, Options{Format: format, Level: level, Verbose: verbose})
}

// NewLoggerWithWriter creates a logger that writes to a custom writer.
// Useful for testing and for discarding logs under the dashboard.
func NewLoggerWithWriter(w io.Writer, format, level string) *slog.Logger {
	return New(w, Options{Format: format, Level: level})
}

// parseLevel converts a string level to slog.Level.
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

// SetDefault sets the default logger for the slog package.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

// WithRun tags every record with the run identifier and mode.
func WithRun(logger *slog.Logger, runID, mode string) *slog.Logger {
	return logger.With("run_id", runID, "mode", mode)
}
