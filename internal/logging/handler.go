package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single output line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept per stream.
	MaxBufferedLines = 100
)

// OutputHandler handles one output stream (stdout or stderr) of a managed
// service. It keeps recent lines for failure diagnostics and logs each line
// at a level derived from its content.
//
// OutputHandler implements parser.LineParser so it can sit behind a lossy
// pipeline next to the readiness parser.
type OutputHandler struct {
	source  string
	stream  string
	logger  *slog.Logger
	verbose bool
	floor   slog.Level

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	count  int
	mu     sync.Mutex
}

// NewOutputHandler creates a handler for the named service stream.
// Lines on "stderr" are never logged below warn.
func NewOutputHandler(source, stream string, logger *slog.Logger, verbose bool) *OutputHandler {
	floor := slog.LevelDebug
	if stream == "stderr" {
		floor = slog.LevelWarn
	}
	return &OutputHandler{
		source:  source,
		stream:  stream,
		logger:  logger,
		verbose: verbose,
		floor:   floor,
		buffer:  make([]string, MaxBufferedLines),
	}
}

// ParseLine implements parser.LineParser.
func (h *OutputHandler) ParseLine(line string) {
	h.HandleLine(line)
}

// HandleLine processes a single line of output.
func (h *OutputHandler) HandleLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	if h.count < MaxBufferedLines {
		h.count++
	}
	h.mu.Unlock()

	h.logLine(line)
}

func (h *OutputHandler) logLine(line string) {
	if h.logger == nil {
		return
	}
	level := h.classifyLine(line)

	// In non-verbose mode, only log warnings and errors
	if !h.verbose && level < slog.LevelWarn {
		return
	}

	h.logger.Log(context.Background(), level, "service_output",
		"service", h.source,
		"stream", h.stream,
		"line", line,
	)
}

// classifyLine determines the log level for a line based on content.
func (h *OutputHandler) classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	level := slog.LevelDebug
	switch {
	case strings.Contains(lower, "error"),
		strings.Contains(lower, "exception"),
		strings.Contains(lower, "eaddrinuse"),
		strings.Contains(lower, "econnrefused"):
		level = slog.LevelWarn
	case strings.Contains(lower, "warn"),
		strings.Contains(lower, "deprecat"):
		level = slog.LevelWarn
	case strings.Contains(lower, "listening"),
		strings.Contains(lower, "started"):
		level = slog.LevelInfo
	}

	if level < h.floor {
		level = h.floor
	}
	return level
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > h.count {
		n = h.count
	}
	if n <= 0 {
		return nil
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		lines = append(lines, h.buffer[idx])
	}
	return lines
}

// ErrorPatterns are common failure phrases counted for diagnostics.
var ErrorPatterns = []string{
	"EADDRINUSE",
	"ECONNREFUSED",
	"Cannot find module",
	"Error:",
	"Unhandled",
}

// CountErrors counts occurrences of error patterns in the buffer.
func (h *OutputHandler) CountErrors() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)
	for i := 0; i < h.count; i++ {
		idx := (h.bufIdx - h.count + i + MaxBufferedLines) % MaxBufferedLines
		line := h.buffer[idx]
		for _, pattern := range ErrorPatterns {
			if strings.Contains(line, pattern) {
				counts[pattern]++
			}
		}
	}
	return counts
}

// Source returns the service name this handler belongs to.
func (h *OutputHandler) Source() string {
	return h.source
}

// Stream returns the stream name ("stdout" or "stderr").
func (h *OutputHandler) Stream() string {
	return h.stream
}
