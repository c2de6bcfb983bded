package parser

import (
	"strings"
	"sync"
)

// DefaultReadinessPatterns are the phrases servers commonly print once they
// accept connections.
var DefaultReadinessPatterns = []string{"listening", "started"}

// ReadinessParser watches a service's output for a readiness phrase.
//
// Matching is a case-insensitive substring test. The first matching line
// closes Matched(); later lines are still counted but change nothing.
type ReadinessParser struct {
	patterns []string

	once      sync.Once
	matched   chan struct{}
	mu        sync.Mutex
	matchLine string
	lines     int64
}

// NewReadinessParser creates a parser for the given patterns. An empty list
// falls back to DefaultReadinessPatterns.
func NewReadinessParser(patterns []string) *ReadinessParser {
	if len(patterns) == 0 {
		patterns = DefaultReadinessPatterns
	}
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			lowered = append(lowered, p)
		}
	}
	return &ReadinessParser{
		patterns: lowered,
		matched:  make(chan struct{}),
	}
}

// ParseLine implements LineParser.
func (r *ReadinessParser) ParseLine(line string) {
	r.mu.Lock()
	r.lines++
	r.mu.Unlock()

	if !r.Matches(line) {
		return
	}
	r.once.Do(func() {
		r.mu.Lock()
		r.matchLine = line
		r.mu.Unlock()
		close(r.matched)
	})
}

// Matches reports whether line contains any readiness pattern.
func (r *ReadinessParser) Matches(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range r.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Matched is closed when the first readiness line is seen.
func (r *ReadinessParser) Matched() <-chan struct{} {
	return r.matched
}

// MatchLine returns the line that triggered readiness, or "" if none has.
func (r *ReadinessParser) MatchLine() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.matchLine
}

// LinesSeen returns how many lines the parser has inspected.
func (r *ReadinessParser) LinesSeen() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lines
}

// Patterns returns the normalized patterns in use.
func (r *ReadinessParser) Patterns() []string {
	out := make([]string, len(r.patterns))
	copy(out, r.patterns)
	return out
}
