package parser

import (
	"regexp"
	"strconv"
	"sync"
)

// Playwright's line reporter finishes with a block such as:
//
//	  1 failed
//	    [chromium] › tests/game-functionality.spec.js:12:3 › loads the map
//	  1 flaky
//	  4 passed (12.4s)
//
// Older versions print "skipped" and "did not run" lines in the same shape.
var playwrightCountRe = regexp.MustCompile(`^\s*(\d+)\s+(passed|failed|flaky|skipped|did not run|interrupted)\b`)

// TestCounts holds the per-test tallies reported by a suite run.
type TestCounts struct {
	Passed      int
	Failed      int
	Flaky       int
	Skipped     int
	DidNotRun   int
	Interrupted int

	// Parsed is true when at least one count line was recognized.
	Parsed bool
}

// Total returns the number of tests the reporter accounted for.
func (c TestCounts) Total() int {
	return c.Passed + c.Failed + c.Flaky + c.Skipped + c.DidNotRun + c.Interrupted
}

// PlaywrightParser extracts TestCounts from line-reporter output.
// Thread-safe: ParseLine may run on the pipe goroutine while Counts is read
// from another.
type PlaywrightParser struct {
	mu     sync.Mutex
	counts TestCounts
}

// NewPlaywrightParser returns an empty parser.
func NewPlaywrightParser() *PlaywrightParser {
	return &PlaywrightParser{}
}

// ParseLine implements LineParser.
func (p *PlaywrightParser) ParseLine(line string) {
	m := playwrightCountRe.FindStringSubmatch(line)
	if m == nil {
		return
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts.Parsed = true
	switch m[2] {
	case "passed":
		p.counts.Passed = n
	case "failed":
		p.counts.Failed = n
	case "flaky":
		p.counts.Flaky = n
	case "skipped":
		p.counts.Skipped = n
	case "did not run":
		p.counts.DidNotRun = n
	case "interrupted":
		p.counts.Interrupted = n
	}
}

// Counts returns a snapshot of the tallies seen so far.
func (p *PlaywrightParser) Counts() TestCounts {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts
}
