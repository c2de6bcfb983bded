// Package stats aggregates suite outcomes into a run summary.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-e2e-harness/internal/suite"
)

// Entry is one suite outcome in execution order.
type Entry struct {
	Name   string
	Result suite.Result
}

// RunSummary is the aggregate of one run. It is built fresh per run,
// printed, and discarded.
type RunSummary struct {
	RunID    string
	Mode     string
	Entries  []Entry
	Duration time.Duration

	// Suite duration percentiles (zero when no suites ran)
	DurationP50 time.Duration
	DurationP95 time.Duration
	DurationMax time.Duration
}

// Total returns the number of suites that ran.
func (s *RunSummary) Total() int {
	return len(s.Entries)
}

// Passed returns the number of successful suites.
func (s *RunSummary) Passed() int {
	n := 0
	for _, e := range s.Entries {
		if e.Result.Success {
			n++
		}
	}
	return n
}

// Failed returns the number of failed suites.
func (s *RunSummary) Failed() int {
	return s.Total() - s.Passed()
}

// AllPassed reports whether every suite succeeded.
func (s *RunSummary) AllPassed() bool {
	return s.Passed() == s.Total()
}

// Result looks up a suite result by name.
func (s *RunSummary) Result(name string) (suite.Result, bool) {
	for _, e := range s.Entries {
		if e.Name == name {
			return e.Result, true
		}
	}
	return suite.Result{}, false
}

// Aggregator collects suite results as they complete.
type Aggregator struct {
	mu        sync.Mutex
	runID     string
	mode      string
	startTime time.Time
	entries   []Entry
	durations *tdigest.TDigest
	maxDur    time.Duration
}

// NewAggregator creates an aggregator for one run.
func NewAggregator(runID, mode string) *Aggregator {
	return &Aggregator{
		runID:     runID,
		mode:      mode,
		startTime: time.Now(),
		durations: tdigest.NewWithCompression(100),
	}
}

// Record appends a suite result. Results are kept in call order.
func (a *Aggregator) Record(r suite.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries = append(a.entries, Entry{Name: r.Name, Result: r})
	a.durations.Add(float64(r.Duration.Nanoseconds()), 1)
	if r.Duration > a.maxDur {
		a.maxDur = r.Duration
	}
}

// Len returns the number of recorded results.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Summary returns a snapshot of the run so far.
func (a *Aggregator) Summary() *RunSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := &RunSummary{
		RunID:    a.runID,
		Mode:     a.mode,
		Entries:  append([]Entry(nil), a.entries...),
		Duration: time.Since(a.startTime),
	}
	if len(a.entries) > 0 {
		s.DurationP50 = time.Duration(a.durations.Quantile(0.50))
		s.DurationP95 = time.Duration(a.durations.Quantile(0.95))
		s.DurationMax = a.maxDur
	}
	return s
}
