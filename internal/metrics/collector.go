// Package metrics provides Prometheus metrics for go-e2e-harness.
//
// A Collector owns one registry's worth of run metrics: service lifecycle
// state, readiness latency and suite outcomes. The same registry backs the
// optional /metrics endpoint and the textfile written after teardown.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-e2e-harness/internal/suite"
	"github.com/randomizedcoder/go-e2e-harness/internal/supervisor"
)

// Suite result label values.
const (
	ResultPass = "pass"
	ResultFail = "fail"
)

// Collector manages all Prometheus metrics for one run.
type Collector struct {
	info              *prometheus.GaugeVec
	serviceState      *prometheus.GaugeVec
	readinessSeconds  *prometheus.GaugeVec
	suitesTotal       *prometheus.CounterVec
	suiteDuration     *prometheus.GaugeVec
	suiteExitCode     *prometheus.GaugeVec
	suiteTests        *prometheus.GaugeVec
	teardownErrors    prometheus.Counter
	runDurationSecond prometheus.Gauge

	startTime time.Time

	mu       sync.Mutex
	expected map[string]struct{}
	states   map[string]supervisor.State
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version string
	RunID   string
	Mode    string
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing and for the metrics textfile.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "e2e_harness_info",
				Help: "Information about the test run (value always 1)",
			},
			[]string{"version", "run_id", "mode"},
		),
		serviceState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "e2e_harness_service_state",
				Help: "Service lifecycle state (0 created, 1 starting, 2 ready, 3 failed, 4 stopped)",
			},
			[]string{"service"},
		),
		readinessSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "e2e_harness_service_readiness_seconds",
				Help: "Time from launch until readiness resolved",
			},
			[]string{"service", "reason"},
		),
		suitesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "e2e_harness_suites_total",
				Help: "Suites run, by result",
			},
			[]string{"result"},
		),
		suiteDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "e2e_harness_suite_duration_seconds",
				Help: "Wall-clock duration of each suite",
			},
			[]string{"suite"},
		),
		suiteExitCode: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "e2e_harness_suite_exit_code",
				Help: "Exit code of each suite process (-1 = could not start)",
			},
			[]string{"suite"},
		),
		suiteTests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "e2e_harness_suite_tests",
				Help: "Test counts reported by each suite, by outcome",
			},
			[]string{"suite", "outcome"},
		),
		teardownErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "e2e_harness_teardown_errors_total",
				Help: "Services whose teardown failed or needed SIGKILL",
			},
		),
		runDurationSecond: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "e2e_harness_run_duration_seconds",
				Help: "Elapsed time since the run started",
			},
		),
		startTime: time.Now(),
		expected:  make(map[string]struct{}),
		states:    make(map[string]supervisor.State),
	}

	registry.MustRegister(
		c.info,
		c.serviceState,
		c.readinessSeconds,
		c.suitesTotal,
		c.suiteDuration,
		c.suiteExitCode,
		c.suiteTests,
		c.teardownErrors,
		c.runDurationSecond,
	)

	c.info.WithLabelValues(cfg.Version, cfg.RunID, cfg.Mode).Set(1)
	// Pre-create both result series so a clean run still exports fail=0.
	c.suitesTotal.WithLabelValues(ResultPass)
	c.suitesTotal.WithLabelValues(ResultFail)

	return c
}

// ExpectServices declares the services Ready waits on.
func (c *Collector) ExpectServices(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		c.expected[name] = struct{}{}
		if _, ok := c.states[name]; !ok {
			c.states[name] = supervisor.StateCreated
			c.serviceState.WithLabelValues(name).Set(float64(supervisor.StateCreated))
		}
	}
}

// SetServiceState records a service state transition.
func (c *Collector) SetServiceState(service string, state supervisor.State) {
	c.mu.Lock()
	c.states[service] = state
	c.mu.Unlock()
	c.serviceState.WithLabelValues(service).Set(float64(state))
}

// RecordReadiness records how readiness resolved for a service.
func (c *Collector) RecordReadiness(service string, res supervisor.Resolution) {
	c.readinessSeconds.WithLabelValues(service, res.Reason.String()).Set(res.Elapsed.Seconds())
}

// RecordSuite records one completed suite.
func (c *Collector) RecordSuite(r suite.Result) {
	result := ResultFail
	if r.Success {
		result = ResultPass
	}
	c.suitesTotal.WithLabelValues(result).Inc()
	c.suiteDuration.WithLabelValues(r.Name).Set(r.Duration.Seconds())
	c.suiteExitCode.WithLabelValues(r.Name).Set(float64(r.ExitCode))

	if r.Tests.Parsed {
		for outcome, n := range map[string]int{
			"passed":  r.Tests.Passed,
			"failed":  r.Tests.Failed,
			"flaky":   r.Tests.Flaky,
			"skipped": r.Tests.Skipped,
		} {
			c.suiteTests.WithLabelValues(r.Name, outcome).Set(float64(n))
		}
	}
}

// RecordTeardownError counts a failed or forced teardown.
func (c *Collector) RecordTeardownError() {
	c.teardownErrors.Inc()
}

// UpdateRunDuration refreshes the run duration gauge.
func (c *Collector) UpdateRunDuration() {
	c.runDurationSecond.Set(time.Since(c.startTime).Seconds())
}

// Ready reports whether every expected service has resolved readiness.
// With no expected services it reports false.
func (c *Collector) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.expected) == 0 {
		return false
	}
	for name := range c.expected {
		if !c.states[name].IsResolved() {
			return false
		}
	}
	return true
}

// StateOf returns the last recorded state for a service.
func (c *Collector) StateOf(service string) (supervisor.State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[service]
	return s, ok
}
