// Package orchestrator runs one end-to-end test run: it launches the
// declared services in order, gates each on readiness, runs the suites in
// sequence and always tears the services down.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-e2e-harness/internal/config"
	"github.com/randomizedcoder/go-e2e-harness/internal/process"
	"github.com/randomizedcoder/go-e2e-harness/internal/stats"
	"github.com/randomizedcoder/go-e2e-harness/internal/suite"
	"github.com/randomizedcoder/go-e2e-harness/internal/supervisor"
)

var (
	// ErrInterrupted is returned when the run was cancelled by a signal
	// or by the parent context.
	ErrInterrupted = errors.New("run interrupted")

	// ErrServiceNotReady is returned under strict readiness when a service
	// exited before it became ready.
	ErrServiceNotReady = errors.New("service not ready")
)

// Callbacks contains optional callback functions for run events.
type Callbacks struct {
	// OnServiceState is called on every service state transition.
	OnServiceState func(service string, oldState, newState supervisor.State)

	// OnServiceReady is called when a service's readiness resolves.
	OnServiceReady func(service string, res supervisor.Resolution)

	// OnServiceTerminate is called once per service when teardown reaches it.
	OnServiceTerminate func(service string, pid int)

	// OnSuiteStart is called before a suite is launched.
	OnSuiteStart func(name string)

	// OnSuiteFinish is called with each suite's result.
	OnSuiteFinish func(r suite.Result)

	// OnTeardownError is called for each service whose teardown failed.
	OnTeardownError func(err error)
}

// Options holds the non-config dependencies of an Orchestrator.
type Options struct {
	Logger *slog.Logger

	// Status receives the human-readable progress lines. nil means io.Discard.
	Status io.Writer

	// SuiteOutput receives live suite output. nil means io.Discard.
	SuiteOutput io.Writer

	RunID     string
	Callbacks Callbacks
}

// Orchestrator coordinates services and suites for one run.
type Orchestrator struct {
	config    *config.Config
	logger    *slog.Logger
	status    io.Writer
	runID     string
	callbacks Callbacks

	runner *suite.Runner

	mu       sync.Mutex
	registry *Registry // most recent run's
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	status := opts.Status
	if status == nil {
		status = io.Discard
	}
	output := opts.SuiteOutput
	if output == nil {
		output = io.Discard
	}

	runner := suite.NewRunner(suite.Config{
		Command:   cfg.SuiteCommand,
		Dir:       cfg.Dir,
		Stdout:    output,
		Stderr:    output,
		Logger:    logger,
		WaitDelay: cfg.SuiteWaitDelay,
	})

	return &Orchestrator{
		config:    cfg,
		logger:    logger,
		status:    status,
		runID:     opts.RunID,
		callbacks: opts.Callbacks,
		runner:    runner,
		registry:  NewRegistry(logger),
	}
}

// Run executes the services and suites of mode. It blocks until every suite
// has run or the run is interrupted, and always stops the services before
// returning. Each call owns a fresh Registry, so an Orchestrator can be
// run more than once.
//
// A service that cannot be spawned aborts the run with its *SpawnError and
// no summary. An interrupt returns the partial summary and ErrInterrupted.
func (o *Orchestrator) Run(ctx context.Context, mode config.Mode) (*stats.RunSummary, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	plan := o.config.Plan(mode)
	o.logger.Info("run_starting",
		"mode", string(mode),
		"services", len(plan.Services),
		"suites", len(plan.Suites),
	)

	reg := NewRegistry(o.logger)
	o.mu.Lock()
	o.registry = reg
	o.mu.Unlock()
	defer o.teardown(ctx, reg)

	if err := o.launchServices(ctx, reg, plan.Services); err != nil {
		if ctx.Err() != nil {
			return nil, ErrInterrupted
		}
		return nil, err
	}

	summary := o.runSuites(ctx, plan.Suites, mode)
	if ctx.Err() != nil {
		return summary, ErrInterrupted
	}
	return summary, nil
}

// launchServices starts each service in order and waits for it to resolve.
func (o *Orchestrator) launchServices(ctx context.Context, reg *Registry, services []config.ServiceConfig) error {
	gate := supervisor.Gate{Timeout: o.config.ReadinessTimeout}

	for _, svc := range services {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		spec, err := process.NewSpec(svc.Name, svc.Command, o.config.ServiceDir(svc), svc.Env)
		if err != nil {
			return &supervisor.SpawnError{Service: svc.Name, Command: svc.Command, Err: err}
		}

		mp := supervisor.New(supervisor.Config{
			Spec:              spec,
			Port:              svc.Port,
			Logger:            o.logger,
			Verbose:           o.config.Verbose,
			ReadinessPatterns: o.config.ReadinessPatterns,
			Callbacks: supervisor.Callbacks{
				OnStateChange: o.callbacks.OnServiceState,
				OnTerminate:   o.callbacks.OnServiceTerminate,
			},
		})
		reg.Add(mp)

		o.statusf("Starting %s...", svc.Name)
		o.logger.Info("service_starting", "service", svc.Name, "command", spec.CommandString(), "port", svc.Port)

		if err := mp.Start(); err != nil {
			o.statusf("Failed to start %s: %v", svc.Name, err)
			if o.callbacks.OnServiceReady != nil {
				o.callbacks.OnServiceReady(svc.Name, supervisor.Resolution{
					State:  supervisor.StateFailed,
					Reason: supervisor.ReasonSpawnFailed,
					Err:    err,
				})
			}
			return err
		}

		res := mp.AwaitReady(ctx, gate)
		if o.callbacks.OnServiceReady != nil {
			o.callbacks.OnServiceReady(svc.Name, res)
		}

		switch res.Reason {
		case supervisor.ReasonMatched:
			o.statusf("%s started successfully", svc.Name)
		case supervisor.ReasonTimeout:
			o.statusf("%s started (timeout reached)", svc.Name)
		case supervisor.ReasonSpawnFailed:
			o.statusf("Failed to start %s: %v", svc.Name, res.Err)
			return res.Err
		case supervisor.ReasonExited:
			o.statusf("%s exited before becoming ready (exit code %d)", svc.Name, mp.ExitCode())
			if o.config.StrictReadiness {
				return fmt.Errorf("%s: %w", svc.Name, ErrServiceNotReady)
			}
		case supervisor.ReasonCancelled:
			return res.Err
		}

		if err := sleepCtx(ctx, svc.Settle); err != nil {
			return err
		}
	}
	return nil
}

// runSuites runs each suite in order. A failing suite never stops the
// next one; an interrupt does.
func (o *Orchestrator) runSuites(ctx context.Context, suites []config.SuiteConfig, mode config.Mode) *stats.RunSummary {
	agg := stats.NewAggregator(o.runID, string(mode))

	for _, sc := range suites {
		if ctx.Err() != nil {
			o.logger.Info("suites_skipped", "remaining_from", sc.Name)
			break
		}

		if o.callbacks.OnSuiteStart != nil {
			o.callbacks.OnSuiteStart(sc.Name)
		}
		o.statusf("Running %s tests...", sc.Name)

		r, err := o.runner.Run(ctx, suite.Suite{Name: sc.Name, Spec: sc.Spec, Command: sc.Command})
		if err != nil {
			o.statusf("%s tests could not start: %v", sc.Name, err)
		} else if r.Success {
			o.statusf("%s tests completed successfully", sc.Name)
		} else {
			o.statusf("%s tests failed with code %d", sc.Name, r.ExitCode)
		}

		agg.Record(r)
		if o.callbacks.OnSuiteFinish != nil {
			o.callbacks.OnSuiteFinish(r)
		}
	}

	summary := agg.Summary()
	o.logger.Info("run_summary",
		"passed", summary.Passed(),
		"total", summary.Total(),
		"duration", summary.Duration.String(),
	)
	return summary
}

// teardown stops every service registered by one run.
func (o *Orchestrator) teardown(ctx context.Context, reg *Registry) {
	if ctx.Err() != nil {
		o.statusf("Shutting down test runner...")
	}
	for _, err := range reg.StopAll(o.config.StopTimeout) {
		if o.callbacks.OnTeardownError != nil {
			o.callbacks.OnTeardownError(err)
		}
	}
}

// QuickCheck runs quick mode and writes the one-line verdict to the
// status writer.
func (o *Orchestrator) QuickCheck(ctx context.Context) (*stats.RunSummary, error) {
	summary, err := o.Run(ctx, config.ModeQuick)
	if err != nil {
		return summary, err
	}
	for _, e := range summary.Entries {
		o.statusf("%s", stats.FormatQuickVerdict(e.Result))
	}
	return summary, nil
}

// Registry returns the service registry of the most recent run.
func (o *Orchestrator) Registry() *Registry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.registry
}

func (o *Orchestrator) statusf(format string, args ...any) {
	fmt.Fprintf(o.status, format+"\n", args...)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
