// Package main provides the go-e2e-harness CLI entry point.
//
// go-e2e-harness starts the services an end-to-end suite depends on, waits
// for each to become ready, runs the suites one after another and always
// stops the services again, on success, failure or interrupt.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-e2e-harness/internal/config"
	"github.com/randomizedcoder/go-e2e-harness/internal/exitcodes"
	"github.com/randomizedcoder/go-e2e-harness/internal/logging"
	"github.com/randomizedcoder/go-e2e-harness/internal/metrics"
	"github.com/randomizedcoder/go-e2e-harness/internal/orchestrator"
	"github.com/randomizedcoder/go-e2e-harness/internal/preflight"
	"github.com/randomizedcoder/go-e2e-harness/internal/stats"
	"github.com/randomizedcoder/go-e2e-harness/internal/suite"
	"github.com/randomizedcoder/go-e2e-harness/internal/supervisor"
	"github.com/randomizedcoder/go-e2e-harness/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-e2e-harness
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// Handle version flag early (before flag parsing)
	if len(args) > 0 {
		arg := args[0]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Fprintf(stdout, "%s %s\n", config.Name, version)
			return exitcodes.Success
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitcodes.Success
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error parsing flags: %v\n", err)
		return exitcodes.RuntimeErr
	}
	if cfg.ShowVersion {
		fmt.Fprintf(stdout, "%s %s\n", config.Name, version)
		return exitcodes.Success
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return exitcodes.RuntimeErr
	}

	runID := uuid.New().String()

	// Initialize logger
	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	}
	logger = logging.WithRun(logger, runID, string(cfg.Mode))
	logging.SetDefault(logger)

	plan := cfg.Plan(cfg.Mode)

	// Handle --print-plan mode
	if cfg.PrintPlan {
		printPlan(stdout, cfg, plan)
		return exitcodes.Success
	}

	// Run preflight checks
	if !cfg.SkipPreflight {
		result := preflight.RunAll(cfg, plan)
		preflight.PrintResults(stdout, result)
		if !result.Passed {
			fmt.Fprintln(stderr, "preflight checks failed (use --skip-preflight to override)")
			return exitcodes.RuntimeErr
		}
	}

	logger.Info("starting",
		"version", version,
		"services", len(plan.Services),
		"suites", len(plan.Suites),
		"metrics_addr", cfg.MetricsAddr,
	)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version: version,
		RunID:   runID,
		Mode:    string(cfg.Mode),
	}, registry)
	collector.ExpectServices(serviceNames(plan))

	if cfg.MetricsAddr != "" {
		server := metrics.NewServer(cfg.MetricsAddr, logger, registry, collector.Ready)
		if err := server.Start(); err != nil {
			fmt.Fprintf(stderr, "Failed to start metrics server: %v\n", err)
			return exitcodes.RuntimeErr
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				logger.Warn("metrics_server_shutdown_error", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	status := stdout
	var (
		notifier *tui.Notifier
		tuiDone  chan struct{}
	)
	if cfg.TUIEnabled {
		status = io.Discard
		notifier, tuiDone = startTUI(cfg, plan, runID, cancel, logger)
	} else {
		printBanner(stdout, cfg, plan, runID)
	}

	orch := orchestrator.New(cfg, orchestrator.Options{
		Logger:      logger,
		Status:      status,
		SuiteOutput: status,
		RunID:       runID,
		Callbacks:   runCallbacks(collector, notifier),
	})

	var summary *stats.RunSummary
	if cfg.Mode.IsQuick() {
		summary, err = orch.QuickCheck(ctx)
	} else {
		summary, err = orch.Run(ctx, cfg.Mode)
	}

	if notifier != nil {
		if summary != nil && err == nil {
			notifier.RunComplete(summary)
		} else {
			notifier.Quit()
		}
		<-tuiDone
		notifier.Close()
	}

	collector.UpdateRunDuration()
	if cfg.MetricsFile != "" {
		if werr := metrics.WriteTextfile(cfg.MetricsFile, registry); werr != nil {
			logger.Warn("metrics_file_error", "path", cfg.MetricsFile, "error", werr)
		}
	}

	return finish(stdout, stderr, cfg, summary, err, logger)
}

// finish prints the outcome and maps it to an exit code.
func finish(stdout, stderr io.Writer, cfg *config.Config, summary *stats.RunSummary, err error, logger *slog.Logger) int {
	switch {
	case errors.Is(err, orchestrator.ErrInterrupted):
		logger.Info("run_interrupted")
		return exitcodes.Success
	case err != nil:
		logger.Error("run_failed", "error", err)
		fmt.Fprintf(stderr, "Run aborted: %v\n", err)
		return exitcodes.RuntimeErr
	}

	if !cfg.Mode.IsQuick() {
		fmt.Fprint(stdout, stats.FormatSummary(summary))
		fmt.Fprint(stdout, stats.FormatHints(config.Name))
	}
	if cfg.Details {
		fmt.Fprintln(stdout)
		fmt.Fprint(stdout, stats.FormatTable(summary))
	}

	if cfg.FailExit && !summary.AllPassed() {
		return exitcodes.SuiteFailure
	}
	return exitcodes.Success
}

// runCallbacks fans orchestrator events out to metrics and the dashboard.
func runCallbacks(collector *metrics.Collector, notifier *tui.Notifier) orchestrator.Callbacks {
	return orchestrator.Callbacks{
		OnServiceState: func(service string, oldState, newState supervisor.State) {
			collector.SetServiceState(service, newState)
			notifier.ServiceState(service, oldState, newState)
		},
		OnServiceReady: func(service string, res supervisor.Resolution) {
			collector.RecordReadiness(service, res)
			notifier.ServiceReady(service, res)
		},
		OnSuiteStart: func(name string) {
			notifier.SuiteStarted(name)
		},
		OnSuiteFinish: func(r suite.Result) {
			collector.RecordSuite(r)
			notifier.SuiteFinished(r)
		},
		OnTeardownError: func(error) {
			collector.RecordTeardownError()
		},
	}
}

// startTUI runs the dashboard until it quits. The returned channel is
// closed when the program has exited.
func startTUI(cfg *config.Config, plan config.Plan, runID string, cancel context.CancelFunc, logger *slog.Logger) (*tui.Notifier, chan struct{}) {
	model := tui.New(tui.Config{
		RunID:       runID,
		Mode:        string(plan.Mode),
		MetricsAddr: cfg.MetricsAddr,
		Services:    serviceNames(plan),
		Suites:      suiteNames(plan),
		OnInterrupt: cancel,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := p.Run(); err != nil {
			logger.Warn("tui_error", "error", err)
		}
	}()
	return tui.NewNotifier(p), done
}

// printBanner prints the startup banner.
func printBanner(w io.Writer, cfg *config.Config, plan config.Plan, runID string) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s (run %s)\n", config.Name, version, runID)
	fmt.Fprintf(w, "  Mode:      %s\n", plan.Mode)
	fmt.Fprintf(w, "  Services:  %s\n", strings.Join(serviceNames(plan), ", "))
	fmt.Fprintf(w, "  Suites:    %s\n", strings.Join(suiteNames(plan), ", "))
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(w, "  Metrics:   http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Press Ctrl+C to stop.")
	fmt.Fprintln(w)
}

// printPlan prints the services and suites a run would use.
func printPlan(w io.Writer, cfg *config.Config, plan config.Plan) {
	fmt.Fprintf(w, "# Mode: %s\n", plan.Mode)
	fmt.Fprintf(w, "# Working directory: %s\n", cfg.Dir)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Services (started in order):")
	for _, svc := range plan.Services {
		fmt.Fprintf(w, "  %s: %s (port %d, settle %s, dir %s)\n",
			svc.Name, svc.Command, svc.Port, svc.Settle, cfg.ServiceDir(svc))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Suites (run in order):")
	runner := suite.NewRunner(suite.Config{Command: cfg.SuiteCommand, Dir: cfg.Dir})
	for _, s := range plan.Suites {
		spec, err := runner.CommandSpec(suite.Suite{Name: s.Name, Spec: s.Spec, Command: s.Command})
		if err != nil {
			fmt.Fprintf(w, "  %s: invalid command: %v\n", s.Name, err)
			continue
		}
		fmt.Fprintf(w, "  %s: %s\n", s.Name, spec.CommandString())
	}
}

func serviceNames(plan config.Plan) []string {
	names := make([]string, 0, len(plan.Services))
	for _, svc := range plan.Services {
		names = append(names, svc.Name)
	}
	return names
}

func suiteNames(plan config.Plan) []string {
	names := make([]string, 0, len(plan.Suites))
	for _, s := range plan.Suites {
		names = append(names, s.Name)
	}
	return names
}
