// Package suite runs verification suites as subprocesses and captures their
// outcome.
package suite

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/acarl005/stripansi"
	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/go-e2e-harness/internal/parser"
	"github.com/randomizedcoder/go-e2e-harness/internal/process"
)

// DefaultCommand runs one Playwright spec file with the line reporter.
const DefaultCommand = "npx playwright test {spec} --reporter=line"

// SpecPlaceholder is replaced by Suite.Spec in the command template.
const SpecPlaceholder = "{spec}"

// DefaultWaitDelay is how long a cancelled suite gets between SIGTERM and SIGKILL.
const DefaultWaitDelay = 5 * time.Second

// Config holds configuration for a Runner.
type Config struct {
	Command string   // template; DefaultCommand when empty
	Dir     string   // working directory
	Env     []string // extra KEY=VALUE entries

	// Stdout and Stderr receive suite output live, unmodified.
	// nil means io.Discard.
	Stdout io.Writer
	Stderr io.Writer

	Logger    *slog.Logger
	WaitDelay time.Duration
}

// Runner executes suites one at a time.
type Runner struct {
	command   string
	dir       string
	env       []string
	stdout    io.Writer
	stderr    io.Writer
	logger    *slog.Logger
	waitDelay time.Duration
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) *Runner {
	r := &Runner{
		command:   cfg.Command,
		dir:       cfg.Dir,
		env:       cfg.Env,
		stdout:    cfg.Stdout,
		stderr:    cfg.Stderr,
		logger:    cfg.Logger,
		waitDelay: cfg.WaitDelay,
	}
	if r.command == "" {
		r.command = DefaultCommand
	}
	if r.stdout == nil {
		r.stdout = io.Discard
	}
	if r.stderr == nil {
		r.stderr = io.Discard
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.waitDelay <= 0 {
		r.waitDelay = DefaultWaitDelay
	}
	return r
}

// CommandSpec resolves the launch specification for a suite.
func (r *Runner) CommandSpec(s Suite) (process.Spec, error) {
	template := s.Command
	if template == "" {
		template = r.command
	}

	fields, err := process.ParseCommandLine(template)
	if err != nil {
		return process.Spec{}, err
	}
	for i, f := range fields {
		fields[i] = strings.ReplaceAll(f, SpecPlaceholder, s.Spec)
	}

	return process.Spec{
		Label:   s.Name,
		Program: fields[0],
		Args:    fields[1:],
		Dir:     r.dir,
		Env:     r.env,
	}, nil
}

// Run executes one suite to completion and returns its Result.
//
// A non-zero exit, including death by signal, is a failed Result with a nil
// error. Only a failure to start the subprocess returns an error, a
// *StartError; the returned Result then records exit code -1.
//
// Cancelling ctx sends SIGTERM to the suite's process group, then SIGKILL
// after the wait delay. Once the leader exits, its output gets the same wait
// delay to drain before whatever is left of the group is killed.
func (r *Runner) Run(ctx context.Context, s Suite) (Result, error) {
	start := time.Now()

	spec, err := r.CommandSpec(s)
	if err != nil {
		return r.startFailed(s, spec, err, start)
	}

	cmd := exec.CommandContext(ctx, spec.Program, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd, syscall.SIGTERM)
	}
	cmd.WaitDelay = r.waitDelay

	// Plain pipes rather than StdoutPipe: the leader is reaped before the
	// copies finish, and a forked helper may keep the write ends open.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return r.startFailed(s, spec, err, start)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return r.startFailed(s, spec, err, start)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	r.logger.Info("suite_started",
		"suite", s.Name,
		"spec", s.Spec,
		"command", spec.CommandString(),
	)

	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return r.startFailed(s, spec, err, start)
	}
	closeAll(stdoutW, stderrW)

	var outBuf, errBuf bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(io.MultiWriter(&outBuf, r.stdout), stdoutR)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(io.MultiWriter(&errBuf, r.stderr), stderrR)
		return err
	})

	waitErr := cmd.Wait()
	duration := time.Since(start)

	copyErr := r.drainOutput(s, &g, stdoutR, stderrR)

	// Sweep anything the suite forked that outlived the leader.
	_ = signalGroup(cmd, syscall.SIGKILL)
	closeAll(stdoutR, stderrR)

	if copyErr != nil && !errors.Is(copyErr, os.ErrClosed) {
		r.logger.Warn("suite_output_copy_failed", "suite", s.Name, "error", copyErr)
	}

	output := stripansi.Strip(outBuf.String())
	errs := stripansi.Strip(errBuf.String())
	result := NewResult(s, process.ExitCode(waitErr), output, errs, duration, countTests(output))

	r.logger.Info("suite_finished",
		"suite", s.Name,
		"success", result.Success,
		"exit_code", result.ExitCode,
		"duration", duration.String(),
		"tests_passed", result.Tests.Passed,
		"tests_failed", result.Tests.Failed,
	)
	return result, nil
}

func (r *Runner) startFailed(s Suite, spec process.Spec, err error, start time.Time) (Result, error) {
	startErr := &StartError{Suite: s.Name, Command: spec.CommandString(), Err: err}
	r.logger.Error("suite_start_failed",
		"suite", s.Name,
		"command", startErr.Command,
		"error", err,
	)
	return startFailure(s, startErr, time.Since(start)), startErr
}

// drainOutput waits up to the runner's wait delay for the output copies to
// reach EOF after the leader exited. When a forked process still holds the
// pipes, the group is killed and the read ends are closed.
func (r *Runner) drainOutput(s Suite, g *errgroup.Group, pipes ...*os.File) error {
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	timer := time.NewTimer(r.waitDelay)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
	}

	r.logger.Warn("suite_output_drain_timeout",
		"suite", s.Name,
		"timeout", r.waitDelay.String(),
		"reason", "output pipe still held open after exit",
	)
	closeAll(pipes...)
	return <-done
}

// countTests runs the Playwright line-reporter parser over captured output.
func countTests(output string) parser.TestCounts {
	p := parser.NewPlaywrightParser()
	for line := range strings.Lines(output) {
		p.ParseLine(strings.TrimRight(line, "\r\n"))
	}
	return p.Counts()
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
