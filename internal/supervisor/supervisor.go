package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-e2e-harness/internal/logging"
	"github.com/randomizedcoder/go-e2e-harness/internal/parser"
	"github.com/randomizedcoder/go-e2e-harness/internal/process"
)

// outputDrainTimeout bounds how long the reaper waits for buffered output
// after the process exits. Orphaned grandchildren can hold a pipe open.
const outputDrainTimeout = 2 * time.Second

// Callbacks contains optional callback functions for service events.
type Callbacks struct {
	// OnStateChange is called when the service state changes.
	OnStateChange func(service string, oldState, newState State)

	// OnStart is called when the service process has been spawned.
	OnStart func(service string, pid int)

	// OnExit is called once the service process has been reaped.
	OnExit func(service string, exitCode int, uptime time.Duration)

	// OnTerminate is called once per service when teardown begins.
	// pid is 0 when no process was ever spawned.
	OnTerminate func(service string, pid int)
}

// Config holds configuration for creating a new ManagedProcess.
type Config struct {
	Spec      process.Spec
	Port      int // informational only
	Logger    *slog.Logger
	Callbacks Callbacks
	Verbose   bool

	// ReadinessPatterns overrides parser.DefaultReadinessPatterns.
	ReadinessPatterns []string

	// Output pipeline tuning (defaults 1000 lines, 1%).
	BufferSize    int
	DropThreshold float64
}

// ManagedProcess is one background service launched for a test run.
//
// It exclusively owns its child process. The child runs in its own process
// group so teardown reaches anything it forks. Stop issues at most one
// termination request no matter how often it is called.
type ManagedProcess struct {
	name      string
	port      int
	spec      process.Spec
	logger    *slog.Logger
	callbacks Callbacks

	bufferSize    int
	dropThreshold float64

	readiness *parser.ReadinessParser
	stdoutLog *logging.OutputHandler
	stderrLog *logging.OutputHandler

	stdoutPipeline *parser.Pipeline
	stderrPipeline *parser.Pipeline

	// State management
	state      State
	resolution Resolution
	stateMu    sync.RWMutex
	startTime  time.Time

	// Current process
	cmd      *exec.Cmd
	pid      int
	spawnErr error
	exitCode int
	cmdMu    sync.Mutex

	waited chan struct{} // closed when cmd.Wait returns
	exited chan struct{} // closed after output has drained

	stopOnce sync.Once
	stopErr  error
}

// New creates a ManagedProcess. Nothing is launched until Start.
func New(cfg Config) *ManagedProcess {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = parser.DefaultBufferSize
	}

	threshold := cfg.DropThreshold
	if threshold <= 0 {
		threshold = parser.DefaultDropThreshold
	}

	name := cfg.Spec.Name()
	return &ManagedProcess{
		name:          name,
		port:          cfg.Port,
		spec:          cfg.Spec,
		logger:        logger,
		callbacks:     cfg.Callbacks,
		bufferSize:    bufferSize,
		dropThreshold: threshold,
		readiness:     parser.NewReadinessParser(cfg.ReadinessPatterns),
		stdoutLog:     logging.NewOutputHandler(name, "stdout", logger, cfg.Verbose),
		stderrLog:     logging.NewOutputHandler(name, "stderr", logger, cfg.Verbose),
		state:         StateCreated,
		waited:        make(chan struct{}),
		exited:        make(chan struct{}),
	}
}

// Start launches the process and returns without waiting for readiness.
// A launch failure moves the service to StateFailed and returns a *SpawnError.
func (m *ManagedProcess) Start() error {
	if m.State() != StateCreated {
		return fmt.Errorf("%s: already started", m.name)
	}
	m.setState(StateStarting)

	cmd, err := m.spec.BuildCommand(context.Background())
	if err != nil {
		return m.spawnFailed(err)
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return m.spawnFailed(fmt.Errorf("stdout pipe: %w", err))
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return m.spawnFailed(fmt.Errorf("stderr pipe: %w", err))
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	// Set process group for clean shutdown
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	m.startTime = time.Now()
	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return m.spawnFailed(err)
	}

	// The parent's write ends must be closed so readers see EOF when the
	// child exits.
	closeAll(stdoutW, stderrW)

	pid := cmd.Process.Pid
	m.cmdMu.Lock()
	m.cmd = cmd
	m.pid = pid
	m.cmdMu.Unlock()

	m.stdoutPipeline = parser.NewPipeline(m.name, "stdout", m.bufferSize, m.dropThreshold)
	m.stderrPipeline = parser.NewPipeline(m.name, "stderr", m.bufferSize, m.dropThreshold)

	go m.stdoutPipeline.Consume(stdoutR)
	go m.stderrPipeline.Consume(stderrR)

	var parseWg sync.WaitGroup
	parseWg.Add(2)
	go func() {
		defer parseWg.Done()
		m.stdoutPipeline.Run(parser.Tee{m.readiness, m.stdoutLog})
	}()
	go func() {
		defer parseWg.Done()
		m.stderrPipeline.Run(m.stderrLog)
	}()

	m.logger.Info("service_started",
		"service", m.name,
		"pid", pid,
		"port", m.port,
		"command", m.spec.CommandString(),
	)

	if m.callbacks.OnStart != nil {
		m.callbacks.OnStart(m.name, pid)
	}

	go m.reap(cmd, &parseWg, stdoutR, stderrR)
	return nil
}

// spawnFailed records a launch error and releases anyone waiting on Exited.
func (m *ManagedProcess) spawnFailed(err error) error {
	spawnErr := &SpawnError{Service: m.name, Command: m.spec.CommandString(), Err: err}

	m.cmdMu.Lock()
	m.spawnErr = spawnErr
	m.exitCode = -1
	m.cmdMu.Unlock()

	m.logger.Error("service_spawn_failed",
		"service", m.name,
		"command", spawnErr.Command,
		"error", err,
	)

	m.setState(StateFailed)
	close(m.waited)
	close(m.exited)
	return spawnErr
}

// reap is the single goroutine that waits for the child.
func (m *ManagedProcess) reap(cmd *exec.Cmd, parseWg *sync.WaitGroup, pipes ...*os.File) {
	waitErr := cmd.Wait()
	uptime := time.Since(m.startTime)
	exitCode := process.ExitCode(waitErr)

	m.cmdMu.Lock()
	m.exitCode = exitCode
	m.cmdMu.Unlock()
	close(m.waited)

	m.drainParsers(parseWg)
	closeAll(pipes...)
	parseWg.Wait()

	m.logger.Info("service_exited",
		"service", m.name,
		"pid", cmd.Process.Pid,
		"exit_code", exitCode,
		"uptime", uptime.String(),
	)

	if m.callbacks.OnExit != nil {
		m.callbacks.OnExit(m.name, exitCode, uptime)
	}
	close(m.exited)
}

// drainParsers waits for the output pipelines to finish with a timeout.
func (m *ManagedProcess) drainParsers(parseWg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		parseWg.Wait()
		close(done)
	}()

	timer := time.NewTimer(outputDrainTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		m.logger.Warn("output_drain_timeout",
			"service", m.name,
			"timeout", outputDrainTimeout.String(),
			"reason", "output pipe still held open after exit",
		)
	}
	m.logPipelineStats()
}

// logPipelineStats logs pipeline health metrics.
func (m *ManagedProcess) logPipelineStats() {
	for _, p := range []*parser.Pipeline{m.stdoutPipeline, m.stderrPipeline} {
		if p == nil {
			continue
		}
		s := p.Stats()
		if s.Dropped > 0 || s.Truncated > 0 || m.logger.Enabled(context.Background(), slog.LevelDebug) {
			m.logger.Info("pipeline_stats",
				"service", m.name,
				"stream", p.Stream(),
				"bytes_read", s.Bytes,
				"lines_read", s.Read,
				"lines_dropped", s.Dropped,
				"lines_parsed", s.Parsed,
				"lines_truncated", s.Truncated,
				"degraded", p.Degraded(),
			)
		}
	}
}

// AwaitReady runs the gate against this process and records the outcome.
// Only a service still in StateStarting moves to the resolved state.
func (m *ManagedProcess) AwaitReady(ctx context.Context, gate Gate) Resolution {
	res := gate.Await(ctx, m)

	m.stateMu.Lock()
	m.resolution = res
	oldState := m.state
	changed := oldState == StateStarting && oldState != res.State
	if changed {
		m.state = res.State
	}
	m.stateMu.Unlock()

	if changed && m.callbacks.OnStateChange != nil {
		m.callbacks.OnStateChange(m.name, oldState, res.State)
	}

	switch {
	case res.Ready():
		m.logger.Info("service_ready",
			"service", m.name,
			"reason", res.Reason.String(),
			"elapsed", res.Elapsed.String(),
			"line", m.readiness.MatchLine(),
		)
	case res.Reason == ReasonExited:
		_, stderrTail := m.RecentOutput(10)
		m.logger.Warn("service_not_ready",
			"service", m.name,
			"reason", res.Reason.String(),
			"exit_code", m.ExitCode(),
			"stderr_tail", stderrTail,
			"error_patterns", m.stderrLog.CountErrors(),
		)
	default:
		m.logger.Warn("service_not_ready",
			"service", m.name,
			"reason", res.Reason.String(),
			"error", res.Err,
		)
	}
	return res
}

// Stop terminates the process group: SIGTERM, then SIGKILL once timeout
// elapses. Only the first call does anything; later calls return the same
// result.
func (m *ManagedProcess) Stop(timeout time.Duration) error {
	m.stopOnce.Do(func() {
		m.stopErr = m.stop(timeout)
		m.setState(StateStopped)
	})
	return m.stopErr
}

func (m *ManagedProcess) stop(timeout time.Duration) error {
	m.cmdMu.Lock()
	cmd := m.cmd
	pid := m.pid
	m.cmdMu.Unlock()

	if m.callbacks.OnTerminate != nil {
		m.callbacks.OnTerminate(m.name, pid)
	}

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	m.logger.Info("service_stopping", "service", m.name, "pid", pid)

	// Signal the whole group even if the leader already exited, so
	// stragglers it forked go too.
	var sigErr error
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			sigErr = &TeardownError{Service: m.name, PID: pid, Op: "signal", Err: err}
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-m.waited:
		<-m.exited
		return sigErr
	case <-timer.C:
	}

	m.logger.Warn("force_killing_service",
		"service", m.name,
		"pid", pid,
		"timeout", timeout.String(),
	)
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		_ = cmd.Process.Kill()
	}

	killTimer := time.NewTimer(timeout)
	defer killTimer.Stop()
	select {
	case <-m.exited:
	case <-killTimer.C:
		m.logger.Error("service_not_reaped", "service", m.name, "pid", pid)
	}
	return &TeardownError{Service: m.name, PID: pid, Op: "kill", Err: ErrGraceExpired}
}

// Ready is closed on the first readiness-pattern match.
func (m *ManagedProcess) Ready() <-chan struct{} {
	return m.readiness.Matched()
}

// Exited is closed once the process has been reaped and its output drained,
// or immediately if it could not be spawned.
func (m *ManagedProcess) Exited() <-chan struct{} {
	return m.exited
}

// SpawnErr returns the launch error, or nil.
func (m *ManagedProcess) SpawnErr() error {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()
	return m.spawnErr
}

// State returns the current state of the service.
func (m *ManagedProcess) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// Resolution returns the outcome recorded by AwaitReady.
func (m *ManagedProcess) Resolution() Resolution {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.resolution
}

// setState updates the state and calls the callback if registered.
func (m *ManagedProcess) setState(newState State) {
	m.stateMu.Lock()
	oldState := m.state
	m.state = newState
	m.stateMu.Unlock()

	if m.callbacks.OnStateChange != nil && oldState != newState {
		m.callbacks.OnStateChange(m.name, oldState, newState)
	}
}

// Name returns the service label.
func (m *ManagedProcess) Name() string {
	return m.name
}

// Port returns the declared port. It is informational only.
func (m *ManagedProcess) Port() int {
	return m.port
}

// Spec returns the launch specification.
func (m *ManagedProcess) Spec() process.Spec {
	return m.spec
}

// PID returns the process ID, or 0 if nothing was spawned.
func (m *ManagedProcess) PID() int {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()
	return m.pid
}

// ExitCode returns the exit code once the process has been reaped.
// Signal deaths report 128+signal; a spawn failure reports -1.
func (m *ManagedProcess) ExitCode() int {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()
	return m.exitCode
}

// RecentOutput returns up to n recent lines from each stream.
func (m *ManagedProcess) RecentOutput(n int) (stdout, stderr []string) {
	return m.stdoutLog.RecentLines(n), m.stderrLog.RecentLines(n)
}

// PipelineStats returns the output pipeline statistics for both streams.
// Returns zeros before Start.
func (m *ManagedProcess) PipelineStats() (stdoutRead, stdoutDropped, stderrRead, stderrDropped int64) {
	if m.stdoutPipeline != nil {
		s := m.stdoutPipeline.Stats()
		stdoutRead, stdoutDropped = s.Read, s.Dropped
	}
	if m.stderrPipeline != nil {
		s := m.stderrPipeline.Stats()
		stderrRead, stderrDropped = s.Read, s.Dropped
	}
	return
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
