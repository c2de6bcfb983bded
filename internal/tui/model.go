package tui

import (
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-e2e-harness/internal/stats"
	"github.com/randomizedcoder/go-e2e-harness/internal/suite"
	"github.com/randomizedcoder/go-e2e-harness/internal/supervisor"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the elapsed clock.
type TickMsg time.Time

// ServiceStateMsg reports a service state transition.
type ServiceStateMsg struct {
	Service string
	State   supervisor.State
}

// ServiceReadyMsg reports how readiness resolved for a service.
type ServiceReadyMsg struct {
	Service    string
	Resolution supervisor.Resolution
}

// SuiteStartedMsg reports that a suite began.
type SuiteStartedMsg struct {
	Name string
}

// SuiteFinishedMsg carries a completed suite's result.
type SuiteFinishedMsg struct {
	Result suite.Result
}

// RunCompleteMsg carries the final summary after teardown.
type RunCompleteMsg struct {
	Summary *stats.RunSummary
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

type serviceRow struct {
	name   string
	state  supervisor.State
	reason string
}

type suiteRow struct {
	name     string
	status   SuiteStatus
	exitCode int
	duration time.Duration
}

// Model represents the TUI state.
type Model struct {
	// Configuration
	runID       string
	mode        string
	metricsAddr string
	onInterrupt func()

	// Current state
	services    []serviceRow
	suites      []suiteRow
	summary     *stats.RunSummary
	startTime   time.Time
	lastUpdate  time.Time
	interrupted bool

	// Display options
	width  int
	height int

	quitting bool
}

// Config holds TUI configuration.
type Config struct {
	RunID       string
	Mode        string
	MetricsAddr string
	Services    []string
	Suites      []string

	// OnInterrupt is called once when the user presses q or ctrl+c.
	OnInterrupt func()
}

// New creates a new TUI model.
func New(cfg Config) Model {
	m := Model{
		runID:       cfg.RunID,
		mode:        cfg.Mode,
		metricsAddr: cfg.MetricsAddr,
		onInterrupt: cfg.OnInterrupt,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
	for _, name := range cfg.Services {
		m.services = append(m.services, serviceRow{name: name})
	}
	for _, name := range cfg.Suites {
		m.suites = append(m.suites, suiteRow{name: name})
	}
	return m
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.interrupted && m.summary == nil && m.onInterrupt != nil {
				m.onInterrupt()
			}
			m.interrupted = true
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case ServiceStateMsg:
		row := m.service(msg.Service)
		row.state = msg.State
		m.lastUpdate = time.Now()
		return m, nil

	case ServiceReadyMsg:
		row := m.service(msg.Service)
		row.reason = msg.Resolution.Reason.String()
		return m, nil

	case SuiteStartedMsg:
		row := m.suite(msg.Name)
		row.status = SuiteRunning
		m.lastUpdate = time.Now()
		return m, nil

	case SuiteFinishedMsg:
		row := m.suite(msg.Result.Name)
		row.status = SuiteFailed
		if msg.Result.Success {
			row.status = SuitePassed
		}
		row.exitCode = msg.Result.ExitCode
		row.duration = msg.Result.Duration
		m.lastUpdate = time.Now()
		return m, nil

	case RunCompleteMsg:
		m.summary = msg.Summary
		m.quitting = true
		return m, tea.Quit

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// service returns the row for name, appending one for services not
// declared up front. The slice is copied so earlier Model values stay intact.
func (m *Model) service(name string) *serviceRow {
	m.services = append([]serviceRow(nil), m.services...)
	for i := range m.services {
		if m.services[i].name == name {
			return &m.services[i]
		}
	}
	m.services = append(m.services, serviceRow{name: name})
	return &m.services[len(m.services)-1]
}

func (m *Model) suite(name string) *suiteRow {
	m.suites = append([]suiteRow(nil), m.suites...)
	for i := range m.suites {
		if m.suites[i].name == name {
			return &m.suites[i]
		}
	}
	m.suites = append(m.suites, suiteRow{name: name})
	return &m.suites[len(m.suites)-1]
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the run started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Completed returns the number of suites that have finished.
func (m Model) Completed() int {
	n := 0
	for _, s := range m.suites {
		if s.status.IsFinished() {
			n++
		}
	}
	return n
}

// ServiceState returns the displayed state for a service.
func (m Model) ServiceState(name string) (supervisor.State, bool) {
	for _, s := range m.services {
		if s.name == name {
			return s.state, true
		}
	}
	return supervisor.StateCreated, false
}

// SuiteStatus returns the displayed status for a suite.
func (m Model) SuiteStatus(name string) (SuiteStatus, bool) {
	for _, s := range m.suites {
		if s.name == name {
			return s.status, true
		}
	}
	return SuitePending, false
}

// Interrupted reports whether the user asked to stop the run.
func (m Model) Interrupted() bool {
	return m.interrupted
}

// =============================================================================
// Notifier
// =============================================================================

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Notifier forwards run events to a running program. A nil Notifier or
// nil Sender drops events, as does a closed one.
type Notifier struct {
	mu     sync.Mutex
	p      Sender
	closed bool
}

// NewNotifier creates a Notifier for p.
func NewNotifier(p Sender) *Notifier {
	return &Notifier{p: p}
}

func (n *Notifier) send(msg tea.Msg) {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.p == nil || n.closed {
		return
	}
	n.p.Send(msg)
}

// Close stops forwarding.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
}

// ServiceState forwards a service state transition.
func (n *Notifier) ServiceState(service string, _, newState supervisor.State) {
	n.send(ServiceStateMsg{Service: service, State: newState})
}

// ServiceReady forwards a readiness resolution.
func (n *Notifier) ServiceReady(service string, res supervisor.Resolution) {
	n.send(ServiceReadyMsg{Service: service, Resolution: res})
}

// SuiteStarted forwards a suite start.
func (n *Notifier) SuiteStarted(name string) {
	n.send(SuiteStartedMsg{Name: name})
}

// SuiteFinished forwards a suite result.
func (n *Notifier) SuiteFinished(r suite.Result) {
	n.send(SuiteFinishedMsg{Result: r})
}

// RunComplete forwards the final summary.
func (n *Notifier) RunComplete(s *stats.RunSummary) {
	n.send(RunCompleteMsg{Summary: s})
}

// Quit asks the program to exit.
func (n *Notifier) Quit() {
	n.send(QuitMsg{})
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
