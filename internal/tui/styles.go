// Package tui provides a live terminal dashboard for an e2e run.
//
// The dashboard is a Bubble Tea program styled with Lipgloss. The
// orchestrator feeds it through a Notifier; it shows each service's state
// and readiness reason, each suite's verdict as it lands, and the final
// tally once teardown completes.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-e2e-harness/internal/supervisor"
)

var (
	colorAccent = lipgloss.Color("#7C3AED")
	colorTitle  = lipgloss.Color("#06B6D4")
	colorPass   = lipgloss.Color("#10B981")
	colorBusy   = lipgloss.Color("#F59E0B")
	colorFail   = lipgloss.Color("#EF4444")
	colorWait   = lipgloss.Color("#3B82F6")
	colorText   = lipgloss.Color("#E5E7EB")
	colorMuted  = lipgloss.Color("#9CA3AF")
	colorDim    = lipgloss.Color("#6B7280")
	colorBorder = lipgloss.Color("#374151")
)

var (
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	boldStyle  = lipgloss.NewStyle().Foreground(colorText).Bold(true)

	passStyle = lipgloss.NewStyle().Foreground(colorPass).Bold(true)
	busyStyle = lipgloss.NewStyle().Foreground(colorBusy).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(colorFail).Bold(true)
	waitStyle = lipgloss.NewStyle().Foreground(colorWait).Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorAccent).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(colorTitle).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(colorBorder)

	footerStyle = lipgloss.NewStyle().Foreground(colorMuted).MarginTop(1)

	// Wide enough for "Game Functionality" plus a gap.
	nameStyle = lipgloss.NewStyle().Foreground(colorText).Width(22)

	barFilledStyle = lipgloss.NewStyle().Foreground(colorAccent)
	barEmptyStyle  = lipgloss.NewStyle().Foreground(colorBorder)
)

// serviceGlyphs marks each lifecycle state.
var serviceGlyphs = map[supervisor.State]string{
	supervisor.StateCreated:  "○",
	supervisor.StateStarting: "◌",
	supervisor.StateReady:    "●",
	supervisor.StateFailed:   "✗",
	supervisor.StateStopped:  "■",
}

// serviceStyle returns the style for a service state.
func serviceStyle(s supervisor.State) lipgloss.Style {
	switch s {
	case supervisor.StateReady:
		return passStyle
	case supervisor.StateFailed:
		return failStyle
	case supervisor.StateStarting:
		return waitStyle
	case supervisor.StateStopped:
		return dimStyle
	default:
		return mutedStyle
	}
}

// ServiceLabel renders a service state with its glyph, e.g. "● ready".
func ServiceLabel(s supervisor.State) string {
	glyph, ok := serviceGlyphs[s]
	if !ok {
		glyph = "?"
	}
	return serviceStyle(s).Render(glyph + " " + s.String())
}

// SuiteStatus is the dashboard's view of one suite.
type SuiteStatus int

const (
	SuitePending SuiteStatus = iota
	SuiteRunning
	SuitePassed
	SuiteFailed
)

// String returns the label shown for the status.
func (s SuiteStatus) String() string {
	switch s {
	case SuitePending:
		return "pending"
	case SuiteRunning:
		return "running"
	case SuitePassed:
		return "PASS"
	case SuiteFailed:
		return "FAIL"
	default:
		return "unknown"
	}
}

// IsFinished reports whether the suite has a verdict.
func (s SuiteStatus) IsFinished() bool {
	return s == SuitePassed || s == SuiteFailed
}

// suiteStyle returns the style for a suite status.
func suiteStyle(s SuiteStatus) lipgloss.Style {
	switch s {
	case SuitePassed:
		return passStyle
	case SuiteFailed:
		return failStyle
	case SuiteRunning:
		return busyStyle
	default:
		return dimStyle
	}
}

// minBarWidth is the narrowest progress bar drawn.
const minBarWidth = 10

// ProgressBar renders done out of total suites as a bar of width cells
// followed by the count, e.g. "██████░░░░ 2/3".
func ProgressBar(done, total, width int) string {
	if width < minBarWidth {
		width = minBarWidth
	}
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	filled = max(0, min(filled, width))

	return barFilledStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled)) +
		boldStyle.Render(fmt.Sprintf(" %d/%d", done, total))
}
