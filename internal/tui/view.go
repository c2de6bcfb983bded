package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-e2e-harness/internal/stats"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderDashboard renders the services and suites panels.
func (m Model) renderDashboard() string {
	sections := []string{
		m.renderHeader(),
		m.renderServices(),
		m.renderSuites(),
		m.renderFooter(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" go-e2e-harness | %s | run %s | Elapsed: %s ",
		m.mode,
		shortID(m.runID),
		formatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// =============================================================================
// Services
// =============================================================================

func (m Model) renderServices() string {
	rows := []string{sectionStyle.Render("Services")}
	if len(m.services) == 0 {
		rows = append(rows, dimStyle.Render("(none)"))
	}
	for _, s := range m.services {
		line := nameStyle.Render(s.name) + ServiceLabel(s.state)
		if s.reason != "" {
			line += mutedStyle.Render(" (" + s.reason + ")")
		}
		rows = append(rows, line)
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Suites
// =============================================================================

func (m Model) renderSuites() string {
	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}

	rows := []string{
		sectionStyle.Render("Suites"),
		ProgressBar(m.Completed(), len(m.suites), barWidth),
	}
	for _, s := range m.suites {
		line := nameStyle.Render(s.name) + suiteStyle(s.status).Render(s.status.String())
		switch s.status {
		case SuiteFailed:
			line += mutedStyle.Render(fmt.Sprintf(" exit %d, %s", s.exitCode, stats.FormatDuration(s.duration)))
		case SuitePassed:
			line += mutedStyle.Render(" " + stats.FormatDuration(s.duration))
		}
		rows = append(rows, line)
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	parts := []string{"q: stop run"}
	if m.metricsAddr != "" {
		parts = append(parts, "metrics: http://"+m.metricsAddr+"/metrics")
	}
	if m.interrupted {
		parts = append(parts, busyStyle.Render("shutting down..."))
	}
	return footerStyle.Render(strings.Join(parts, " | "))
}
