package stats

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/randomizedcoder/go-e2e-harness/internal/suite"
)

// Verdict lines printed after the per-suite summary.
const (
	AllPassedMessage   = "All suites passed!"
	SomeFailedMessage  = "Some suites failed. Check the output above for details."
	QuickPassedMessage = "No console errors detected!"
	QuickFailedMessage = "Console errors found. Run full test suite for details."
)

// FormatSummary renders the end-of-run summary:
//
//	TEST SUMMARY
//	================
//	Console Errors: PASS
//	Game Functionality: FAIL
//
//	1/2 suites passed
//	Some suites failed. Check the output above for details.
func FormatSummary(s *RunSummary) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("TEST SUMMARY\n")
	b.WriteString("================\n")

	for _, e := range s.Entries {
		fmt.Fprintf(&b, "%s: %s\n", e.Name, e.Result.Status())
	}

	fmt.Fprintf(&b, "\n%d/%d suites passed\n", s.Passed(), s.Total())
	if s.AllPassed() {
		b.WriteString(AllPassedMessage + "\n")
	} else {
		b.WriteString(SomeFailedMessage + "\n")
	}
	return b.String()
}

// FormatHints lists how to re-run parts of the suite.
func FormatHints(binary string) string {
	var b strings.Builder
	b.WriteString("\nRun individual checks:\n")
	fmt.Fprintf(&b, "  %s console   - Console error detection only\n", binary)
	fmt.Fprintf(&b, "  %s full      - All services and suites\n", binary)
	fmt.Fprintf(&b, "  %s -details  - Per-suite table with test counts\n", binary)
	return b.String()
}

// FormatQuickVerdict renders the single-line verdict of a quick check.
func FormatQuickVerdict(r suite.Result) string {
	if r.Success {
		return QuickPassedMessage
	}
	return QuickFailedMessage
}

// FormatTable renders a detailed per-suite table.
func FormatTable(s *RunSummary) string {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle(fmt.Sprintf("Run %s (%s)", s.RunID, s.Mode))

	t.AppendHeader(table.Row{"#", "SUITE", "SPEC", "STATUS", "EXIT", "DURATION", "PASSED", "FAILED", "FLAKY", "SKIPPED"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "SPEC", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "EXIT", Align: text.AlignRight},
		{Name: "DURATION", Align: text.AlignRight},
		{Name: "PASSED", Align: text.AlignRight},
		{Name: "FAILED", Align: text.AlignRight},
		{Name: "FLAKY", Align: text.AlignRight},
		{Name: "SKIPPED", Align: text.AlignRight},
	})

	var passed, failed, flaky, skipped int
	for i, e := range s.Entries {
		r := e.Result
		counts := r.Tests
		row := table.Row{i + 1, e.Name, r.Spec, r.Status(), r.ExitCode, FormatMs(r.Duration)}
		if counts.Parsed {
			row = append(row, counts.Passed, counts.Failed, counts.Flaky, counts.Skipped)
		} else {
			row = append(row, "-", "-", "-", "-")
		}
		t.AppendRow(row)

		passed += counts.Passed
		failed += counts.Failed
		flaky += counts.Flaky
		skipped += counts.Skipped
	}

	status := "PASS"
	if !s.AllPassed() {
		status = "FAIL"
	}
	t.AppendFooter(table.Row{"", "TOTAL", fmt.Sprintf("%d/%d", s.Passed(), s.Total()), status, "", FormatDuration(s.Duration), passed, failed, flaky, skipped})

	if s.AllPassed() {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.Render()

	if s.Total() > 0 {
		fmt.Fprintf(&buf, "Suite duration: p50 %s  p95 %s  max %s\n",
			FormatMs(s.DurationP50), FormatMs(s.DurationP95), FormatMs(s.DurationMax))
	}
	return buf.String()
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}
