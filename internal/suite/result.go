package suite

import (
	"fmt"
	"time"

	"github.com/randomizedcoder/go-e2e-harness/internal/parser"
)

// Suite is one verification suite: a display name plus the spec identifier
// substituted into the command template.
type Suite struct {
	Name string
	Spec string

	// Command overrides the runner's template for this suite.
	Command string
}

// Result is the outcome of running one suite. A failing suite is data, not
// an error. Success is always ExitCode == 0.
type Result struct {
	Name     string
	Spec     string
	Success  bool
	ExitCode int
	Output   string
	Errors   string
	Duration time.Duration
	Tests    parser.TestCounts
}

// NewResult builds a Result, deriving Success from the exit code.
func NewResult(s Suite, exitCode int, output, errs string, duration time.Duration, tests parser.TestCounts) Result {
	return Result{
		Name:     s.Name,
		Spec:     s.Spec,
		Success:  exitCode == 0,
		ExitCode: exitCode,
		Output:   output,
		Errors:   errs,
		Duration: duration,
		Tests:    tests,
	}
}

// Status returns "PASS" or "FAIL".
func (r Result) Status() string {
	if r.Success {
		return "PASS"
	}
	return "FAIL"
}

// StartError reports that a suite's subprocess could not be started.
// The run records it as a failed Result and moves on.
type StartError struct {
	Suite   string
	Command string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start suite %s (%s): %v", e.Suite, e.Command, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// startFailure is the Result recorded for a suite that never ran.
func startFailure(s Suite, err error, duration time.Duration) Result {
	return NewResult(s, -1, "", err.Error(), duration, parser.TestCounts{})
}
