// Package exitcodes defines the exit codes used by go-e2e-harness.
//
// Without -fail-exit a completed or interrupted run always exits Success.
// With -fail-exit:
//
//   - Success (0): every suite passed
//   - SuiteFailure (1): one or more suites failed
//   - RuntimeErr (2): a service could not be started or never became ready
//
// Configuration and flag errors always exit RuntimeErr.
package exitcodes

const (
	Success      = 0 // All suites pass
	SuiteFailure = 1 // Suite failures
	RuntimeErr   = 2 // Config errors, spawn errors, strict readiness aborts
)
