package supervisor

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawn matches any *SpawnError.
	ErrSpawn = errors.New("spawn failed")

	// ErrTeardown matches any *TeardownError.
	ErrTeardown = errors.New("teardown failed")

	// ErrExitedEarly is reported when a service exits before it became ready.
	ErrExitedEarly = errors.New("process exited before becoming ready")

	// ErrGraceExpired is reported when a service ignored SIGTERM and was killed.
	ErrGraceExpired = errors.New("process did not exit gracefully")
)

// SpawnError reports that a service's process could not be launched at all
// (executable missing, permission denied, bad working directory).
type SpawnError struct {
	Service string
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("start %s (%s): %v", e.Service, e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrSpawn) match.
func (e *SpawnError) Is(target error) bool { return target == ErrSpawn }

// TeardownError reports a failure while terminating a service. It is logged
// and never stops the remaining services from being torn down.
type TeardownError struct {
	Service string
	PID     int
	Op      string // "signal" or "kill"
	Err     error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("stop %s (pid %d): %s: %v", e.Service, e.PID, e.Op, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTeardown) match.
func (e *TeardownError) Is(target error) bool { return target == ErrTeardown }
