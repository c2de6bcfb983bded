package supervisor

import (
	"context"
	"time"
)

// DefaultReadinessTimeout bounds how long the gate waits for a readiness line.
const DefaultReadinessTimeout = 10 * time.Second

// Reason explains how a readiness wait was resolved.
type Reason int

const (
	// ReasonMatched means an output line matched a readiness pattern.
	ReasonMatched Reason = iota

	// ReasonTimeout means the bound elapsed without a match. Still Ready.
	ReasonTimeout

	// ReasonSpawnFailed means the process could not be launched.
	ReasonSpawnFailed

	// ReasonExited means the process exited before any match.
	ReasonExited

	// ReasonCancelled means the run context was cancelled while waiting.
	ReasonCancelled
)

// String returns a human-readable name for the reason.
func (r Reason) String() string {
	switch r {
	case ReasonMatched:
		return "matched"
	case ReasonTimeout:
		return "timeout"
	case ReasonSpawnFailed:
		return "spawn_failed"
	case ReasonExited:
		return "exited"
	case ReasonCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of a readiness wait.
type Resolution struct {
	State   State // StateReady or StateFailed
	Reason  Reason
	Err     error
	Elapsed time.Duration
}

// Ready reports whether the service may be treated as usable.
func (r Resolution) Ready() bool {
	return r.State == StateReady
}

// Watchable is what the gate observes. *ManagedProcess implements it.
type Watchable interface {
	// Ready is closed on the first readiness-pattern match.
	Ready() <-chan struct{}
	// Exited is closed once the process has been reaped (or never started).
	Exited() <-chan struct{}
	// SpawnErr returns the launch error, if any.
	SpawnErr() error
}

// Gate decides when a launched service counts as ready.
//
// A match resolves Ready. Timeout also resolves Ready (lenient policy: a
// service that never prints a readiness phrase is assumed to be up). A spawn
// error, an early exit, or cancellation resolves Failed.
type Gate struct {
	Timeout time.Duration
}

// Await blocks until the first of: readiness match, process exit, timeout,
// or context cancellation. The first event wins; later events do not change
// the resolution.
func (g Gate) Await(ctx context.Context, w Watchable) Resolution {
	start := time.Now()

	if err := w.SpawnErr(); err != nil {
		return Resolution{State: StateFailed, Reason: ReasonSpawnFailed, Err: err}
	}

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultReadinessTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.Ready():
		return Resolution{State: StateReady, Reason: ReasonMatched, Elapsed: time.Since(start)}

	case <-w.Exited():
		// A line matched before the reaper closed Exited still counts.
		select {
		case <-w.Ready():
			return Resolution{State: StateReady, Reason: ReasonMatched, Elapsed: time.Since(start)}
		default:
		}
		if err := w.SpawnErr(); err != nil {
			return Resolution{State: StateFailed, Reason: ReasonSpawnFailed, Err: err, Elapsed: time.Since(start)}
		}
		return Resolution{State: StateFailed, Reason: ReasonExited, Err: ErrExitedEarly, Elapsed: time.Since(start)}

	case <-timer.C:
		return Resolution{State: StateReady, Reason: ReasonTimeout, Elapsed: time.Since(start)}

	case <-ctx.Done():
		return Resolution{State: StateFailed, Reason: ReasonCancelled, Err: ctx.Err(), Elapsed: time.Since(start)}
	}
}
