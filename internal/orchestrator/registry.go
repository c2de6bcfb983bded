package orchestrator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/randomizedcoder/go-e2e-harness/internal/supervisor"
)

// Stoppable is the part of a managed service teardown needs.
type Stoppable interface {
	Name() string
	Stop(timeout time.Duration) error
}

// Registry is the list of services launched by one run, in launch order.
// Services are added before they are started so teardown reaches them
// even when the launch itself fails.
type Registry struct {
	logger *slog.Logger

	mu        sync.Mutex
	processes []Stoppable

	stopOnce sync.Once
	stopErrs []error
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Add appends a service. Registrations after StopAll are not stopped.
func (r *Registry) Add(p Stoppable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processes = append(r.processes, p)
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.processes)
}

// Processes returns a copy of the registered services in launch order.
func (r *Registry) Processes() []Stoppable {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Stoppable(nil), r.processes...)
}

// StopAll stops every registered service once, in reverse launch order.
// A failure is logged and never skips the remaining services. Only the
// first call does anything; later calls return the same errors.
func (r *Registry) StopAll(timeout time.Duration) []error {
	r.stopOnce.Do(func() {
		procs := r.Processes()
		for i := len(procs) - 1; i >= 0; i-- {
			p := procs[i]
			if err := p.Stop(timeout); err != nil {
				r.logger.Warn("teardown_error", "service", p.Name(), "error", err)
				r.stopErrs = append(r.stopErrs, err)
			}
		}
		r.logger.Info("teardown_complete", "services", len(procs), "errors", len(r.stopErrs))
	})
	return r.stopErrs
}

var _ Stoppable = (*supervisor.ManagedProcess)(nil)
