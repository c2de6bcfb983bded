package orchestrator

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	name  string
	err   error
	order *[]string
	mu    *sync.Mutex
	stops int
}

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) Stop(time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	*f.order = append(*f.order, f.name)
	return f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_StopAllReverseOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	r := NewRegistry(quietLogger())
	a := &fakeService{name: "Game Server", order: &order, mu: &mu}
	b := &fakeService{name: "Client Server", order: &order, mu: &mu}
	r.Add(a)
	r.Add(b)

	assert.Equal(t, 2, r.Len())
	errs := r.StopAll(time.Second)

	assert.Empty(t, errs)
	assert.Equal(t, []string{"Client Server", "Game Server"}, order)
}

func TestRegistry_StopAllContinuesPastErrors(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	boom := errors.New("boom")
	r := NewRegistry(nil)
	first := &fakeService{name: "first", order: &order, mu: &mu}
	second := &fakeService{name: "second", err: boom, order: &order, mu: &mu}
	third := &fakeService{name: "third", err: boom, order: &order, mu: &mu}
	r.Add(first)
	r.Add(second)
	r.Add(third)

	errs := r.StopAll(time.Second)

	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], boom)
	assert.Equal(t, 1, first.stops, "an earlier failure must not skip later services")
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestRegistry_StopAllOnce(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	r := NewRegistry(quietLogger())
	svc := &fakeService{name: "svc", err: errors.New("x"), order: &order, mu: &mu}
	r.Add(svc)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Len(t, r.StopAll(time.Second), 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, svc.stops)
}

func TestRegistry_ProcessesIsCopy(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	r := NewRegistry(quietLogger())
	r.Add(&fakeService{name: "a", order: &order, mu: &mu})

	procs := r.Processes()
	procs[0] = nil
	assert.NotNil(t, r.Processes()[0])
}

func TestRegistry_Empty(t *testing.T) {
	r := NewRegistry(quietLogger())
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.StopAll(time.Second))
}
