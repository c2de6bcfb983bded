package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomizedcoder/go-e2e-harness/internal/supervisor"
)

func TestWriteTextfile_RoundTrip(t *testing.T) {
	c, reg := newTestCollector(t)
	c.SetServiceState("Game Server", supervisor.StateStopped)
	c.RecordSuite(testResult("console-errors", 0, 2*time.Second))
	c.RecordSuite(testResult("game-functionality", 1, time.Second))

	path := filepath.Join(t.TempDir(), "e2e.prom")
	require.NoError(t, WriteTextfile(path, reg))

	families, err := ReadTextfile(path)
	require.NoError(t, err)

	require.Contains(t, families, "e2e_harness_suites_total")
	require.Contains(t, families, "e2e_harness_service_state")

	var pass, fail float64
	for _, m := range families["e2e_harness_suites_total"].GetMetric() {
		switch {
		case labelsMatch(m, map[string]string{"result": ResultPass}):
			pass = m.GetCounter().GetValue()
		case labelsMatch(m, map[string]string{"result": ResultFail}):
			fail = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, pass)
	assert.Equal(t, 1.0, fail)

	state := families["e2e_harness_service_state"].GetMetric()
	require.Len(t, state, 1)
	assert.Equal(t, 4.0, state[0].GetGauge().GetValue())
}

func TestWriteTextfile_ReplacesExisting(t *testing.T) {
	_, reg := newTestCollector(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "e2e.prom")
	require.NoError(t, os.WriteFile(path, []byte("stale\n"), 0o644))

	require.NoError(t, WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale")
	assert.Contains(t, string(data), "# TYPE e2e_harness_info gauge")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should not be left behind")
}

func TestWriteTextfile_MissingDir(t *testing.T) {
	_, reg := newTestCollector(t)
	err := WriteTextfile(filepath.Join(t.TempDir(), "nope", "e2e.prom"), reg)
	assert.Error(t, err)
}

func TestReadTextfile_Missing(t *testing.T) {
	_, err := ReadTextfile(filepath.Join(t.TempDir(), "absent.prom"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
