package main

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomizedcoder/go-e2e-harness/internal/exitcodes"
	"github.com/randomizedcoder/go-e2e-harness/internal/metrics"
	"github.com/randomizedcoder/go-e2e-harness/internal/stats"
)

const configTemplate = `
readiness_timeout: 5s
stop_timeout: 2s
suite_wait_delay: 1s
log_format: text
services:
  - name: Game Server
    command: "sh -c 'echo listening; exec sleep 30'"
    port: 8000
  - name: Client Server
    command: "sh -c 'echo started; exec sleep 30'"
    port: 3000
suites:
  - name: Console Errors
    command: "sh -c 'echo \"  2 passed (1.0s)\"'"
  - name: Game Functionality
    command: "sh -c 'exit %s'"
quick:
  services: [Client Server]
  suites: [Console Errors]
  settle: 0s
`

// writeConfig writes a run config whose second suite exits with code.
func writeConfig(t *testing.T, code string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "e2e.yaml")
	content := bytes.ReplaceAll([]byte(configTemplate), []byte("%s"), []byte(code))
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Version(t *testing.T) {
	for _, args := range [][]string{{"version"}, {"-version"}, {"--version"}} {
		code, out, _ := runCLI(t, args...)
		assert.Equal(t, exitcodes.Success, code, "args %v", args)
		assert.Equal(t, "go-e2e-harness dev\n", out, "args %v", args)
	}
}

func TestRun_Help(t *testing.T) {
	code, _, errOut := runCLI(t, "-h")
	assert.Equal(t, exitcodes.Success, code)
	assert.Contains(t, errOut, "Usage:")
}

func TestRun_BadFlag(t *testing.T) {
	code, _, errOut := runCLI(t, "-no-such-flag")
	assert.Equal(t, exitcodes.RuntimeErr, code)
	assert.Contains(t, errOut, "no-such-flag")
}

func TestRun_InvalidConfig(t *testing.T) {
	code, _, errOut := runCLI(t, "-stop-timeout", "0s")
	assert.Equal(t, exitcodes.RuntimeErr, code)
	assert.Contains(t, errOut, "Configuration error")
	assert.Contains(t, errOut, "stop_timeout")
}

func TestRun_MissingConfigFile(t *testing.T) {
	code, _, _ := runCLI(t, "-config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, exitcodes.RuntimeErr, code)
}

func TestRun_PrintPlan(t *testing.T) {
	cfgPath := writeConfig(t, "0")

	code, out, _ := runCLI(t, "-config", cfgPath, "--print-plan")
	require.Equal(t, exitcodes.Success, code)
	assert.Contains(t, out, "# Mode: full")
	assert.Contains(t, out, "Game Server:")
	assert.Contains(t, out, "Client Server:")
	assert.Contains(t, out, "Game Functionality: sh -c")

	code, out, _ = runCLI(t, "-config", cfgPath, "--print-plan", "console")
	require.Equal(t, exitcodes.Success, code)
	assert.Contains(t, out, "# Mode: console")
	assert.NotContains(t, out, "Game Server:")
	assert.NotContains(t, out, "Game Functionality")
}

func TestRun_FullPass(t *testing.T) {
	cfgPath := writeConfig(t, "0")
	metricsFile := filepath.Join(t.TempDir(), "e2e.prom")

	code, out, _ := runCLI(t, "-config", cfgPath, "--skip-preflight", "-details", "-metrics-file", metricsFile)
	require.Equal(t, exitcodes.Success, code)

	assert.Contains(t, out, "Starting Game Server...")
	assert.Contains(t, out, "Client Server started successfully")
	assert.Contains(t, out, "TEST SUMMARY")
	assert.Contains(t, out, "2/2 suites passed")
	assert.Contains(t, out, stats.AllPassedMessage)
	assert.Contains(t, out, "Run individual checks:")

	families, err := metrics.ReadTextfile(metricsFile)
	require.NoError(t, err)
	require.Contains(t, families, "e2e_harness_suites_total")
	require.Contains(t, families, "e2e_harness_info")
	for _, m := range families["e2e_harness_suites_total"].GetMetric() {
		if m.GetLabel()[0].GetValue() == metrics.ResultPass {
			assert.Equal(t, 2.0, m.GetCounter().GetValue())
		}
	}
}

func TestRun_FailExit(t *testing.T) {
	cfgPath := writeConfig(t, "3")

	code, out, _ := runCLI(t, "-config", cfgPath, "--skip-preflight")
	assert.Equal(t, exitcodes.Success, code, "a completed run exits 0 without -fail-exit")
	assert.Contains(t, out, "Game Functionality tests failed with code 3")
	assert.Contains(t, out, "1/2 suites passed")
	assert.Contains(t, out, stats.SomeFailedMessage)

	code, _, _ = runCLI(t, "-config", cfgPath, "--skip-preflight", "-fail-exit")
	assert.Equal(t, exitcodes.SuiteFailure, code)
}

func TestRun_QuickCheck(t *testing.T) {
	cfgPath := writeConfig(t, "0")

	code, out, _ := runCLI(t, "-config", cfgPath, "--skip-preflight", "console")
	require.Equal(t, exitcodes.Success, code)
	assert.Contains(t, out, stats.QuickPassedMessage)
	assert.NotContains(t, out, "Starting Game Server")
	assert.NotContains(t, out, "TEST SUMMARY")
}

func TestRun_ServiceStateMetricsFollowPlan(t *testing.T) {
	cfgPath := writeConfig(t, "0")
	metricsFile := filepath.Join(t.TempDir(), "e2e.prom")

	code, _, _ := runCLI(t, "-config", cfgPath, "--skip-preflight", "-metrics-file", metricsFile, "console")
	require.Equal(t, exitcodes.Success, code)

	families, err := metrics.ReadTextfile(metricsFile)
	require.NoError(t, err)
	require.Contains(t, families, "e2e_harness_service_state")

	var services []string
	for _, m := range families["e2e_harness_service_state"].GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "service" {
				services = append(services, l.GetValue())
			}
		}
	}
	assert.Equal(t, []string{"Client Server"}, services)
}

func TestRun_SpawnErrorIsRuntimeError(t *testing.T) {
	cfgPath := writeConfig(t, "0")
	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	data = bytes.Replace(data,
		[]byte(`"sh -c 'echo listening; exec sleep 30'"`),
		[]byte(`"/nonexistent/e2e-harness-service"`), 1)
	require.NoError(t, os.WriteFile(cfgPath, data, 0o644))

	code, _, errOut := runCLI(t, "-config", cfgPath, "--skip-preflight")
	assert.Equal(t, exitcodes.RuntimeErr, code)
	assert.Contains(t, errOut, "Run aborted")
}
