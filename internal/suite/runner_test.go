package suite

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/randomizedcoder/go-e2e-harness/internal/parser"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func newTestRunner(cfg Config) *Runner {
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRunner(cfg)
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunner_CommandSpec(t *testing.T) {
	tests := []struct {
		name     string
		template string
		suite    Suite
		wantProg string
		wantArgs []string
	}{
		{
			name:     "default template",
			suite:    Suite{Name: "Console Errors", Spec: "tests/console-errors.spec.js"},
			wantProg: "npx",
			wantArgs: []string{"playwright", "test", "tests/console-errors.spec.js", "--reporter=line"},
		},
		{
			name:     "custom template",
			template: "node runner.js --file={spec}",
			suite:    Suite{Name: "Game Functionality", Spec: "tests/game.spec.js"},
			wantProg: "node",
			wantArgs: []string{"runner.js", "--file=tests/game.spec.js"},
		},
		{
			name:     "spec with spaces stays one argument",
			suite:    Suite{Name: "Odd", Spec: "tests/my suite.spec.js"},
			wantProg: "npx",
			wantArgs: []string{"playwright", "test", "tests/my suite.spec.js", "--reporter=line"},
		},
		{
			name:     "per-suite override",
			template: "ignored {spec}",
			suite:    Suite{Name: "Server Integration", Spec: "x", Command: "sh -c 'exit 0'"},
			wantProg: "sh",
			wantArgs: []string{"-c", "exit 0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRunner(Config{Command: tt.template, Dir: "/srv/app"})
			spec, err := r.CommandSpec(tt.suite)
			require.NoError(t, err)
			assert.Equal(t, tt.wantProg, spec.Program)
			assert.Equal(t, tt.wantArgs, spec.Args)
			assert.Equal(t, "/srv/app", spec.Dir)
			assert.Equal(t, tt.suite.Name, spec.Name())
		})
	}
}

func TestRunner_ExitCodes(t *testing.T) {
	requireShell(t)

	tests := []struct {
		name        string
		script      string
		wantCode    int
		wantSuccess bool
	}{
		{"pass", "exit 0", 0, true},
		{"fail", "exit 1", 1, false},
		{"other code", "exit 7", 7, false},
		{"signal death", "kill -TERM $$", 143, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRunner(Config{})
			res, err := r.Run(context.Background(), Suite{Name: tt.name, Spec: "x", Command: "sh -c '" + tt.script + "'"})
			require.NoError(t, err, "suite failure must not be an error")
			assert.Equal(t, tt.wantCode, res.ExitCode)
			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, res.ExitCode == 0, res.Success)
		})
	}
}

func TestRunner_CapturesAndForwardsOutput(t *testing.T) {
	requireShell(t)
	var liveOut, liveErr syncBuffer
	r := newTestRunner(Config{
		Command: `sh -c "printf '\033[32mok\033[0m {spec}\n'; echo oops >&2"`,
		Stdout:  &liveOut,
		Stderr:  &liveErr,
	})

	res, err := r.Run(context.Background(), Suite{Name: "Console Errors", Spec: "tests/console-errors.spec.js"})
	require.NoError(t, err)

	assert.Equal(t, "ok tests/console-errors.spec.js\n", res.Output, "captured output is ANSI-stripped")
	assert.Equal(t, "oops\n", res.Errors)
	assert.Contains(t, liveOut.String(), "\033[32m", "forwarded output is untouched")
	assert.Equal(t, "oops\n", liveErr.String())
	assert.Equal(t, "Console Errors", res.Name)
	assert.Equal(t, "tests/console-errors.spec.js", res.Spec)
	assert.Greater(t, res.Duration, time.Duration(0))
}

func TestRunner_ParsesPlaywrightCounts(t *testing.T) {
	requireShell(t)
	r := newTestRunner(Config{
		Command: `sh -c "echo 'Running 5 tests using 1 worker'; echo '  1 failed'; echo '  4 passed (3.2s)'; exit 1"`,
	})

	res, err := r.Run(context.Background(), Suite{Name: "Game Functionality", Spec: "tests/game-functionality.spec.js"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, parser.TestCounts{Passed: 4, Failed: 1, Parsed: true}, res.Tests)
}

func TestRunner_StartError(t *testing.T) {
	r := newTestRunner(Config{Command: "/nonexistent/playwright {spec}"})

	res, err := r.Run(context.Background(), Suite{Name: "Server Integration", Spec: "tests/server-integration.spec.js"})
	require.Error(t, err)

	var startErr *StartError
	require.True(t, errors.As(err, &startErr))
	assert.Equal(t, "Server Integration", startErr.Suite)
	assert.Contains(t, err.Error(), "/nonexistent/playwright")

	assert.False(t, res.Success)
	assert.Equal(t, -1, res.ExitCode)
	assert.Equal(t, "Server Integration", res.Name)
	assert.Contains(t, res.Errors, "/nonexistent/playwright")
}

func TestRunner_BadTemplate(t *testing.T) {
	r := newTestRunner(Config{})

	res, err := r.Run(context.Background(), Suite{Name: "Broken", Spec: "x", Command: `sh -c "unterminated`})
	var startErr *StartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, -1, res.ExitCode)
}

func TestRunner_CancelTerminatesSuite(t *testing.T) {
	requireShell(t)
	r := newTestRunner(Config{Command: "sh -c 'sleep 30'", WaitDelay: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res, err := r.Run(ctx, Suite{Name: "Game Functionality", Spec: "x"})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, res.Success)
	assert.Equal(t, 143, res.ExitCode)
}

func TestRunner_CancelEscalatesToKill(t *testing.T) {
	requireShell(t)
	r := newTestRunner(Config{Command: `sh -c 'trap "" TERM; while :; do sleep 0.1; done'`, WaitDelay: 200 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := r.Run(ctx, Suite{Name: "Stubborn", Spec: "x"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, res.Success)
}

func TestRunner_BackgroundChildHoldingOutputDoesNotBlock(t *testing.T) {
	requireShell(t)
	r := newTestRunner(Config{Command: `sh -c 'echo done; sleep 30 & exit 0'`, WaitDelay: 300 * time.Millisecond})

	start := time.Now()
	res, err := r.Run(context.Background(), Suite{Name: "Console Errors", Spec: "x"})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, res.Success)
	assert.Equal(t, "done\n", res.Output)
}

func TestCountTests_LongLine(t *testing.T) {
	output := "Running 3 tests using 1 worker\n" +
		strings.Repeat("x", 2*1024*1024) + "\n" +
		"  3 passed (1.0s)\n"

	assert.Equal(t, parser.TestCounts{Passed: 3, Parsed: true}, countTests(output))
}

func TestRunner_Env(t *testing.T) {
	requireShell(t)
	r := newTestRunner(Config{Command: `sh -c 'echo "base=$BASE_URL"'`, Env: []string{"BASE_URL=http://localhost:3000"}})

	res, err := r.Run(context.Background(), Suite{Name: "Console Errors", Spec: "x"})
	require.NoError(t, err)
	assert.Equal(t, "base=http://localhost:3000\n", res.Output)
}

func TestResult_Status(t *testing.T) {
	pass := NewResult(Suite{Name: "a"}, 0, "", "", 0, parser.TestCounts{})
	fail := NewResult(Suite{Name: "b"}, 2, "", "", 0, parser.TestCounts{})

	assert.Equal(t, "PASS", pass.Status())
	assert.Equal(t, "FAIL", fail.Status())
	assert.True(t, pass.Success)
	assert.False(t, fail.Success)
}
