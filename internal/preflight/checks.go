// Package preflight provides startup validation checks run before any
// service is launched.
package preflight

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/randomizedcoder/go-e2e-harness/internal/config"
	"github.com/randomizedcoder/go-e2e-harness/internal/process"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// RunAll executes all preflight checks for the services and suites in plan.
// Port checks only ever warn.
func RunAll(cfg *config.Config, plan config.Plan) *Result {
	result := &Result{
		Checks: make([]Check, 0, 3+2*len(plan.Services)+len(plan.Suites)),
		Passed: true,
	}

	result.add(checkWorkingDir("working_dir", cfg.Dir))
	for _, svc := range plan.Services {
		if svc.Dir != "" {
			result.add(checkWorkingDir("working_dir:"+svc.Name, svc.Dir))
		}
	}

	seen := make(map[string]bool)
	for _, svc := range plan.Services {
		result.add(checkProgram("program:"+svc.Name, svc.Command, cfg.ServiceDir(svc)))
	}
	for _, s := range plan.Suites {
		line := s.Command
		if line == "" {
			line = cfg.SuiteCommand
		}
		// Suites usually share one template; check its program once.
		if seen[line] {
			continue
		}
		seen[line] = true
		result.add(checkProgram("program:"+s.Name, line, cfg.Dir))
	}

	processes := len(plan.Services) + 1
	result.add(checkFileDescriptors(processes))
	result.add(checkProcessLimit(processes))

	for _, svc := range plan.Services {
		if svc.Port > 0 {
			result.add(checkPortFree(svc.Name, svc.Port))
		}
	}

	return result
}

// checkWorkingDir verifies a working directory exists.
func checkWorkingDir(name, dir string) Check {
	info, err := os.Stat(dir)
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("%s: %v", dir, err),
		}
	}
	if !info.IsDir() {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("%s is not a directory", dir),
		}
	}
	return Check{
		Name:    name,
		Passed:  true,
		Message: dir,
	}
}

// checkProgram verifies the program of a command line can be executed.
// Programs given as a relative path resolve against dir, as the child will.
func checkProgram(name, commandLine, dir string) Check {
	fields, err := process.ParseCommandLine(commandLine)
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("bad command %q: %v", commandLine, err),
		}
	}

	program := fields[0]
	if strings.Contains(program, "/") && !filepath.IsAbs(program) {
		program = filepath.Join(dir, program)
		if !strings.Contains(program, "/") {
			program = "./" + program
		}
	}

	path, err := exec.LookPath(program)
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("%s not found: %v", fields[0], err),
		}
	}

	return Check{
		Name:    name,
		Passed:  true,
		Message: fmt.Sprintf("found at %s", path),
	}
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(processes int) Check {
	var limit syscall.Rlimit
	syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit)

	// Each child holds two pipes plus whatever the service itself opens.
	required := processes*16 + 64
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d processes)", actual, required, processes),
	}
}

// checkProcessLimit verifies sufficient process slots are available.
func checkProcessLimit(processes int) Check {
	// syscall does not export RLIMIT_NPROC; read /proc instead.
	required := processes + 50

	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	actual := parseMaxProcesses(string(data))
	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// parseMaxProcesses extracts the soft "Max processes" limit from
// /proc/self/limits content. Returns 0 when absent.
func parseMaxProcesses(limits string) int {
	for _, line := range strings.Split(limits, "\n") {
		if !strings.HasPrefix(line, "Max processes") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return 0
		}
		if fields[2] == "unlimited" {
			return 1000000
		}
		n, err := strconv.Atoi(fields[2])
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// checkPortFree warns when a service's declared port is already bound.
func checkPortFree(service string, port int) Check {
	name := "port:" + service
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return Check{
			Name:    name,
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%d already in use (%v)", port, err),
		}
	}
	ln.Close()
	return Check{
		Name:    name,
		Passed:  true,
		Message: fmt.Sprintf("%d free", port),
	}
}

// PrintResults prints the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch {
	case name == "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case name == "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	case strings.HasPrefix(name, "program:"):
		return "install the program or fix the command in the config file (node/npx on PATH?)"
	case strings.HasPrefix(name, "working_dir"):
		return "pass -dir pointing at the project root"
	default:
		return "see go-e2e-harness -h"
	}
}
