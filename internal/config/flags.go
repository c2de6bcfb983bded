package config

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// Name is the program name used in usage text.
const Name = "go-e2e-harness"

// stringList is a comma-separated flag value. Setting it replaces the list.
type stringList []string

func (l *stringList) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, ",")
}

func (l *stringList) Set(value string) error {
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	*l = out
	return nil
}

// ParseFlags parses command-line arguments (without the program name) and
// returns a Config. A -config file is applied first; flags override it.
// flag.ErrHelp is returned when -h is given.
func ParseFlags(args []string, output io.Writer) (*Config, error) {
	// First pass only discovers -config.
	preview := DefaultConfig()
	fs := newFlagSet(preview, io.Discard)
	if err := fs.Parse(args); err != nil {
		// Report the error with usage through the real flag set below.
		fs = newFlagSet(DefaultConfig(), output)
		return nil, fs.Parse(args)
	}

	cfg := DefaultConfig()
	if preview.ConfigFile != "" {
		if err := LoadFile(preview.ConfigFile, cfg); err != nil {
			return nil, err
		}
	}

	fs = newFlagSet(cfg, output)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Positional argument: mode token
	cfg.Mode = ModeFull
	if rest := fs.Args(); len(rest) >= 1 {
		if rest[0] == "version" {
			cfg.ShowVersion = true
		}
		cfg.Mode = ParseMode(rest[0])
	}

	return cfg, nil
}

func newFlagSet(cfg *Config, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(Name, flag.ContinueOnError)
	fs.SetOutput(output)

	// Custom usage message
	fs.Usage = func() {
		w := fs.Output()
		fmt.Fprintf(w, `%s - start services, run end-to-end suites, always clean up

Usage:
  %s [flags] [full|console|quick]

Run Flags:
`, Name, Name)
		printFlagCategory(fs, []string{"config", "dir", "readiness-timeout", "readiness-patterns", "strict-readiness", "stop-timeout", "suite-command", "suite-wait-delay", "fail-exit"})

		fmt.Fprintf(w, "\nSafety & Diagnostics:\n")
		printFlagCategory(fs, []string{"skip-preflight", "print-plan", "version"})

		fmt.Fprintf(w, "\nObservability:\n")
		printFlagCategory(fs, []string{"v", "log-format", "metrics", "metrics-file", "tui", "details"})

		fmt.Fprintf(w, `
Flag Convention:
  Single-dash flags (-dir, -metrics) are normal options.
  Double-dash flags (--print-plan, --skip-preflight) are safety gates or diagnostic modes.

Examples:
  # Full run: both servers, all three suites
  %s

  # Quick console-error check against the client server only
  %s console

  # Custom config, fail the process when any suite fails
  %s -config e2e.yaml -fail-exit
`, Name, Name, Name)
	}

	// Run
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML config file (flags override it)")
	fs.StringVar(&cfg.Dir, "dir", cfg.Dir, "Working directory for services and suites")
	fs.DurationVar(&cfg.ReadinessTimeout, "readiness-timeout", cfg.ReadinessTimeout, "Treat a service as ready after this long without a readiness line")
	fs.Var((*stringList)(&cfg.ReadinessPatterns), "readiness-patterns", "Comma-separated phrases that mark a service ready (case-insensitive)")
	fs.BoolVar(&cfg.StrictReadiness, "strict-readiness", cfg.StrictReadiness, "Abort the run if a service exits before becoming ready")
	fs.DurationVar(&cfg.StopTimeout, "stop-timeout", cfg.StopTimeout, "Grace period between SIGTERM and SIGKILL at teardown")
	fs.StringVar(&cfg.SuiteCommand, "suite-command", cfg.SuiteCommand, "Suite command template; {spec} is replaced by the suite spec")
	fs.DurationVar(&cfg.SuiteWaitDelay, "suite-wait-delay", cfg.SuiteWaitDelay, "Grace period for an interrupted suite before SIGKILL")
	fs.BoolVar(&cfg.FailExit, "fail-exit", cfg.FailExit, "Exit 1 when any suite fails, 2 on runtime errors")

	// Safety & Diagnostics (double-dash convention)
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.BoolVar(&cfg.PrintPlan, "print-plan", cfg.PrintPlan, "Print the resolved services and suites and exit")
	fs.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Print version and exit")

	// Observability
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging (includes all service output)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty = disabled)")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Write run metrics in Prometheus text format to this file")
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")
	fs.BoolVar(&cfg.Details, "details", cfg.Details, "Print a per-suite table after the summary")

	return fs
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, names []string) {
	w := fs.Output()
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
		return ""
	}
	if _, ok := f.Value.(*stringList); ok {
		return "list"
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
			return "duration"
		}
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
