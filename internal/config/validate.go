package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/randomizedcoder/go-e2e-harness/internal/process"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or every problem joined with errors.Join.
func Validate(cfg *Config) error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.ReadinessTimeout <= 0 {
		add("readiness_timeout", "must be positive (got %v)", cfg.ReadinessTimeout)
	}
	if cfg.StopTimeout <= 0 {
		add("stop_timeout", "must be positive (got %v)", cfg.StopTimeout)
	}
	if cfg.SuiteWaitDelay < 0 {
		add("suite_wait_delay", "must not be negative (got %v)", cfg.SuiteWaitDelay)
	}

	if _, err := process.ParseCommandLine(cfg.SuiteCommand); err != nil {
		add("suite_command", "%v", err)
	}

	// Services
	if len(cfg.Services) == 0 {
		add("services", "at least one service is required")
	}
	seen := make(map[string]bool)
	for i, svc := range cfg.Services {
		field := fmt.Sprintf("services[%d]", i)
		if strings.TrimSpace(svc.Name) == "" {
			add(field+".name", "must not be empty")
		} else if seen[svc.Name] {
			add(field+".name", "duplicate service %q", svc.Name)
		}
		seen[svc.Name] = true

		if _, err := process.ParseCommandLine(svc.Command); err != nil {
			add(field+".command", "%v", err)
		}
		if svc.Port < 0 || svc.Port > 65535 {
			add(field+".port", "must be between 0 and 65535 (got %d)", svc.Port)
		}
		if svc.Settle < 0 {
			add(field+".settle", "must not be negative (got %v)", svc.Settle)
		}
		for _, kv := range svc.Env {
			if !strings.Contains(kv, "=") {
				add(field+".env", "entry %q must be KEY=VALUE", kv)
			}
		}
	}

	// Suites
	if len(cfg.Suites) == 0 {
		add("suites", "at least one suite is required")
	}
	seen = make(map[string]bool)
	for i, s := range cfg.Suites {
		field := fmt.Sprintf("suites[%d]", i)
		if strings.TrimSpace(s.Name) == "" {
			add(field+".name", "must not be empty")
		} else if seen[s.Name] {
			add(field+".name", "duplicate suite %q", s.Name)
		}
		seen[s.Name] = true

		if s.Spec == "" && s.Command == "" {
			add(field+".spec", "must not be empty")
		}
		if s.Command != "" {
			if _, err := process.ParseCommandLine(s.Command); err != nil {
				add(field+".command", "%v", err)
			}
		}
	}

	// Quick mode references
	if len(cfg.Quick.Suites) == 0 {
		add("quick.suites", "at least one suite is required")
	}
	for _, name := range cfg.Quick.Services {
		if _, ok := cfg.service(name); !ok {
			add("quick.services", "unknown service %q", name)
		}
	}
	for _, name := range cfg.Quick.Suites {
		if _, ok := cfg.suite(name); !ok {
			add("quick.suites", "unknown suite %q", name)
		}
	}
	if cfg.Quick.Settle < 0 {
		add("quick.settle", "must not be negative (got %v)", cfg.Quick.Settle)
	}

	// Log format must be valid
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		add("log_format", `must be "json" or "text" (got %q)`, cfg.LogFormat)
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
