// Package config provides configuration management for go-e2e-harness.
package config

import (
	"strings"
	"time"
)

// Mode selects which services and suites a run uses.
type Mode string

const (
	// ModeFull launches every declared service and runs every suite.
	ModeFull Mode = "full"

	// ModeConsole is the quick console-error check.
	ModeConsole Mode = "console"

	// ModeQuick is an alias for ModeConsole.
	ModeQuick Mode = "quick"
)

// ParseMode maps a command-line token to a Mode. Unrecognized or empty
// tokens select ModeFull.
func ParseMode(token string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(token))) {
	case ModeConsole:
		return ModeConsole
	case ModeQuick:
		return ModeQuick
	default:
		return ModeFull
	}
}

// IsQuick reports whether the mode is the reduced console check.
func (m Mode) IsQuick() bool {
	return m == ModeConsole || m == ModeQuick
}

// ServiceConfig declares one background service.
type ServiceConfig struct {
	Name    string        `yaml:"name"`
	Command string        `yaml:"command"`
	Port    int           `yaml:"port"`   // informational
	Settle  time.Duration `yaml:"settle"` // delay after readiness before the next step
	Dir     string        `yaml:"dir"`    // overrides Config.Dir
	Env     []string      `yaml:"env"`    // KEY=VALUE
}

// SuiteConfig declares one verification suite.
type SuiteConfig struct {
	Name    string `yaml:"name"`
	Spec    string `yaml:"spec"`
	Command string `yaml:"command"` // overrides Config.SuiteCommand
}

// QuickConfig selects the subset used by the console check.
type QuickConfig struct {
	Services []string      `yaml:"services"`
	Suites   []string      `yaml:"suites"`
	Settle   time.Duration `yaml:"settle"`
}

// Config holds all configuration options for the harness.
type Config struct {
	// Run
	Dir               string          `yaml:"dir"`
	ReadinessTimeout  time.Duration   `yaml:"readiness_timeout"`
	ReadinessPatterns []string        `yaml:"readiness_patterns"`
	StrictReadiness   bool            `yaml:"strict_readiness"`
	StopTimeout       time.Duration   `yaml:"stop_timeout"`
	SuiteCommand      string          `yaml:"suite_command"`
	SuiteWaitDelay    time.Duration   `yaml:"suite_wait_delay"`
	Services          []ServiceConfig `yaml:"services"`
	Suites            []SuiteConfig   `yaml:"suites"`
	Quick             QuickConfig     `yaml:"quick"`
	FailExit          bool            `yaml:"fail_exit"`

	// Observability
	MetricsAddr string `yaml:"metrics_addr"`
	MetricsFile string `yaml:"metrics_file"`
	Verbose     bool   `yaml:"verbose"`
	LogFormat   string `yaml:"log_format"` // json, text
	TUIEnabled  bool   `yaml:"tui"`
	Details     bool   `yaml:"details"`

	// Diagnostic modes
	SkipPreflight bool `yaml:"skip_preflight"`
	PrintPlan     bool `yaml:"-"`
	ShowVersion   bool `yaml:"-"`

	// Resolved from the command line
	Mode       Mode   `yaml:"-"`
	ConfigFile string `yaml:"-"`
}

// DefaultConfig returns a Config with the stock services and suites.
func DefaultConfig() *Config {
	return &Config{
		// Run
		Dir:               ".",
		ReadinessTimeout:  10 * time.Second,
		ReadinessPatterns: []string{"listening", "started"},
		StopTimeout:       5 * time.Second,
		SuiteCommand:      "npx playwright test {spec} --reporter=line",
		SuiteWaitDelay:    5 * time.Second,
		Services: []ServiceConfig{
			{Name: "Game Server", Command: "node server/js/main.js", Port: 8000, Settle: 2 * time.Second},
			{Name: "Client Server", Command: "node client-server.js", Port: 3000, Settle: 3 * time.Second},
		},
		Suites: []SuiteConfig{
			{Name: "Console Errors", Spec: "tests/console-errors.spec.js"},
			{Name: "Game Functionality", Spec: "tests/game-functionality.spec.js"},
			{Name: "Server Integration", Spec: "tests/server-integration.spec.js"},
		},
		Quick: QuickConfig{
			Services: []string{"Client Server"},
			Suites:   []string{"Console Errors"},
			Settle:   2 * time.Second,
		},

		// Observability
		LogFormat: "json",

		Mode: ModeFull,
	}
}

// Plan is the resolved set of services and suites for one mode.
type Plan struct {
	Mode     Mode
	Services []ServiceConfig
	Suites   []SuiteConfig
}

// Plan resolves the services and suites used by the given mode. Quick mode
// uses the named subsets with the quick settle delay. Unknown names are
// skipped here; Validate reports them.
func (c *Config) Plan(mode Mode) Plan {
	p := Plan{Mode: mode}
	if !mode.IsQuick() {
		p.Services = append(p.Services, c.Services...)
		p.Suites = append(p.Suites, c.Suites...)
		return p
	}

	for _, name := range c.Quick.Services {
		if svc, ok := c.service(name); ok {
			svc.Settle = c.Quick.Settle
			p.Services = append(p.Services, svc)
		}
	}
	for _, name := range c.Quick.Suites {
		if s, ok := c.suite(name); ok {
			p.Suites = append(p.Suites, s)
		}
	}
	return p
}

// ServiceDir returns the working directory for a service.
func (c *Config) ServiceDir(svc ServiceConfig) string {
	if svc.Dir != "" {
		return svc.Dir
	}
	return c.Dir
}

func (c *Config) service(name string) (ServiceConfig, bool) {
	for _, s := range c.Services {
		if s.Name == name {
			return s, true
		}
	}
	return ServiceConfig{}, false
}

func (c *Config) suite(name string) (SuiteConfig, bool) {
	for _, s := range c.Suites {
		if s.Name == name {
			return s, true
		}
	}
	return SuiteConfig{}, false
}
