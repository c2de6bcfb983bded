// Package process describes how to launch the external programs the harness drives.
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrEmptyCommand is returned when a command line has no program.
var ErrEmptyCommand = errors.New("empty command line")

// Spec is a launch specification: program, arguments, working directory and
// extra environment.
type Spec struct {
	Label   string
	Program string
	Args    []string
	Dir     string
	Env     []string // KEY=VALUE entries appended to the parent environment
}

// NewSpec parses a command line such as "node server/js/main.js" into a Spec.
func NewSpec(label, commandLine, dir string, env []string) (Spec, error) {
	fields, err := ParseCommandLine(commandLine)
	if err != nil {
		return Spec{}, fmt.Errorf("%s: %w", label, err)
	}
	return Spec{
		Label:   label,
		Program: fields[0],
		Args:    fields[1:],
		Dir:     dir,
		Env:     env,
	}, nil
}

// Name returns the label, or the program when no label is set.
func (s Spec) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Program
}

// BuildCommand returns an unstarted command. The context is not bound to the process:
// services outlive individual operations and are stopped explicitly.
func (s Spec) BuildCommand(_ context.Context) (*exec.Cmd, error) {
	if s.Program == "" {
		return nil, ErrEmptyCommand
	}
	cmd := exec.Command(s.Program, s.Args...)
	cmd.Dir = s.Dir
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	return cmd, nil
}

// CommandString returns the command line for display.
func (s Spec) CommandString() string {
	parts := make([]string, 0, len(s.Args)+1)
	parts = append(parts, quoteArg(s.Program))
	for _, a := range s.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

// ParseCommandLine splits a command line on whitespace, honouring single and
// double quotes. No other shell syntax is interpreted.
func ParseCommandLine(line string) ([]string, error) {
	var (
		fields  []string
		current strings.Builder
		quote   rune
		inField bool
	)

	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inField = true
		case r == ' ' || r == '\t' || r == '\n':
			if inField {
				fields = append(fields, current.String())
				current.Reset()
				inField = false
			}
		default:
			current.WriteRune(r)
			inField = true
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote in %q", quote, line)
	}
	if inField {
		fields = append(fields, current.String())
	}
	if len(fields) == 0 {
		return nil, ErrEmptyCommand
	}
	return fields, nil
}

func quoteArg(a string) string {
	if a == "" {
		return `""`
	}
	if strings.ContainsAny(a, " \t\"'") {
		return `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
	}
	return a
}
