// Package shell runs the external dump and restore tools.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Command describes one tool invocation.
type Command struct {
	Name string
	Args []string
	Env  []string // added to the parent environment, for this process only

	// StdinPath, if set, is streamed to the process's standard input.
	StdinPath string
	// StdoutPath, if set, receives the process's standard output.
	// Otherwise standard output is returned by Run.
	StdoutPath string
}

// Executor allows mocking exec.Command in tests.
type Executor interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// Error is returned when a command cannot be started or exits non-zero.
type Error struct {
	Name   string
	Stderr string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed: %v: %s", e.Name, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s failed: %v", e.Name, e.Err)
}

// Unwrap returns the underlying exec error.
func (e *Error) Unwrap() error {
	return e.Err
}

// StderrOf returns the captured stderr of a failed command, if any.
func StderrOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stderr
	}
	return ""
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Run executes the command, redirecting stdin and stdout as requested and
// capturing stderr into the returned error.
func (e *DefaultExecutor) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...) //nolint:gosec // tool names are fixed by the adapters
	cmd.Env = append(os.Environ(), c.Env...)

	if c.StdinPath != "" {
		in, err := os.Open(c.StdinPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open input file: %w", err)
		}
		defer func() { _ = in.Close() }()
		cmd.Stdin = in
	}

	var stdout bytes.Buffer
	if c.StdoutPath != "" {
		out, err := os.OpenFile(c.StdoutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = out.Close() }()
		cmd.Stdout = out
	} else {
		cmd.Stdout = &stdout
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &Error{
			Name:   c.Name,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}

	return stdout.Bytes(), nil
}
