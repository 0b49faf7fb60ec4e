package config

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Prompter asks the user for a secret.
type Prompter interface {
	IsInteractive() bool
	ReadPassword(prompt string) (string, error)
}

// TerminalPrompter reads passwords from the controlling terminal without echo.
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer
}

// NewTerminalPrompter creates a prompter on stdin that writes prompts to stderr.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

// IsInteractive reports whether stdin is a terminal.
func (p *TerminalPrompter) IsInteractive() bool {
	return term.IsTerminal(int(p.In.Fd())) //nolint:gosec // fd fits in int
}

// ReadPassword prints prompt and reads a line without echoing it.
func (p *TerminalPrompter) ReadPassword(prompt string) (string, error) {
	_, _ = fmt.Fprint(p.Out, prompt)
	secret, err := term.ReadPassword(int(p.In.Fd())) //nolint:gosec // fd fits in int
	_, _ = fmt.Fprintln(p.Out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(secret), nil
}

// NonInteractive never prompts. Used by validate and in tests.
type NonInteractive struct{}

// IsInteractive always returns false.
func (NonInteractive) IsInteractive() bool { return false }

// ReadPassword is never called for a non-interactive prompter.
func (NonInteractive) ReadPassword(string) (string, error) {
	return "", fmt.Errorf("no terminal available")
}
