package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks the operator for a secret value
type Prompter interface {
	Secret(prompt string) (string, error)
}

// TerminalPrompter reads secrets from stdin without echo
type TerminalPrompter struct {
	Out io.Writer
}

// Interactive reports whether stdin is a terminal
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Secret prompts the user for a value securely (without echo)
func (p TerminalPrompter) Secret(prompt string) (string, error) {
	out := p.Out
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprint(out, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// PromptMissing asks for an empty password or API key. Other fields must be
// present in the credentials source.
func (c *Credentials) PromptMissing(p Prompter, warehouseLogin bool) error {
	if p == nil {
		return nil
	}
	if warehouseLogin && strings.TrimSpace(c.Password) == "" {
		v, err := p.Secret("Snowflake password: ")
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		c.Password = v
	}
	if strings.TrimSpace(c.APIKey) == "" {
		v, err := p.Secret("Masking API key: ")
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		c.APIKey = v
	}
	return nil
}
