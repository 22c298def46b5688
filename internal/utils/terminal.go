package utils

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// ReadToken prompts the user for a token or shared secret without echoing
// input. Returns an error if stdin is not a terminal.
func ReadToken(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())

	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("cannot read token: stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, prompt)
	token, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr) // Add newline after hidden input

	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}

	return string(token), nil
}

// IsInteractive reports whether stdin is attached to a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
