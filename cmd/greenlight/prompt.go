// ABOUTME: Operator password entry for setup and rotation
// ABOUTME: Reads without echo on a TTY, or trimmed from stdin when piped

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/2389/greenlight/internal/credentials"
)

// promptNewPassword asks for a password twice without echoing, re-asking
// until the entries match and satisfy the length policy.
func promptNewPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("interactive password prompt requires a TTY (use --password-stdin)")
	}

	for {
		fmt.Fprint(os.Stderr, "Set console password: ")
		password, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}

		fmt.Fprint(os.Stderr, "Confirm password: ")
		confirm, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}

		if string(password) != string(confirm) {
			fmt.Fprintln(os.Stderr, "Passwords do not match. Try again.")
			continue
		}
		if len(password) < credentials.MinPasswordLength {
			fmt.Fprintf(os.Stderr, "Password must be at least %d characters.\n", credentials.MinPasswordLength)
			continue
		}
		return string(password), nil
	}
}

// readPasswordStdin reads a password piped on stdin, trimming surrounding
// whitespace. Length policy is enforced by the credential store.
func readPasswordStdin() (string, error) {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	password := strings.TrimSpace(string(raw))
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}
