package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

var errNoAPIKey = errors.New("no API key: set SITESNAP_API_KEY, --api-key, or api_key in the config file")

// promptForAPIKey reads the key from the terminal without echo.
// It fails when stdin is not a terminal.
func promptForAPIKey() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNoAPIKey
	}

	fmt.Fprint(os.Stderr, "API key: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read API key: %w", err)
	}

	key := strings.TrimSpace(string(b))
	if key == "" {
		return "", errNoAPIKey
	}
	return key, nil
}

// isTerminal reports whether stdout is attached to a terminal.
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
