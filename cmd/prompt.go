package cmd

import (
	"bufio"
	"fmt"
	"os"

	"golang.org/x/term"
)

// promptPassphrase reads a passphrase from the controlling terminal
// without echoing it, falling back to a plain line read when stdin
// isn't a terminal (e.g. piped input in tests or scripts).
func promptPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		data, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(data), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return trimNewline(line), nil
}

// promptNewPassphrase prompts twice and requires the two entries to
// match, guarding against a silent typo locking the caller out of a
// database they just created.
func promptNewPassphrase() (string, error) {
	first, err := promptPassphrase("Passphrase: ")
	if err != nil {
		return "", err
	}
	second, err := promptPassphrase("Confirm passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("passphrases do not match")
	}
	return first, nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
