package main

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

const passwordEnv = "SEALBACKUP_PASSWORD"

// readPassword returns the password from the flag, the environment, or an
// interactive prompt, in that order
func (a *app) readPassword(prompt string) ([]byte, error) {
	if a.password != "" {
		return []byte(a.password), nil
	}
	if v := os.Getenv(passwordEnv); v != "" {
		return []byte(v), nil
	}
	return promptPassword(prompt)
}

func promptPassword(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("no password given: use --password, %s, or run in a terminal", passwordEnv)
	}

	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}

// readNewPassword prompts twice when interactive
func (a *app) readNewPassword(prompt string, flagValue string) ([]byte, error) {
	if flagValue != "" {
		return []byte(flagValue), nil
	}
	first, err := promptPassword(prompt)
	if err != nil {
		return nil, err
	}
	second, err := promptPassword("Confirm: ")
	if err != nil {
		return nil, err
	}
	if string(first) != string(second) {
		return nil, fmt.Errorf("passwords do not match")
	}
	return first, nil
}
