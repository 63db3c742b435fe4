package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/saylorsolutions/drivelock/pkg/passlock"
	"golang.org/x/term"
)

const passwordEnv = "DRIVELOCK_PASSWORD"

var errNoPassword = errors.New("no password available, use --password-file or " + passwordEnv)

// readPassword gets the password from passwordFile, the environment, or a terminal prompt in that order.
// A new password is confirmed when prompted.
func readPassword(passwordFile string, confirm bool) (passlock.Passphrase, error) {
	if len(passwordFile) > 0 {
		return readPasswordFile(passwordFile)
	}
	if pass, ok := os.LookupEnv(passwordEnv); ok && len(pass) > 0 {
		return passlock.Passphrase(pass), nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errNoPassword
	}
	pass, err := prompt(fd, "Password: ")
	if err != nil {
		return nil, err
	}
	if !confirm {
		return pass, nil
	}
	again, err := prompt(fd, "Confirm new password: ")
	defer passlock.Wipe(again)
	if err != nil {
		passlock.Wipe(pass)
		return nil, err
	}
	if !bytes.Equal(pass, again) {
		passlock.Wipe(pass)
		return nil, errors.New("passwords do not match")
	}
	return pass, nil
}

func prompt(fd int, msg string) (passlock.Passphrase, error) {
	_, _ = fmt.Fprint(os.Stderr, msg)
	pass, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	if len(pass) == 0 {
		return nil, passlock.ErrEmptyPassPhrase
	}
	return pass, nil
}

// readPasswordFile strips trailing line breaks, since files often end with one.
func readPasswordFile(path string) (passlock.Passphrase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read password file: %w", err)
	}
	trimmed := bytes.TrimRight(data, "\r\n")
	if len(trimmed) == 0 {
		passlock.Wipe(data)
		return nil, fmt.Errorf("password file '%s' is empty", path)
	}
	return trimmed, nil
}
