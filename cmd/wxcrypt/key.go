package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/term"
)

// readKey prompts for the container key without echo. When stdin is piped
// the prompt goes through the controlling terminal instead.
func readKey(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	var (
		key []byte
		err error
	)
	if term.IsTerminal(int(syscall.Stdin)) {
		key, err = term.ReadPassword(int(syscall.Stdin))
	} else {
		tty, ttyErr := os.Open("/dev/tty")
		if ttyErr != nil {
			if runtime.GOOS == "windows" {
				return "", errors.New("stdin is piped, pass the key with --key or WXCRYPT_KEY")
			}
			return "", errors.Wrap(ttyErr, "stdin is piped and /dev/tty is unavailable, pass the key with --key or WXCRYPT_KEY")
		}
		defer tty.Close()
		key, err = term.ReadPassword(int(tty.Fd()))
	}
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errors.Wrap(err, "read key")
	}
	return strings.TrimSpace(string(key)), nil
}

// resolveKey prefers the flag, then the config (which includes WXCRYPT_KEY),
// then the terminal.
func resolveKey(flagValue, configValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if configValue != "" {
		return configValue, nil
	}
	return readKey("container key (64 hex digits): ")
}
