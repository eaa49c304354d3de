package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/term"
)

// promptValue is the PASSWORD argument that asks for the password instead.
const promptValue = "-"

// IsInteractive returns true if stdin is a terminal
func IsInteractive() bool {
	return isTerminal(rootCmd.InOrStdin())
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// PromptPassword asks for a secret. On a terminal the input is not echoed;
// otherwise a single line is read from stdin.
func PromptPassword(message string) (string, error) {
	in := rootCmd.InOrStdin()

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(stderr(), message)
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(stderr())
		if err != nil {
			return "", errors.Wrap(err, "failed to read password")
		}
		return string(secret), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", errors.Wrap(err, "failed to read password from stdin")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// resolvePassword returns password, prompting when it is "-".
func resolvePassword(password, user, host string) (string, error) {
	if password != promptValue {
		return password, nil
	}
	return PromptPassword(fmt.Sprintf("%s@%s's password: ", user, host))
}
