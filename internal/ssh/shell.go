package ssh

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"github.com/yoanbernabeu/sshrun/internal/constants"
)

// Shell opens an interactive shell wired to the given streams. When in is a
// terminal it is switched to raw mode for the duration of the shell.
func (c *Client) Shell(in *os.File, out, errOut io.Writer) error {
	session, err := c.NewSession()
	if err != nil {
		return errors.Wrap(err, "failed to create session")
	}
	defer session.Close()

	width, height := constants.DefaultTermWidth, constants.DefaultTermHeight
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		if w, h, err := term.GetSize(fd); err == nil {
			width, height = w, h
		}
		state, err := term.MakeRaw(fd)
		if err != nil {
			return errors.Wrap(err, "failed to set terminal raw mode")
		}
		defer term.Restore(fd, state)
	}

	// Set up terminal modes
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}

	// Request pseudo terminal
	if err := session.RequestPty(terminalName(), height, width, modes); err != nil {
		return errors.Wrap(err, "failed to request pty")
	}

	session.Stdin = in
	session.Stdout = out
	session.Stderr = errOut

	c.log.Info("Starting interactive shell")
	if err := session.Shell(); err != nil {
		return errors.Wrap(err, "failed to start shell")
	}

	return session.Wait()
}

func terminalName() string {
	if t := os.Getenv("TERM"); t != "" {
		return t
	}
	return constants.DefaultTerminal
}
