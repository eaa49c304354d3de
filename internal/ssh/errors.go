package ssh

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotConnected is returned when an operation needs a live connection.
	ErrNotConnected = errors.New("ssh connection is needed before running commands")
	// ErrRemoteStderr marks a command that wrote to stderr.
	ErrRemoteStderr = errors.New("remote command wrote to stderr")
	// ErrCommandTimeout marks a command that did not finish in time.
	ErrCommandTimeout = errors.New("command timed out")
	// ErrChannelClosed marks a channel that closed before the command produced anything.
	ErrChannelClosed = errors.New("ssh channel was closed abruptly after sending command")
	// ErrExpectTimeout is returned when a pattern did not show up in time.
	ErrExpectTimeout = errors.New("timed out waiting for pattern")
	// ErrSessionClosed is returned by interactive operations on a finished session.
	ErrSessionClosed = errors.New("interactive session closed")
)

// ConnectionError reports a failure to establish the transport.
type ConnectionError struct {
	Address string
	User    string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s@%s: %v", e.User, e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// CommandExecutionError reports a command that could not be issued at all.
type CommandExecutionError struct {
	Command string
	Address string
	Err     error
}

func (e *CommandExecutionError) Error() string {
	return fmt.Sprintf("failed while running command %q at %s: %v", e.Command, e.Address, e.Err)
}

func (e *CommandExecutionError) Unwrap() error {
	return e.Err
}
