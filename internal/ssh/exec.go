package ssh

import (
	"bytes"
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yoanbernabeu/sshrun/internal/security"
)

// Outcome is the coarse result of a command.
type Outcome string

const (
	Success Outcome = "success"
	Fail    Outcome = "fail"
)

// CommandResult holds the result of a command execution.
//
// ExitCode is nil when the command never reported one. It is only
// trustworthy when Outcome is Success.
type CommandResult struct {
	Command  string
	Outcome  Outcome
	Output   string
	Error    string
	ExitCode *int
	// Reason explains a Fail outcome.
	Reason   error
	Duration time.Duration
}

// Succeeded reports whether the outcome is Success.
func (r *CommandResult) Succeeded() bool {
	return r != nil && r.Outcome == Success
}

// ExitStatus returns the exit code if one was reported.
func (r *CommandResult) ExitStatus() (int, bool) {
	if r == nil || r.ExitCode == nil {
		return 0, false
	}
	return *r.ExitCode, true
}

// Execute runs command and drains its channel until the command finishes,
// writes to stderr, or the command timeout expires.
//
// Only a missing connection (ErrNotConnected) and a command that could not be
// issued (*CommandExecutionError) are returned as errors. Every other failure
// is reported through a Fail result.
func (c *Client) Execute(ctx context.Context, command string) (*CommandResult, error) {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	c.last = nil
	log := c.log.WithField("command", security.SanitizeCommandForLog(command))
	log.Info("Running command")

	if !c.IsConnected() {
		log.Error("SSH connection is needed before running commands at server")
		return nil, errors.Wrapf(ErrNotConnected, "run %q on %s", security.SanitizeCommandForLog(command), c.Address)
	}

	start := time.Now()
	ch, err := c.opener(command)
	if err != nil {
		log.WithError(err).Error("Failed while running command")
		c.last = &CommandResult{Command: command, Outcome: Fail, Reason: err, Duration: time.Since(start)}
		return c.last, &CommandExecutionError{Command: command, Address: c.Address, Err: err}
	}

	result := drain(ctx, ch, c.opts.commandTimeout, log)
	result.Command = command
	result.Duration = time.Since(start)
	c.last = result
	return result, nil
}

// openSessionChannel issues command on a fresh session.
func (c *Client) openSessionChannel(command string) (Channel, error) {
	session, err := c.NewSession()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}
	ch, err := startSessionChannel(session, command, c.opts.chunkSize)
	if err != nil {
		session.Close()
		return nil, err
	}
	return ch, nil
}

// drain reads ch until it is closed and both streams are exhausted.
//
// Each iteration prefers, in order: pending output, pending error output
// (fatal), exit status readiness (done). When none of them is ready it blocks
// on all of them together with the remaining timeout.
func drain(ctx context.Context, ch Channel, timeout time.Duration, log *logrus.Entry) *CommandResult {
	defer ch.Close()

	result := &CommandResult{Outcome: Fail}
	var out bytes.Buffer

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	// Aborted before producing anything.
	select {
	case <-ch.Closed():
		select {
		case <-ch.ExitStatusReady():
		default:
			log.Error("SSH channel was closed abruptly after sending command")
			result.Reason = ErrChannelClosed
			return result
		}
	default:
	}

	stdout, stderr := ch.Stdout(), ch.Stderr()
	closedCh, exitReady := ch.Closed(), ch.ExitStatusReady()
	closed := false

	fail := func(reason error) *CommandResult {
		result.Output = out.String()
		result.Reason = reason
		if code, ok := ch.ExitStatus(); ok {
			result.ExitCode = &code
		}
		return result
	}

drainLoop:
	for !closed || stdout != nil || stderr != nil {
		select {
		case <-deadline.C:
			log.WithField("timeout", timeout).Error("Command timed out")
			return fail(ErrCommandTimeout)
		case <-ctx.Done():
			log.WithError(ctx.Err()).Error("Command interrupted")
			return fail(ctx.Err())
		default:
		}

		select {
		case chunk, ok := <-stdout:
			if !ok {
				stdout = nil
			} else {
				out.Write(chunk)
			}
			continue
		default:
		}

		select {
		case chunk, ok := <-stderr:
			if !ok {
				stderr = nil
				continue
			}
			result.Error = string(chunk)
			log.WithField("stderr", result.Error).Error("Received error while running command")
			return fail(ErrRemoteStderr)
		default:
		}

		select {
		case <-exitReady:
			log.Debug("Command execution completed")
			break drainLoop
		default:
		}

		select {
		case <-closedCh:
			closed = true
			closedCh = nil
			continue
		default:
		}

		// Nothing ready: wait for the next event.
		select {
		case chunk, ok := <-stdout:
			if !ok {
				stdout = nil
			} else {
				out.Write(chunk)
			}
		case chunk, ok := <-stderr:
			if !ok {
				stderr = nil
				continue
			}
			result.Error = string(chunk)
			log.WithField("stderr", result.Error).Error("Received error while running command")
			return fail(ErrRemoteStderr)
		case <-exitReady:
		case <-closedCh:
			closed = true
			closedCh = nil
		case <-deadline.C:
			log.WithField("timeout", timeout).Error("Command timed out")
			return fail(ErrCommandTimeout)
		case <-ctx.Done():
			log.WithError(ctx.Err()).Error("Command interrupted")
			return fail(ctx.Err())
		}
	}

	result.Outcome = Success
	result.Output = out.String()
	if code, ok := ch.ExitStatus(); ok {
		result.ExitCode = &code
		log.WithField("exit_status", code).Info("Command exit status")
	} else {
		log.Warn("Channel closed without reporting an exit status")
	}
	log.WithField("output", result.Output).Debug("Command output")
	return result
}
