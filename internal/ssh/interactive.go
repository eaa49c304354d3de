package ssh

import (
	"bytes"
	"context"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/yoanbernabeu/sshrun/internal/constants"
	"github.com/yoanbernabeu/sshrun/internal/security"
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)

// InteractiveOptions configures an InteractiveSession.
type InteractiveOptions struct {
	// Timeout is used by Expect calls that pass a zero timeout.
	Timeout time.Duration
	// BufferSize caps the unmatched output kept in memory.
	BufferSize int
	// Display, when set, receives a copy of everything the remote side prints.
	Display io.Writer
	Term    string
	Width   int
	Height  int
}

func (o *InteractiveOptions) withDefaults() InteractiveOptions {
	out := InteractiveOptions{
		Timeout:    constants.DefaultExpectTimeout,
		BufferSize: constants.InteractiveBufferSize,
		Term:       constants.DefaultTerminal,
		Width:      constants.DefaultTermWidth,
		Height:     constants.DefaultTermHeight,
	}
	if o == nil {
		return out
	}
	if o.Timeout > 0 {
		out.Timeout = o.Timeout
	}
	if o.BufferSize > 0 {
		out.BufferSize = o.BufferSize
	}
	if o.Term != "" {
		out.Term = o.Term
	}
	if o.Width > 0 {
		out.Width = o.Width
	}
	if o.Height > 0 {
		out.Height = o.Height
	}
	out.Display = o.Display
	return out
}

// InteractiveSession is a send/expect interface over a PTY shell.
type InteractiveSession struct {
	session *ssh.Session
	stdin   io.WriteCloser
	opts    InteractiveOptions
	log     *logrus.Entry

	mu      sync.Mutex
	buf     bytes.Buffer
	readErr error

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Interactive opens a PTY shell on the connection.
func (c *Client) Interactive(ctx context.Context, opts *InteractiveOptions) (*InteractiveSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o := opts.withDefaults()

	session, err := c.NewSession()
	if err != nil {
		c.log.WithError(err).Error("Couldn't get an interactive session to server")
		return nil, errors.Wrap(err, "failed to create interactive session")
	}

	is, err := startInteractive(session, o, c.log.WithField("mode", "interactive"))
	if err != nil {
		session.Close()
		c.log.WithError(err).Error("Couldn't get an interactive session to server")
		return nil, err
	}
	return is, nil
}

func startInteractive(session *ssh.Session, o InteractiveOptions, log *logrus.Entry) (*InteractiveSession, error) {
	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get stdin pipe")
	}

	// stdout and stderr share one stream, like a terminal.
	pr, pw := io.Pipe()
	session.Stdout = pw
	session.Stderr = pw

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(o.Term, o.Height, o.Width, modes); err != nil {
		pw.Close()
		return nil, errors.Wrap(err, "failed to request pty")
	}
	if err := session.Shell(); err != nil {
		pw.Close()
		return nil, errors.Wrap(err, "failed to start shell")
	}

	is := &InteractiveSession{
		session: session,
		stdin:   stdin,
		opts:    o,
		log:     log,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	go func() {
		err := session.Wait()
		pw.CloseWithError(sessionEnded(err))
	}()
	go is.read(pr)

	log.Info("Interactive session started")
	return is, nil
}

func sessionEnded(err error) error {
	if err == nil {
		return io.EOF
	}
	return err
}

func (s *InteractiveSession) read(r io.Reader) {
	defer close(s.done)

	buf := make([]byte, constants.ReadChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if s.opts.Display != nil {
				s.opts.Display.Write(buf[:n])
			}
			s.mu.Lock()
			s.buf.Write(buf[:n])
			if over := s.buf.Len() - s.opts.BufferSize; over > 0 {
				s.buf.Next(over)
			}
			s.mu.Unlock()

			select {
			case s.notify <- struct{}{}:
			default:
			}
		}
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return
		}
	}
}

// Send writes text as is. No newline is appended.
func (s *InteractiveSession) Send(text string) error {
	s.log.WithField("text", security.SanitizeCommandForLog(text)).Debug("Sending")
	if _, err := io.WriteString(s.stdin, text); err != nil {
		return errors.Wrap(err, "send")
	}
	return nil
}

// SendLine writes text followed by a newline.
func (s *InteractiveSession) SendLine(text string) error {
	return s.Send(text + "\n")
}

// Expect waits until pattern matches the output received so far and returns
// that output up to the end of the match. Matched output is consumed.
// A zero timeout uses the session default.
func (s *InteractiveSession) Expect(pattern string, timeout time.Duration) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", errors.Wrapf(err, "invalid pattern %q", pattern)
	}
	return s.ExpectRegexp(re, timeout)
}

// ExpectRegexp is Expect with a compiled pattern.
func (s *InteractiveSession) ExpectRegexp(re *regexp.Regexp, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = s.opts.Timeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	log := s.log.WithField("pattern", re.String())
	for {
		if out, ok := s.match(re); ok {
			log.Debug("Pattern matched")
			return out, nil
		}

		select {
		case <-s.notify:
		case <-s.done:
			// One last look at what arrived before the stream ended.
			if out, ok := s.match(re); ok {
				return out, nil
			}
			s.mu.Lock()
			readErr := s.readErr
			s.mu.Unlock()
			log.WithError(readErr).Error("Session ended before pattern matched")
			return "", errors.Wrapf(ErrSessionClosed, "waiting for %q: %v", re.String(), readErr)
		case <-timer.C:
			log.WithField("timeout", timeout).Error("Timed out waiting for pattern")
			return "", errors.Wrapf(ErrExpectTimeout, "%q not seen within %s", re.String(), timeout)
		}
	}
}

// match looks for re in the buffered output with terminal escapes removed.
func (s *InteractiveSession) match(re *regexp.Regexp) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clean := ansiEscape.ReplaceAll(s.buf.Bytes(), nil)
	loc := re.FindIndex(clean)
	if loc == nil {
		return "", false
	}

	out := string(clean[:loc[1]])
	rest := append([]byte(nil), clean[loc[1]:]...)
	s.buf.Reset()
	s.buf.Write(rest)
	return out, true
}

// Buffered returns the unmatched output received so far.
func (s *InteractiveSession) Buffered() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(ansiEscape.ReplaceAll(s.buf.Bytes(), nil))
}

// Close ends the shell. Safe to call repeatedly.
func (s *InteractiveSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.stdin.Close()
		err = s.session.Close()
		if errors.Is(err, io.EOF) {
			err = nil
		}
		s.log.Info("Interactive session closed")
	})
	return err
}
