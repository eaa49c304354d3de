package ssh

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// Channel is the per-command duplex stream returned by issuing a command.
//
// Readiness is signalled through Go channels so the drain loop can block on
// all of them at once instead of polling.
type Channel interface {
	// Stdout delivers output chunks and is closed at end of stream.
	Stdout() <-chan []byte
	// Stderr delivers error output chunks and is closed at end of stream.
	Stderr() <-chan []byte
	// ExitStatusReady is closed once the remote process terminated and no
	// more output is pending. It is never closed if the process exit was not
	// reported.
	ExitStatusReady() <-chan struct{}
	// Closed is closed once the transport channel is fully closed.
	Closed() <-chan struct{}
	// ExitStatus returns the exit code if it is known. Safe to call repeatedly.
	ExitStatus() (int, bool)
	// Close releases the channel. Safe to call repeatedly.
	Close() error
}

// sessionChannel adapts an ssh.Session running a single command to Channel.
type sessionChannel struct {
	session *ssh.Session

	stdout    chan []byte
	stderr    chan []byte
	exitReady chan struct{}
	closed    chan struct{}
	quit      chan struct{}

	closeOnce sync.Once

	mu       sync.Mutex
	exitCode int
	hasExit  bool
}

// startSessionChannel starts command on session and begins pumping its
// streams in chunks of at most chunkSize bytes.
func startSessionChannel(session *ssh.Session, command string, chunkSize int) (*sessionChannel, error) {
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get stdout pipe")
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get stderr pipe")
	}
	if err := session.Start(command); err != nil {
		return nil, errors.Wrap(err, "failed to start command")
	}

	ch := &sessionChannel{
		session:   session,
		stdout:    make(chan []byte),
		stderr:    make(chan []byte),
		exitReady: make(chan struct{}),
		closed:    make(chan struct{}),
		quit:      make(chan struct{}),
	}

	var pumps sync.WaitGroup
	pumps.Add(2)
	go ch.pump(stdout, ch.stdout, chunkSize, &pumps)
	go ch.pump(stderr, ch.stderr, chunkSize, &pumps)
	go ch.wait(&pumps)

	return ch, nil
}

func (c *sessionChannel) pump(r io.Reader, out chan<- []byte, chunkSize int, wg *sync.WaitGroup) {
	defer wg.Done()
	defer close(out)

	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			case <-c.quit:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// wait records the exit status once the session ends and both streams were
// handed over, then publishes readiness.
func (c *sessionChannel) wait(pumps *sync.WaitGroup) {
	err := c.session.Wait()
	pumps.Wait()

	c.mu.Lock()
	var exitErr *ssh.ExitError
	switch {
	case err == nil:
		c.exitCode, c.hasExit = 0, true
	case errors.As(err, &exitErr):
		c.exitCode, c.hasExit = exitErr.ExitStatus(), true
	}
	hasExit := c.hasExit
	c.mu.Unlock()

	if hasExit {
		close(c.exitReady)
	}
	close(c.closed)
}

func (c *sessionChannel) Stdout() <-chan []byte           { return c.stdout }
func (c *sessionChannel) Stderr() <-chan []byte           { return c.stderr }
func (c *sessionChannel) ExitStatusReady() <-chan struct{} { return c.exitReady }
func (c *sessionChannel) Closed() <-chan struct{}          { return c.closed }

func (c *sessionChannel) ExitStatus() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode, c.hasExit
}

func (c *sessionChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.quit)
		err = c.session.Close()
		if errors.Is(err, io.EOF) {
			err = nil
		}
	})
	return err
}
