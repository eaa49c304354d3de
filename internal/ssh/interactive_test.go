package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoanbernabeu/sshrun/internal/constants"
	"github.com/yoanbernabeu/sshrun/internal/sshtest"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestInteractiveOptions_Defaults(t *testing.T) {
	var nilOpts *InteractiveOptions
	o := nilOpts.withDefaults()
	assert.Equal(t, constants.DefaultExpectTimeout, o.Timeout)
	assert.Equal(t, constants.InteractiveBufferSize, o.BufferSize)
	assert.Equal(t, "xterm", o.Term)
	assert.Equal(t, 80, o.Width)
	assert.Equal(t, 40, o.Height)

	o = (&InteractiveOptions{Timeout: time.Second, Term: "vt100"}).withDefaults()
	assert.Equal(t, time.Second, o.Timeout)
	assert.Equal(t, "vt100", o.Term)
	assert.Equal(t, constants.InteractiveBufferSize, o.BufferSize)
}

func TestInteractive_NotConnected(t *testing.T) {
	client := NewClient("host", "user", "pw")
	_, err := client.Interactive(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestInteractive_SendExpect(t *testing.T) {
	isolateEnv(t)
	srv := startServer(t, sshtest.Config{
		Exec: func(command string, stdout, stderr io.Writer) int {
			if command == "ls" {
				fmt.Fprint(stdout, "file1  file2\r\n")
			}
			return 0
		},
	})
	client := connectedClient(t, srv)

	display := &lockedBuffer{}
	session, err := client.Interactive(context.Background(), &InteractiveOptions{
		Timeout: 5 * time.Second,
		Display: display,
	})
	require.NoError(t, err)
	defer session.Close()

	out, err := session.Expect(constants.ShellPromptPattern, 0)
	require.NoError(t, err)
	assert.Contains(t, out, "tester@sshtest:~$")

	require.NoError(t, session.SendLine("ls"))
	out, err = session.Expect(constants.ShellPromptPattern, 0)
	require.NoError(t, err)
	assert.Contains(t, out, "file1  file2")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "$"))

	assert.Contains(t, display.String(), "file1  file2")
}

func TestInteractive_SendWithoutNewline(t *testing.T) {
	isolateEnv(t)
	srv := startServer(t, sshtest.Config{})
	client := connectedClient(t, srv)

	session, err := client.Interactive(context.Background(), &InteractiveOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer session.Close()

	_, err = session.Expect(`\$ `, 0)
	require.NoError(t, err)

	require.NoError(t, session.Send("who"))
	require.NoError(t, session.Send("ami\n"))
	out, err := session.Expect(`whoami\r?\n`, 0)
	require.NoError(t, err)
	assert.Contains(t, out, "whoami")
}

func TestInteractive_ExpectTimeout(t *testing.T) {
	isolateEnv(t)
	srv := startServer(t, sshtest.Config{})
	client := connectedClient(t, srv)

	session, err := client.Interactive(context.Background(), nil)
	require.NoError(t, err)
	defer session.Close()

	start := time.Now()
	_, err = session.Expect("this will never show up", 100*time.Millisecond)

	assert.True(t, errors.Is(err, ErrExpectTimeout))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestInteractive_InvalidPattern(t *testing.T) {
	isolateEnv(t)
	srv := startServer(t, sshtest.Config{})
	client := connectedClient(t, srv)

	session, err := client.Interactive(context.Background(), nil)
	require.NoError(t, err)
	defer session.Close()

	_, err = session.Expect("(", time.Second)
	assert.Error(t, err)
}

func TestInteractive_SessionEnded(t *testing.T) {
	isolateEnv(t)
	srv := startServer(t, sshtest.Config{})
	client := connectedClient(t, srv)

	session, err := client.Interactive(context.Background(), &InteractiveOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer session.Close()

	_, err = session.Expect(`\$ `, 0)
	require.NoError(t, err)
	require.NoError(t, session.SendLine("exit"))

	_, err = session.Expect("never", 0)
	assert.True(t, errors.Is(err, ErrSessionClosed))
}

func TestInteractive_CloseTwice(t *testing.T) {
	isolateEnv(t)
	srv := startServer(t, sshtest.Config{})
	client := connectedClient(t, srv)

	session, err := client.Interactive(context.Background(), nil)
	require.NoError(t, err)

	assert.NoError(t, session.Close())
	assert.NoError(t, session.Close())
}

func TestInteractive_StripsEscapes(t *testing.T) {
	isolateEnv(t)
	srv := startServer(t, sshtest.Config{
		Prompt: "\x1b[01;32mtester@box\x1b[00m:~$ ",
	})
	client := connectedClient(t, srv)

	session, err := client.Interactive(context.Background(), &InteractiveOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer session.Close()

	out, err := session.Expect(`tester@box:~\$`, 0)
	require.NoError(t, err)
	assert.NotContains(t, out, "\x1b")
}

func TestInteractive_ContextCancelled(t *testing.T) {
	client := NewClient("host", "user", "pw")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Interactive(ctx, nil)
	assert.True(t, errors.Is(err, context.Canceled))
}
