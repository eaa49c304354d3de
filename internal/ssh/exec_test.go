package ssh

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoanbernabeu/sshrun/internal/logging"
)

// fakeChannel is a Channel driven directly by the test.
type fakeChannel struct {
	stdout    chan []byte
	stderr    chan []byte
	exitReady chan struct{}
	closed    chan struct{}

	mu         sync.Mutex
	code       int
	hasExit    bool
	closeCalls int
}

func newFakeChannel(buffer int) *fakeChannel {
	return &fakeChannel{
		stdout:    make(chan []byte, buffer),
		stderr:    make(chan []byte, buffer),
		exitReady: make(chan struct{}),
		closed:    make(chan struct{}),
	}
}

func (f *fakeChannel) setExit(code int) {
	f.mu.Lock()
	f.code, f.hasExit = code, true
	f.mu.Unlock()
}

// finish ends both streams, reports code and closes the channel.
func (f *fakeChannel) finish(code int) {
	f.setExit(code)
	close(f.stdout)
	close(f.stderr)
	close(f.exitReady)
	close(f.closed)
}

func (f *fakeChannel) Stdout() <-chan []byte           { return f.stdout }
func (f *fakeChannel) Stderr() <-chan []byte           { return f.stderr }
func (f *fakeChannel) ExitStatusReady() <-chan struct{} { return f.exitReady }
func (f *fakeChannel) Closed() <-chan struct{}          { return f.closed }

func (f *fakeChannel) ExitStatus() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code, f.hasExit
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func drainFake(t *testing.T, ch Channel, timeout time.Duration) *CommandResult {
	t.Helper()
	return drain(context.Background(), ch, timeout, logging.Discard())
}

func TestDrain_StdoutOnly(t *testing.T) {
	ch := newFakeChannel(8)
	ch.stdout <- []byte("file1\n")
	ch.stdout <- []byte("file2\n")
	ch.stdout <- []byte("file3\n")
	ch.finish(0)

	result := drainFake(t, ch, time.Second)

	assert.Equal(t, Success, result.Outcome)
	assert.True(t, result.Succeeded())
	assert.Equal(t, "file1\nfile2\nfile3\n", result.Output)
	assert.Empty(t, result.Error)
	assert.NoError(t, result.Reason)
	code, ok := result.ExitStatus()
	assert.True(t, ok)
	assert.Equal(t, 0, code)
	assert.Equal(t, 1, ch.closeCalls)
}

func TestDrain_StdoutArrivingOverTime(t *testing.T) {
	ch := newFakeChannel(0)
	go func() {
		for _, part := range []string{"a", "b", "c"} {
			ch.stdout <- []byte(part)
			time.Sleep(5 * time.Millisecond)
		}
		ch.finish(0)
	}()

	result := drainFake(t, ch, 5*time.Second)

	assert.Equal(t, Success, result.Outcome)
	assert.Equal(t, "abc", result.Output)
}

func TestDrain_StderrIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		exitCode int
	}{
		{"exit zero", 0},
		{"exit non zero", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := newFakeChannel(4)
			ch.stdout <- []byte("partial")
			ch.stderr <- []byte("boom")
			ch.setExit(tt.exitCode)

			result := drainFake(t, ch, time.Second)

			assert.Equal(t, Fail, result.Outcome)
			assert.Equal(t, "boom", result.Error)
			assert.Equal(t, "partial", result.Output)
			assert.True(t, errors.Is(result.Reason, ErrRemoteStderr))
			code, ok := result.ExitStatus()
			assert.True(t, ok)
			assert.Equal(t, tt.exitCode, code)
			assert.Equal(t, 1, ch.closeCalls)
		})
	}
}

func TestDrain_StderrWithoutExitStatus(t *testing.T) {
	ch := newFakeChannel(1)
	ch.stderr <- []byte("permission denied")

	result := drainFake(t, ch, time.Second)

	assert.Equal(t, Fail, result.Outcome)
	assert.Equal(t, "permission denied", result.Error)
	assert.Nil(t, result.ExitCode)
}

func TestDrain_ClosedImmediately(t *testing.T) {
	ch := newFakeChannel(0)
	close(ch.stdout)
	close(ch.stderr)
	close(ch.closed)

	result := drainFake(t, ch, time.Second)

	assert.Equal(t, Fail, result.Outcome)
	assert.True(t, errors.Is(result.Reason, ErrChannelClosed))
	assert.Empty(t, result.Output)
	assert.Equal(t, 1, ch.closeCalls)
}

func TestDrain_ClosedBeforeDrainWithExitStatusIsSuccess(t *testing.T) {
	ch := newFakeChannel(0)
	ch.finish(0)

	result := drainFake(t, ch, time.Second)

	assert.Equal(t, Success, result.Outcome)
	assert.Empty(t, result.Output)
}

// A channel that closes after output without ever reporting an exit status
// and without stderr resolves to Success with no exit code.
func TestDrain_ClosedWithoutExitStatus(t *testing.T) {
	ch := newFakeChannel(0)
	go func() {
		ch.stdout <- []byte("done\n")
		close(ch.stdout)
		close(ch.stderr)
		close(ch.closed)
	}()

	result := drainFake(t, ch, 5*time.Second)

	assert.Equal(t, Success, result.Outcome)
	assert.Equal(t, "done\n", result.Output)
	assert.Nil(t, result.ExitCode)
	_, ok := result.ExitStatus()
	assert.False(t, ok)
}

func TestDrain_PendingOutputWinsOverExitStatus(t *testing.T) {
	ch := newFakeChannel(16)
	var expected strings.Builder
	for i := 0; i < 10; i++ {
		chunk := strings.Repeat(string(rune('a'+i)), 1024)
		expected.WriteString(chunk)
		ch.stdout <- []byte(chunk)
	}
	ch.finish(0)

	result := drainFake(t, ch, time.Second)

	assert.Equal(t, Success, result.Outcome)
	assert.Equal(t, expected.String(), result.Output)
}

func TestDrain_ExitStatusBeforeStreamsClose(t *testing.T) {
	ch := newFakeChannel(1)
	ch.stdout <- []byte("out")
	ch.setExit(7)
	close(ch.exitReady)

	result := drainFake(t, ch, time.Second)

	assert.Equal(t, Success, result.Outcome)
	assert.Equal(t, "out", result.Output)
	code, ok := result.ExitStatus()
	assert.True(t, ok)
	assert.Equal(t, 7, code)
}

func TestDrain_Timeout(t *testing.T) {
	ch := newFakeChannel(1)
	ch.stdout <- []byte("partial")

	start := time.Now()
	result := drainFake(t, ch, 50*time.Millisecond)

	assert.Equal(t, Fail, result.Outcome)
	assert.True(t, errors.Is(result.Reason, ErrCommandTimeout))
	assert.Equal(t, "partial", result.Output)
	assert.Nil(t, result.ExitCode)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, ch.closeCalls)
}

func TestDrain_ContextCancelled(t *testing.T) {
	ch := newFakeChannel(0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := drain(ctx, ch, time.Minute, logging.Discard())

	assert.Equal(t, Fail, result.Outcome)
	assert.True(t, errors.Is(result.Reason, context.Canceled))
}

func TestExecute_NotConnected(t *testing.T) {
	client := NewClient("host", "user", "pw")
	opened := 0
	client.opener = func(command string) (Channel, error) {
		opened++
		return newFakeChannel(0), nil
	}

	result, err := client.Execute(context.Background(), "ls")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConnected))
	assert.Nil(t, result)
	assert.Equal(t, 0, opened, "transport must not be touched")
	assert.Nil(t, client.LastResult())
}

func TestCommandResult_NilSafe(t *testing.T) {
	var r *CommandResult
	assert.False(t, r.Succeeded())
	_, ok := r.ExitStatus()
	assert.False(t, ok)
}
