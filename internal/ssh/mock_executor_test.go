package ssh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockExecutor_Defaults(t *testing.T) {
	var exec Executor = &MockExecutor{}

	result, err := exec.Execute(context.Background(), "uptime")
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	code, ok := result.ExitStatus()
	assert.True(t, ok)
	assert.Equal(t, 0, code)

	require.NoError(t, exec.Close())
	mock := exec.(*MockExecutor)
	assert.Equal(t, []string{"uptime"}, mock.Commands)
	assert.Equal(t, 1, mock.Closed)
}

func TestMockExecutor_ExecuteFunc(t *testing.T) {
	mock := &MockExecutor{
		ExecuteFunc: func(ctx context.Context, command string) (*CommandResult, error) {
			return &CommandResult{Command: command, Outcome: Fail, Error: "denied"}, nil
		},
	}

	result, err := mock.Execute(context.Background(), "rm -rf /tmp/x")
	require.NoError(t, err)
	assert.False(t, result.Succeeded())
	assert.Equal(t, "denied", result.Error)
}

func TestClientImplementsExecutor(t *testing.T) {
	var _ Executor = NewClient("host", "user", "pw")
}
