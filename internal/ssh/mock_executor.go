package ssh

import "context"

// MockExecutor is a test double that records commands and returns configured results.
type MockExecutor struct {
	ExecuteFunc func(ctx context.Context, command string) (*CommandResult, error)
	Commands    []string
	Closed      int
}

// Execute records the command and delegates to ExecuteFunc.
// Without ExecuteFunc every command succeeds with empty output and exit code 0.
func (m *MockExecutor) Execute(ctx context.Context, command string) (*CommandResult, error) {
	m.Commands = append(m.Commands, command)
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, command)
	}
	code := 0
	return &CommandResult{Command: command, Outcome: Success, ExitCode: &code}, nil
}

// Close counts calls.
func (m *MockExecutor) Close() error {
	m.Closed++
	return nil
}
