package ssh

import "context"

// Executor abstracts remote command execution for testability.
type Executor interface {
	Execute(ctx context.Context, command string) (*CommandResult, error)
	Close() error
}
