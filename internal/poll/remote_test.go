package poll

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yoanbernabeu/sshrun/internal/ssh"
)

func exitCode(n int) *int { return &n }

func TestRemoteProbe_TrimsOutput(t *testing.T) {
	mock := &ssh.MockExecutor{
		ExecuteFunc: func(ctx context.Context, command string) (*ssh.CommandResult, error) {
			return &ssh.CommandResult{Outcome: ssh.Success, Output: "running\n", ExitCode: exitCode(0)}, nil
		},
	}

	state, err := RemoteProbe(mock, "docker inspect app")(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != "running" {
		t.Errorf("expected state running, got %q", state)
	}
	if len(mock.Commands) != 1 || mock.Commands[0] != "docker inspect app" {
		t.Errorf("unexpected commands: %v", mock.Commands)
	}
}

func TestRemoteProbe_FailIsProbeError(t *testing.T) {
	mock := &ssh.MockExecutor{
		ExecuteFunc: func(ctx context.Context, command string) (*ssh.CommandResult, error) {
			return &ssh.CommandResult{Outcome: ssh.Fail, Error: "No such object: app\n", Reason: ssh.ErrRemoteStderr}, nil
		},
	}

	_, err := RemoteProbe(mock, "docker inspect app")(context.Background())
	if !errors.Is(err, ErrRemoteProbe) {
		t.Fatalf("expected ErrRemoteProbe, got %v", err)
	}
	if !strings.Contains(err.Error(), "No such object") {
		t.Errorf("expected stderr in error, got %v", err)
	}
}

func TestRemoteProbe_ExecutorError(t *testing.T) {
	mock := &ssh.MockExecutor{
		ExecuteFunc: func(ctx context.Context, command string) (*ssh.CommandResult, error) {
			return nil, ssh.ErrNotConnected
		},
	}

	_, err := RemoteProbe(mock, "true")(context.Background())
	if !errors.Is(err, ssh.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestExitCodeProbe(t *testing.T) {
	tests := []struct {
		name    string
		result  *ssh.CommandResult
		want    string
		wantErr bool
	}{
		{"zero", &ssh.CommandResult{Outcome: ssh.Success, ExitCode: exitCode(0)}, "0", false},
		{"non zero", &ssh.CommandResult{Outcome: ssh.Success, ExitCode: exitCode(7)}, "7", false},
		{"no exit status", &ssh.CommandResult{Outcome: ssh.Success}, "", true},
		{"fail", &ssh.CommandResult{Outcome: ssh.Fail, Reason: ssh.ErrCommandTimeout}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &ssh.MockExecutor{
				ExecuteFunc: func(ctx context.Context, command string) (*ssh.CommandResult, error) {
					return tt.result, nil
				},
			}
			got, err := ExitCodeProbe(mock, "test -f /ready")(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemoteProbe_WaitForContainer(t *testing.T) {
	states := []string{"created", "restarting", "running"}
	mock := &ssh.MockExecutor{}
	mock.ExecuteFunc = func(ctx context.Context, command string) (*ssh.CommandResult, error) {
		state := states[len(mock.Commands)-1]
		return &ssh.CommandResult{Outcome: ssh.Success, Output: state + "\n", ExitCode: exitCode(0)}, nil
	}

	clock := newFakeClock()
	p := New("running",
		WithUnexpected("exited", "dead"),
		WithTimeout(30*time.Second),
		WithRetrialPeriod(2*time.Second),
		WithClock(clock),
	)
	result, err := p.Until(context.Background(), RemoteProbe(mock, ContainerStatusCommand("app")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
	if len(clock.sleeps) != 2 {
		t.Errorf("expected 2 sleeps, got %d", len(clock.sleeps))
	}
}

func TestRemoteProbe_ContainerExited(t *testing.T) {
	mock := &ssh.MockExecutor{
		ExecuteFunc: func(ctx context.Context, command string) (*ssh.CommandResult, error) {
			return &ssh.CommandResult{Outcome: ssh.Success, Output: "exited", ExitCode: exitCode(0)}, nil
		},
	}

	p := New("running", WithUnexpected("exited"), WithTimeout(time.Minute), WithClock(newFakeClock()))
	result, err := p.Until(context.Background(), RemoteProbe(mock, ContainerStatusCommand("app")))
	if !errors.Is(err, ErrUnexpectedState) {
		t.Fatalf("expected ErrUnexpectedState, got %v", err)
	}
	if result.Outcome != ReachedUnexpected {
		t.Errorf("expected %s, got %s", ReachedUnexpected, result.Outcome)
	}
}

func TestCommandBuilders(t *testing.T) {
	if got := ContainerStatusCommand("my-app"); got != "docker inspect 'my-app' --format '{{.State.Status}}'" {
		t.Errorf("ContainerStatusCommand = %q", got)
	}
	if got := HTTPStatusCommand("http://localhost/healthz"); got != "curl -s -o /dev/null -w '%{http_code}' 'http://localhost/healthz'" {
		t.Errorf("HTTPStatusCommand = %q", got)
	}
	if got := ContainerStatusCommand("x'; rm -rf /"); !strings.Contains(got, `'x'\''; rm -rf /'`) {
		t.Errorf("container name not escaped: %q", got)
	}
}
