package poll

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/yoanbernabeu/sshrun/internal/security"
	"github.com/yoanbernabeu/sshrun/internal/ssh"
)

// ErrRemoteProbe marks a probe command that did not succeed on the remote side.
var ErrRemoteProbe = errors.New("remote probe command failed")

// RemoteProbe runs command through exec on every attempt and reports its
// trimmed standard output as the state. A Fail result, or an empty output of
// a successful command, is a probe error.
func RemoteProbe(exec ssh.Executor, command string) Probe {
	return func(ctx context.Context) (string, error) {
		result, err := exec.Execute(ctx, command)
		if err != nil {
			return "", err
		}
		if !result.Succeeded() {
			detail := strings.TrimSpace(result.Error)
			if detail == "" && result.Reason != nil {
				detail = result.Reason.Error()
			}
			return "", errors.Wrapf(ErrRemoteProbe, "%s: %s", security.SanitizeCommandForLog(command), detail)
		}
		return strings.TrimSpace(result.Output), nil
	}
}

// ExitCodeProbe runs command and reports its exit code as the state, so that
// "0" can be waited for. A command that wrote to stderr is still a probe error.
func ExitCodeProbe(exec ssh.Executor, command string) Probe {
	return func(ctx context.Context) (string, error) {
		result, err := exec.Execute(ctx, command)
		if err != nil {
			return "", err
		}
		if !result.Succeeded() {
			return "", errors.Wrapf(ErrRemoteProbe, "%s: %v", security.SanitizeCommandForLog(command), result.Reason)
		}
		code, ok := result.ExitStatus()
		if !ok {
			return "", errors.Wrapf(ErrRemoteProbe, "%s: no exit status reported", security.SanitizeCommandForLog(command))
		}
		return fmt.Sprint(code), nil
	}
}

// ContainerStatusCommand prints the docker state of a container, such as
// "running" or "exited".
func ContainerStatusCommand(container string) string {
	return fmt.Sprintf("docker inspect %s --format '{{.State.Status}}'", security.ShellEscape(container))
}

// HTTPStatusCommand prints the HTTP status code returned by url, or "000"
// when the request failed.
func HTTPStatusCommand(url string) string {
	return fmt.Sprintf("curl -s -o /dev/null -w '%%{http_code}' %s", security.ShellEscape(url))
}
