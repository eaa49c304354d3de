package constants

import (
	"path/filepath"
	"time"
)

// Connection defaults
const (
	DefaultSSHPort        = 22
	DefaultConnectTimeout = 60 * time.Second
	DefaultCommandTimeout = 120 * time.Second
)

// Channel draining
const (
	// ReadChunkSize bounds a single read from a command's stdout or stderr.
	ReadChunkSize = 1024
)

// Interactive session defaults
const (
	DefaultExpectTimeout  = 10 * time.Second
	InteractiveBufferSize = 100000
	DefaultTerminal       = "xterm"
	DefaultTermWidth      = 80
	DefaultTermHeight     = 40
	// ShellPromptPattern matches a typical "user@host:~$" prompt.
	ShellPromptPattern = `.*:~.*\$.*`
)

// Poll defaults
const (
	DefaultPollTimeout      = 1200 * time.Second
	DefaultPollPeriod       = 60 * time.Second
	DefaultPollRetrialCount = 0
)

// Logging defaults
const (
	DefaultLoggerName = "SSH Connection"
	DefaultLogLevel   = "debug"
	DefaultLogFormat  = "text"
)

// Environment variables
const (
	EnvSSHKey            = "SSHRUN_SSH_KEY"
	EnvKnownHosts        = "SSHRUN_KNOWN_HOSTS"
	EnvStrictHostKey     = "SSHRUN_STRICT_HOST_KEY"
	EnvLogFile           = "SSHRUN_LOG_FILE"
	EnvSSHAuthSock       = "SSH_AUTH_SOCK"
	DefaultKnownHostsRel = ".ssh/known_hosts"
)

// KnownHostsPath returns the default known_hosts path under home.
func KnownHostsPath(home string) string {
	return filepath.Join(home, DefaultKnownHostsRel)
}

// DefaultLogFile returns the log file used when none is configured.
func DefaultLogFile(dir string) string {
	return filepath.Join(dir, "sshrun.log")
}
