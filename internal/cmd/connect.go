package cmd

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/sshrun/internal/config"
	"github.com/yoanbernabeu/sshrun/internal/security"
	"github.com/yoanbernabeu/sshrun/internal/ssh"
)

// Target is a resolved remote endpoint plus its credentials.
type Target struct {
	Server   config.ServerConfig
	Password string
}

// Address returns the host:port to dial.
func (t *Target) Address() string {
	return t.Server.Address()
}

var commandTimeout time.Duration

// addConnectionFlags registers the flags shared by every remote command.
func addConnectionFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&commandTimeout, "command-timeout", 0, "Per-command timeout (default from config: 2m0s)")
}

// resolveTarget turns HOST USERNAME PASSWORD into a Target. HOST may name a
// configured server; an empty USERNAME falls back to the configured user.
func resolveTarget(host, user, password string) (*Target, error) {
	server := appConfig.Resolve(host)
	if user != "" {
		server.User = user
	}

	if config.ValidateServerConfig(&server).HasErrors() {
		return nil, errors.Errorf("invalid host %q", host)
	}
	if err := security.ValidateLoginName(server.User); err != nil {
		return nil, errors.Wrap(err, "invalid username")
	}

	password, err := resolvePassword(password, server.User, server.Host)
	if err != nil {
		return nil, err
	}

	return &Target{Server: server, Password: password}, nil
}

// newClient builds an unconnected client for t from the loaded configuration.
func newClient(t *Target) *ssh.Client {
	timeout := appConfig.CommandTimeout
	if commandTimeout > 0 {
		timeout = commandTimeout
	}

	return ssh.NewClient(t.Address(), t.Server.User, t.Password,
		ssh.WithConnectTimeout(appConfig.ConnectTimeout),
		ssh.WithCommandTimeout(timeout),
		ssh.WithKeyPath(t.Server.KeyPath),
		ssh.WithLogger(logger),
	)
}

// ConnectToTarget resolves HOST USERNAME PASSWORD from args and connects.
// The caller must Close the client.
func ConnectToTarget(cmd *cobra.Command, args []string) (*ssh.Client, error) {
	t, err := resolveTarget(args[0], args[1], args[2])
	if err != nil {
		return nil, err
	}

	PrintVerbose("Connecting to %s@%s", t.Server.User, t.Address())
	client := newClient(t)
	if err := client.Connect(cmd.Context()); err != nil {
		return nil, err
	}
	return client, nil
}
