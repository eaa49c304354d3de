package ssh

import (
	"net"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/yoanbernabeu/sshrun/internal/constants"
)

// authMethods returns password auth plus whatever key material is available.
func (c *Client) authMethods() ([]ssh.AuthMethod, error) {
	var auths []ssh.AuthMethod

	if c.Password != "" {
		auths = append(auths,
			ssh.Password(c.Password),
			ssh.KeyboardInteractive(passwordChallenge(c.Password)),
		)
	}

	signer, err := loadSigner(c.opts.keyPath)
	if err != nil {
		return nil, err
	}
	if signer != nil {
		auths = append(auths, ssh.PublicKeys(signer))
	}

	// Try SSH agent if available
	if sock := os.Getenv(constants.EnvSSHAuthSock); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			c.agentConn = conn
			auths = append(auths, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if len(auths) == 0 {
		return nil, errors.New("no authentication method available (password, key or agent)")
	}
	return auths, nil
}

// passwordChallenge answers every keyboard-interactive question with the password.
func passwordChallenge(password string) ssh.KeyboardInteractiveChallenge {
	return func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			answers[i] = password
		}
		return answers, nil
	}
}

// loadSigner loads a private key from the environment or from keyPath.
// It returns a nil signer when neither is set.
func loadSigner(keyPath string) (ssh.Signer, error) {
	// CI/CD: Check for SSH key in environment variable first
	if envKey := os.Getenv(constants.EnvSSHKey); envKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(envKey))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", constants.EnvSSHKey)
		}
		return signer, nil
	}

	if keyPath == "" {
		return nil, nil
	}

	// Expand ~ in path
	if len(keyPath) >= 2 && keyPath[:2] == "~/" {
		homeDir, _ := os.UserHomeDir()
		keyPath = filepath.Join(homeDir, keyPath[2:])
	}

	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read key file")
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}
	return signer, nil
}

// defaultHostKeyCallback picks host key verification from the environment.
//
// Order: SSHRUN_KNOWN_HOSTS content, then ~/.ssh/known_hosts when present.
// Unknown hosts are accepted when no known_hosts is available unless
// SSHRUN_STRICT_HOST_KEY=true.
func defaultHostKeyCallback() (ssh.HostKeyCallback, error) {
	if content := os.Getenv(constants.EnvKnownHosts); content != "" {
		return knownHostsFromContent(content)
	}

	strict := os.Getenv(constants.EnvStrictHostKey) == "true"

	homeDir, err := os.UserHomeDir()
	if err != nil {
		if strict {
			return nil, errors.Wrap(err, "cannot determine home directory")
		}
		return ssh.InsecureIgnoreHostKey(), nil
	}

	knownHostsPath := constants.KnownHostsPath(homeDir)
	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		if strict {
			return nil, errors.Errorf("known_hosts file not found at %s and %s is enabled",
				knownHostsPath, constants.EnvStrictHostKey)
		}
		return ssh.InsecureIgnoreHostKey(), nil
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read known_hosts")
	}
	return callback, nil
}

// knownHostsFromContent writes content to a temp file for knownhosts.New().
func knownHostsFromContent(content string) (ssh.HostKeyCallback, error) {
	tmpFile, err := os.CreateTemp("", "known_hosts")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temp known_hosts")
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(content); err != nil {
		tmpFile.Close()
		return nil, errors.Wrap(err, "failed to write temp known_hosts")
	}
	tmpFile.Close()

	callback, err := knownhosts.New(tmpFile.Name())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", constants.EnvKnownHosts)
	}
	return callback, nil
}
