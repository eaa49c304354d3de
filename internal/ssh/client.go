package ssh

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/yoanbernabeu/sshrun/internal/constants"
	"github.com/yoanbernabeu/sshrun/internal/logging"
	"github.com/yoanbernabeu/sshrun/internal/security"
)

// Client represents an SSH client connection to one remote endpoint.
//
// A Client runs one command at a time: concurrent Execute calls are
// serialized.
type Client struct {
	Address  string // host:port
	User     string
	Password string

	opts clientOptions
	log  *logrus.Entry

	mu        sync.Mutex // guards client and agentConn
	client    *ssh.Client
	agentConn net.Conn

	execMu sync.Mutex // one in-flight command
	last   *CommandResult

	// opener issues a command; replaced in tests.
	opener func(command string) (Channel, error)
}

type clientOptions struct {
	connectTimeout  time.Duration
	commandTimeout  time.Duration
	chunkSize       int
	keyPath         string
	hostKeyCallback ssh.HostKeyCallback
	log             *logrus.Entry
}

// ClientOption customizes a Client.
type ClientOption func(*clientOptions)

// WithConnectTimeout bounds dialing and the SSH handshake.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithCommandTimeout bounds a single Execute.
func WithCommandTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.commandTimeout = d
		}
	}
}

// WithChunkSize sets the size of a single read from a command's streams.
func WithChunkSize(n int) ClientOption {
	return func(o *clientOptions) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithKeyPath adds public key authentication from a private key file.
func WithKeyPath(path string) ClientOption {
	return func(o *clientOptions) { o.keyPath = path }
}

// WithHostKeyCallback overrides host key verification.
func WithHostKeyCallback(cb ssh.HostKeyCallback) ClientOption {
	return func(o *clientOptions) { o.hostKeyCallback = cb }
}

// WithLogger sets the logger every action is written to.
func WithLogger(log *logrus.Entry) ClientOption {
	return func(o *clientOptions) { o.log = log }
}

// NewClient creates a new SSH client. The address may omit the port.
func NewClient(address, user, password string, opts ...ClientOption) *Client {
	o := clientOptions{
		connectTimeout: constants.DefaultConnectTimeout,
		commandTimeout: constants.DefaultCommandTimeout,
		chunkSize:      constants.ReadChunkSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.Discard()
	}

	c := &Client{
		Address:  normalizeAddress(address),
		User:     user,
		Password: password,
		opts:     o,
	}
	c.log = o.log.WithFields(logrus.Fields{"address": c.Address, "user": user})
	c.opener = c.openSessionChannel
	return c
}

// normalizeAddress appends the default SSH port when none is given.
func normalizeAddress(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, strconv.Itoa(constants.DefaultSSHPort))
}

// Connect establishes an SSH connection. On failure the client stays
// disconnected and a *ConnectionError is returned.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.log.Debug("SSH connection already established")
		return nil
	}

	c.log.WithField("password", security.MaskSecret(c.Password)).Info("Creating SSH connection")

	client, err := c.dial(ctx)
	if err != nil {
		c.closeAgent()
		c.log.WithError(err).Error("SSH connect failed")
		return &ConnectionError{Address: c.Address, User: c.User, Err: err}
	}

	c.client = client
	c.log.Info("SSH connection established")
	return nil
}

func (c *Client) dial(ctx context.Context) (*ssh.Client, error) {
	auths, err := c.authMethods()
	if err != nil {
		return nil, err
	}

	hostKeyCallback := c.opts.hostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback, err = defaultHostKeyCallback()
		if err != nil {
			return nil, errors.Wrap(err, "host key verification failed")
		}
	}

	config := &ssh.ClientConfig{
		User:            c.User,
		Auth:            auths,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.opts.connectTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.connectTimeout)
	defer cancel()

	d := net.Dialer{Timeout: c.opts.connectTimeout}
	conn, err := d.DialContext(dialCtx, "tcp", c.Address)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}

	// The handshake has no timeout of its own in NewClientConn.
	deadline := time.Now().Add(c.opts.connectTimeout)
	if dl, ok := dialCtx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, c.Address, config)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "handshake")
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Close closes the SSH connection. Closing a closed or never connected
// client is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	err := c.client.Close()
	c.client = nil
	c.closeAgent()
	c.log.Info("Closed the SSH client")

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.Wrap(err, "close ssh connection")
	}
	return nil
}

func (c *Client) closeAgent() {
	if c.agentConn != nil {
		c.agentConn.Close()
		c.agentConn = nil
	}
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil
}

// GetClient returns the underlying SSH client
func (c *Client) GetClient() *ssh.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// NewSession creates a new SSH session
func (c *Client) NewSession() (*ssh.Session, error) {
	client := c.GetClient()
	if client == nil {
		return nil, ErrNotConnected
	}
	return client.NewSession()
}

// LastResult returns the result of the most recent Execute, or nil.
func (c *Client) LastResult() *CommandResult {
	c.execMu.Lock()
	defer c.execMu.Unlock()
	return c.last
}

// Output returns the captured output of the most recent command.
func (c *Client) Output() string {
	if r := c.LastResult(); r != nil {
		return r.Output
	}
	return ""
}

// ErrorOutput returns the captured stderr text of the most recent command.
func (c *Client) ErrorOutput() string {
	if r := c.LastResult(); r != nil {
		return r.Error
	}
	return ""
}

// ExitStatus returns the exit code of the most recent command, if known.
func (c *Client) ExitStatus() (int, bool) {
	if r := c.LastResult(); r != nil {
		return r.ExitStatus()
	}
	return 0, false
}
