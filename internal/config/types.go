package config

import (
	"net"
	"strconv"
	"time"

	"github.com/yoanbernabeu/sshrun/internal/constants"
	"github.com/yoanbernabeu/sshrun/internal/logging"
)

// Config represents the sshrun configuration file
type Config struct {
	ConnectTimeout time.Duration           `yaml:"connect_timeout,omitempty"`
	CommandTimeout time.Duration           `yaml:"command_timeout,omitempty"`
	Log            logging.Config          `yaml:"log,omitempty"`
	Poll           PollConfig              `yaml:"poll,omitempty"`
	DefaultUser    string                  `yaml:"default_user,omitempty"`
	DefaultPort    int                     `yaml:"default_port,omitempty"`
	Servers        map[string]ServerConfig `yaml:"servers,omitempty"`
}

// PollConfig holds the defaults of the wait command
type PollConfig struct {
	Timeout time.Duration `yaml:"timeout,omitempty"`
	Period  time.Duration `yaml:"period,omitempty"`
	Retries int           `yaml:"retries,omitempty"`
}

// ServerConfig represents a named remote endpoint
type ServerConfig struct {
	Host    string `yaml:"host"`
	User    string `yaml:"user,omitempty"`
	Port    int    `yaml:"port,omitempty"`
	KeyPath string `yaml:"key_path,omitempty"`
}

// Address returns host:port, using the default SSH port when none is set.
func (s ServerConfig) Address() string {
	port := s.Port
	if port == 0 {
		port = constants.DefaultSSHPort
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(port))
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		ConnectTimeout: constants.DefaultConnectTimeout,
		CommandTimeout: constants.DefaultCommandTimeout,
		Log: logging.Config{
			Destination: constants.DefaultLogFile("."),
			Level:       constants.DefaultLogLevel,
			Format:      constants.DefaultLogFormat,
		},
		Poll: PollConfig{
			Timeout: constants.DefaultPollTimeout,
			Period:  constants.DefaultPollPeriod,
			Retries: constants.DefaultPollRetrialCount,
		},
		DefaultPort: constants.DefaultSSHPort,
		Servers:     make(map[string]ServerConfig),
	}
}

// applyDefaults fills every unset value from Default.
func (c *Config) applyDefaults() {
	d := Default()
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = d.CommandTimeout
	}
	if c.Log.Destination == "" {
		c.Log.Destination = d.Log.Destination
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Poll.Timeout == 0 {
		c.Poll.Timeout = d.Poll.Timeout
	}
	if c.Poll.Period == 0 {
		c.Poll.Period = d.Poll.Period
	}
	if c.DefaultPort == 0 {
		c.DefaultPort = d.DefaultPort
	}
	if c.Servers == nil {
		c.Servers = make(map[string]ServerConfig)
	}
}
