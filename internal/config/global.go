package config

import (
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigDir is the configuration directory name
	ConfigDir = "sshrun"
	// ConfigFile is the config filename
	ConfigFile = "config.yaml"
)

// Path returns the path to the default config file
func Path() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "failed to get home directory")
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, ConfigDir, ConfigFile), nil
}

// Load loads the configuration from path, or from Path when path is empty.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = Path(); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, errors.Wrap(err, "failed to read config")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	config.applyDefaults()

	if errs := Validate(&config); errs.HasErrors() {
		return nil, errors.Wrapf(errs, "invalid config %s", path)
	}
	return &config, nil
}

// Save writes the configuration to path, or to Path when path is empty.
func Save(config *Config, path string) error {
	if path == "" {
		var err error
		if path, err = Path(); err != nil {
			return err
		}
	}

	// SECURITY: 0700 keeps the directory private to the owner
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	// SECURITY: 0600, the file names servers and key paths
	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write config")
	}
	return nil
}

// GetServer retrieves a server configuration by name
func (c *Config) GetServer(name string) (*ServerConfig, error) {
	server, ok := c.Servers[name]
	if !ok {
		return nil, errors.Errorf("server '%s' not found", name)
	}
	return &server, nil
}

// AddServer adds a new server to the configuration
func (c *Config) AddServer(name string, server ServerConfig) error {
	if _, exists := c.Servers[name]; exists {
		return errors.Errorf("server '%s' already exists", name)
	}
	if c.Servers == nil {
		c.Servers = make(map[string]ServerConfig)
	}

	if server.Port == 0 {
		server.Port = c.DefaultPort
	}
	if server.User == "" {
		server.User = c.DefaultUser
	}
	if errs := ValidateServerConfig(&server); errs.HasErrors() {
		return errors.Wrapf(errs, "server '%s'", name)
	}

	c.Servers[name] = server
	return nil
}

// RemoveServer removes a server from the configuration
func (c *Config) RemoveServer(name string) error {
	if _, exists := c.Servers[name]; !exists {
		return errors.Errorf("server '%s' not found", name)
	}

	delete(c.Servers, name)
	return nil
}

// ListServers returns all server names in sorted order
func (c *Config) ListServers() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve maps a HOST argument to an endpoint. A configured server name
// expands to its address, user and key; anything else is taken as an address
// with the configured default user.
func (c *Config) Resolve(host string) ServerConfig {
	if server, ok := c.Servers[host]; ok {
		if server.User == "" {
			server.User = c.DefaultUser
		}
		if server.Port == 0 {
			server.Port = c.DefaultPort
		}
		return server
	}
	server := ServerConfig{Host: host, User: c.DefaultUser, Port: c.DefaultPort}
	if h, p, err := net.SplitHostPort(host); err == nil {
		if port, err := strconv.Atoi(p); err == nil {
			server.Host, server.Port = h, port
		}
	}
	return server
}
