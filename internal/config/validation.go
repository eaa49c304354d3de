package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/yoanbernabeu/sshrun/internal/security"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate validates the whole configuration
func Validate(config *Config) ValidationErrors {
	var errors ValidationErrors

	if config.ConnectTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "connect_timeout",
			Message: "must not be negative",
		})
	}
	if config.CommandTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "command_timeout",
			Message: "must not be negative",
		})
	}
	if err := config.Log.Validate(); err != nil {
		errors = append(errors, ValidationError{
			Field:   "log",
			Message: err.Error(),
		})
	}
	if config.Poll.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "poll.timeout",
			Message: "must not be negative",
		})
	}
	if config.Poll.Period < 0 {
		errors = append(errors, ValidationError{
			Field:   "poll.period",
			Message: "must not be negative",
		})
	}
	if config.Poll.Retries < 0 {
		errors = append(errors, ValidationError{
			Field:   "poll.retries",
			Message: "must not be negative (0 means unlimited)",
		})
	}
	if config.DefaultUser != "" {
		if err := security.ValidateLoginName(config.DefaultUser); err != nil {
			errors = append(errors, ValidationError{
				Field:   "default_user",
				Message: err.Error(),
			})
		}
	}
	if config.DefaultPort != 0 && !validPort(config.DefaultPort) {
		errors = append(errors, ValidationError{
			Field:   "default_port",
			Message: "port must be between 1 and 65535",
		})
	}

	for _, name := range config.ListServers() {
		if err := security.ValidateServerName(name); err != nil {
			errors = append(errors, ValidationError{
				Field:   "servers",
				Message: err.Error(),
			})
		}
		server := config.Servers[name]
		for _, e := range ValidateServerConfig(&server) {
			e.Field = "servers." + name + "." + e.Field
			errors = append(errors, e)
		}
	}

	return errors
}

// ValidateServerConfig validates a server configuration
func ValidateServerConfig(config *ServerConfig) ValidationErrors {
	var errors ValidationErrors

	if config.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "host",
			Message: "server host is required",
		})
	} else if _, _, err := net.SplitHostPort(config.Host); err == nil {
		errors = append(errors, ValidationError{
			Field:   "host",
			Message: "host must not include a port, set port instead",
		})
	} else if err := security.ValidateAddress(config.Host); err != nil {
		errors = append(errors, ValidationError{
			Field:   "host",
			Message: err.Error(),
		})
	}

	if config.User != "" {
		if err := security.ValidateLoginName(config.User); err != nil {
			errors = append(errors, ValidationError{
				Field:   "user",
				Message: err.Error(),
			})
		}
	}

	if config.Port != 0 && !validPort(config.Port) {
		errors = append(errors, ValidationError{
			Field:   "port",
			Message: "port must be between 1 and 65535",
		})
	}

	return errors
}

func validPort(port int) bool {
	return port >= 1 && port <= 65535
}
