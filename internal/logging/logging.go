// Package logging builds logrus loggers from an explicit configuration.
//
// Nothing in this package touches the logrus standard logger; every component
// receives the *logrus.Entry it should write to.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config describes a single log destination.
type Config struct {
	// Destination is "stderr", "stdout", "discard" or a file path.
	// An empty destination means stderr.
	Destination string `yaml:"destination,omitempty"`
	// Level is the minimum level written, e.g. "debug" or "info".
	Level string `yaml:"level,omitempty"`
	// Format is "text" or "json".
	Format string `yaml:"format,omitempty"`
}

// DefaultConfig accepts every level and writes text to stderr.
func DefaultConfig() Config {
	return Config{
		Destination: "stderr",
		Level:       logrus.DebugLevel.String(),
		Format:      "text",
	}
}

// Validate reports configuration values logrus cannot use.
func (c Config) Validate() error {
	if c.Level != "" {
		if _, err := logrus.ParseLevel(c.Level); err != nil {
			return errors.Wrapf(err, "invalid log level %q", c.Level)
		}
	}
	switch strings.ToLower(c.Format) {
	case "", "text", "json":
	default:
		return errors.Errorf("invalid log format %q (want text or json)", c.Format)
	}
	return nil
}

// New returns a logger tagged with name. The returned closer releases the
// destination file, if any; it is safe to call on stream destinations.
func New(name string, cfg Config) (*logrus.Entry, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	out, closer, err := openDestination(cfg.Destination)
	if err != nil {
		return nil, nil, err
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetReportCaller(true)
	logger.SetFormatter(formatter(cfg.Format))

	level := logrus.DebugLevel
	if cfg.Level != "" {
		level, _ = logrus.ParseLevel(cfg.Level)
	}
	logger.SetLevel(level)

	return logger.WithField("logger", name), closer, nil
}

// Discard returns a logger that drops everything. Used as the zero value for
// components built without an explicit logger.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func formatter(format string) logrus.Formatter {
	if strings.ToLower(format) == "json" {
		return &logrus.JSONFormatter{
			CallerPrettyfier: callerPrettyfier,
		}
	}
	return &logrus.TextFormatter{
		FullTimestamp:    true,
		DisableColors:    true,
		CallerPrettyfier: callerPrettyfier,
	}
}

// callerPrettyfier trims the caller down to package.Function and file:line.
func callerPrettyfier(f *runtime.Frame) (string, string) {
	fn := f.Function
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		fn = fn[i+1:]
	}
	return fn, fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openDestination(dest string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(dest) {
	case "", "stderr":
		return os.Stderr, nopCloser{}, nil
	case "stdout":
		return os.Stdout, nopCloser{}, nil
	case "discard":
		return io.Discard, nopCloser{}, nil
	}

	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, nil, errors.Wrapf(err, "failed to create log directory %s", dir)
		}
	}
	// SECURITY: log files may contain command output, keep them owner-only
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open log file %s", dest)
	}
	return f, f, nil
}
