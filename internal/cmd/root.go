package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/sshrun/internal/config"
	"github.com/yoanbernabeu/sshrun/internal/constants"
	"github.com/yoanbernabeu/sshrun/internal/logging"
	"github.com/yoanbernabeu/sshrun/internal/security"
)

var (
	// Version is set at build time
	Version = "dev"

	// Global flags
	verbose   bool
	cfgFile   string
	logFile   string
	logLevel  string
	logFormat string

	// Set up by the root pre-run hook for every command.
	appConfig *config.Config
	logger    *logrus.Entry
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "sshrun",
	Short: "Run commands on remote SSH endpoints and wait for remote state",
	Long: `sshrun drives remote SSH endpoints: servers, switches and appliances.
It runs a command and captures its output, error output and exit status,
drives an interactive shell, and polls a remote state until it reaches
a desired value.

Quick start:
  sshrun exec 10.0.0.1 admin - -- uname -a   # "-" prompts for the password
  sshrun wait lab admin - --probe 'systemctl is-active nginx' --desired active
  sshrun demo 10.0.0.1 admin secret

Commands:
  demo          Run sample commands and an interactive exchange
  exec          Run one command
  wait          Poll a remote command until it reports a state
  shell         Open an interactive shell
  config        Manage the configuration file and named servers

Environment Variables:
  SSHRUN_SSH_KEY          SSH private key content
  SSHRUN_KNOWN_HOSTS      SSH known_hosts content
  SSHRUN_STRICT_HOST_KEY  Refuse unknown hosts when no known_hosts exists (true/false)
  SSHRUN_LOG_FILE         Log destination (file path, stderr, stdout or discard)`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	defer closeLog()
	return rootCmd.ExecuteContext(ctx)
}

// GetRootCmd returns the root command, used by the docs generator
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Show detailed output and log at debug level")
	flags.StringVar(&cfgFile, "config", "", "Config file (default: $XDG_CONFIG_HOME/sshrun/config.yaml)")
	flags.StringVar(&logFile, "log-file", "", "Log destination: file path, stderr, stdout or discard")
	flags.StringVar(&logLevel, "log-level", "", "Minimum log level (default from config: debug)")
	flags.StringVar(&logFormat, "log-format", "", "Log format: text or json")

	rootCmd.SetVersionTemplate(`sshrun {{.Version}}
`)
}

// setup loads the configuration and builds the logger. The log destination
// comes from --log-file, then SSHRUN_LOG_FILE, then the config file.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logCfg := cfg.Log
	if env := os.Getenv(constants.EnvLogFile); env != "" {
		logCfg.Destination = env
	}
	if logFile != "" {
		logCfg.Destination = logFile
	}
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	if logFormat != "" {
		logCfg.Format = logFormat
	}
	if verbose {
		logCfg.Level = logrus.DebugLevel.String()
	}

	closeLog()
	log, closer, err := logging.New(constants.DefaultLoggerName, logCfg)
	if err != nil {
		return err
	}

	appConfig, logger, logCloser = cfg, log, closer
	return nil
}

func closeLog() {
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
}

// IsVerbose returns true if verbose mode is enabled
func IsVerbose() bool {
	return verbose
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

func stdout() io.Writer { return rootCmd.OutOrStdout() }
func stderr() io.Writer { return rootCmd.ErrOrStderr() }

// PrintError prints a formatted error message
func PrintError(msg string, args ...interface{}) {
	fmt.Fprintf(stderr(), "❌ "+msg+"\n", args...)
}

// PrintSuccess prints a success message
func PrintSuccess(msg string, args ...interface{}) {
	fmt.Fprintf(stdout(), "✅ "+msg+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(msg string, args ...interface{}) {
	fmt.Fprintf(stdout(), "ℹ️  "+msg+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(msg string, args ...interface{}) {
	fmt.Fprintf(stdout(), "⚠️  "+msg+"\n", args...)
}

// PrintVerbose prints a message only in verbose mode
func PrintVerbose(msg string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(stdout(), "   "+msg+"\n", args...)
	}
}

// PrintVerboseCommand prints a command in verbose mode with sensitive values masked
func PrintVerboseCommand(command string) {
	if verbose {
		fmt.Fprintf(stdout(), "   Running: %s\n", security.SanitizeCommandForLog(command))
	}
}
