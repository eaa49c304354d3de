package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/sshrun/internal/security"
	"github.com/yoanbernabeu/sshrun/internal/ssh"
)

var execCmd = &cobra.Command{
	Use:   "exec <host> <username> <password> -- <command>...",
	Short: "Run one command on a remote endpoint",
	Long: `Runs a single command and prints what it wrote to stdout.

A command that writes anything to stderr is reported as failed and the
error output is printed. A command that finishes without stderr but with
a non-zero exit status succeeds, and sshrun exits with that status.

Example:
  sshrun exec 10.0.0.1 admin secret -- ls -la /tmp
  sshrun exec lab "" - -- 'df -h | grep /data'`,
	Args: cobra.MinimumNArgs(4),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
	addConnectionFlags(execCmd)
}

// ExitCodeError carries a remote exit status out to the process.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("remote command exited with status %d", e.Code)
}

func runExec(cmd *cobra.Command, args []string) error {
	command := security.JoinCommand(args[3:])

	client, err := ConnectToTarget(cmd, args)
	if err != nil {
		return err
	}
	defer client.Close()

	PrintVerboseCommand(command)
	result, err := client.Execute(cmd.Context(), command)
	if err != nil {
		return err
	}
	return reportResult(result)
}

// reportResult prints a command result and turns a failure into an error.
func reportResult(result *ssh.CommandResult) error {
	fmt.Fprint(stdout(), result.Output)

	if !result.Succeeded() {
		if result.Error != "" {
			fmt.Fprint(stderr(), result.Error)
		}
		return fmt.Errorf("command failed: %v", result.Reason)
	}

	if code, ok := result.ExitStatus(); ok {
		PrintVerbose("Exit status %d in %s", code, result.Duration)
		if code != 0 {
			return &ExitCodeError{Code: code}
		}
	} else {
		PrintVerbose("No exit status reported")
	}
	return nil
}
