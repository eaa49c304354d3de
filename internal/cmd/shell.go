package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell <host> <username> <password>",
	Short: "Open an interactive shell on a remote endpoint",
	Long: `Opens an interactive PTY shell. When stdin is a terminal it is put in raw
mode for the duration of the session.

Example:
  sshrun shell 10.0.0.1 admin -`,
	Args: cobra.ExactArgs(3),
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	client, err := ConnectToTarget(cmd, args)
	if err != nil {
		return err
	}
	defer client.Close()

	if !IsInteractive() {
		PrintWarning("stdin is not a terminal, input is forwarded line by line")
	}
	return client.Shell(os.Stdin, cmd.OutOrStdout(), cmd.ErrOrStderr())
}
