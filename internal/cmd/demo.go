package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/sshrun/internal/constants"
	"github.com/yoanbernabeu/sshrun/internal/ssh"
)

var demoCmd = &cobra.Command{
	Use:   "demo <host> <username> <password>",
	Short: "Run sample commands and an interactive exchange",
	Long: `Connects, runs each --command and prints its output, error output and
exit status, then opens an interactive shell: waits for the prompt, sends
--send and waits for the prompt again.

Example:
  sshrun demo 10.0.0.1 admin secret
  sshrun demo lab "" - --command uptime --command 'cat /nofile' --send 'show version'`,
	Args: cobra.ExactArgs(3),
	RunE: runDemo,
}

var (
	demoCommands      []string
	demoSend          string
	demoPrompt        string
	demoExpectTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(demoCmd)
	addConnectionFlags(demoCmd)

	demoCmd.Flags().StringArrayVarP(&demoCommands, "command", "c", []string{"ls", "pwd"}, "Command to run (repeatable)")
	demoCmd.Flags().StringVar(&demoSend, "send", "ls", "Line sent in the interactive session")
	demoCmd.Flags().StringVar(&demoPrompt, "prompt", constants.ShellPromptPattern, "Regular expression matching the shell prompt")
	demoCmd.Flags().DurationVar(&demoExpectTimeout, "expect-timeout", constants.DefaultExpectTimeout, "How long to wait for the prompt")
}

func runDemo(cmd *cobra.Command, args []string) error {
	client, err := ConnectToTarget(cmd, args)
	if err != nil {
		return err
	}
	defer client.Close()
	PrintSuccess("Connected to %s", client.Address)

	for _, command := range demoCommands {
		PrintInfo("Running %q", command)
		result, err := client.Execute(cmd.Context(), command)
		if err != nil {
			return err
		}
		printDemoResult(result)
	}

	PrintInfo("Opening interactive session")
	session, err := client.Interactive(cmd.Context(), &ssh.InteractiveOptions{Timeout: demoExpectTimeout})
	if err != nil {
		return err
	}
	defer session.Close()

	out, err := session.Expect(demoPrompt, 0)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout(), out)

	if err := session.SendLine(demoSend); err != nil {
		return err
	}
	out, err = session.Expect(demoPrompt, 0)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout(), out)

	if rest := session.Buffered(); rest != "" && IsVerbose() {
		PrintVerbose("Unmatched output: %q", rest)
	}
	PrintSuccess("Interactive exchange completed")
	return nil
}

func printDemoResult(result *ssh.CommandResult) {
	w := stdout()
	fmt.Fprintf(w, "  outcome: %s\n", result.Outcome)
	if result.Output != "" {
		fmt.Fprintf(w, "  output:\n%s", indent(result.Output))
	}
	if result.Error != "" {
		fmt.Fprintf(w, "  error:\n%s", indent(result.Error))
	}
	if code, ok := result.ExitStatus(); ok {
		fmt.Fprintf(w, "  exit status: %d\n", code)
	} else {
		fmt.Fprintln(w, "  exit status: none")
	}
	if result.Reason != nil && !result.Succeeded() {
		fmt.Fprintf(w, "  reason: %v\n", result.Reason)
	}
}

func indent(text string) string {
	var out []byte
	start := true
	for i := 0; i < len(text); i++ {
		if start {
			out = append(out, "    "...)
			start = false
		}
		out = append(out, text[i])
		if text[i] == '\n' {
			start = true
		}
	}
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return string(out)
}
