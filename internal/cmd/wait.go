package cmd

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/sshrun/internal/poll"
	"github.com/yoanbernabeu/sshrun/internal/ssh"
)

var waitCmd = &cobra.Command{
	Use:   "wait <host> <username> <password>",
	Short: "Poll a remote command until it reports a state",
	Long: `Runs a probe command repeatedly until its output equals the desired state.

The probe is one of:
  --probe CMD        the trimmed output of CMD is the state
  --exit-code CMD    the exit status of CMD is the state (desired defaults to 0)
  --container NAME   the docker state of a container (desired defaults to running)
  --http URL         the HTTP status code curl gets from URL (desired defaults to 200)

Polling stops early when the state is one of --unexpected. It gives up when
--timeout elapses or when --retries failed checks were made (0 = unlimited).

Example:
  sshrun wait lab admin - --probe 'systemctl is-active nginx' --desired active --unexpected failed
  sshrun wait 10.0.0.1 deploy - --container app --timeout 2m --period 5s
  sshrun wait lab admin - --http http://localhost/healthz --retries 10`,
	Args: cobra.ExactArgs(3),
	RunE: runWait,
}

var (
	waitProbe        string
	waitExitCode     string
	waitContainer    string
	waitHTTP         string
	waitDesired      string
	waitUnexpected   []string
	waitTimeout      time.Duration
	waitPeriod       time.Duration
	waitRetries      int
	waitRaiseOnError bool
)

func init() {
	rootCmd.AddCommand(waitCmd)
	addConnectionFlags(waitCmd)

	waitCmd.Flags().StringVar(&waitProbe, "probe", "", "Command whose output is the state")
	waitCmd.Flags().StringVar(&waitExitCode, "exit-code", "", "Command whose exit status is the state")
	waitCmd.Flags().StringVar(&waitContainer, "container", "", "Docker container whose state is polled")
	waitCmd.Flags().StringVar(&waitHTTP, "http", "", "URL whose HTTP status code is polled")
	waitCmd.Flags().StringVarP(&waitDesired, "desired", "d", "", "State to wait for")
	waitCmd.Flags().StringSliceVarP(&waitUnexpected, "unexpected", "u", nil, "State that ends polling with a failure (repeatable)")
	waitCmd.Flags().DurationVar(&waitTimeout, "timeout", 0, "Overall time budget (default from config: 20m0s)")
	waitCmd.Flags().DurationVar(&waitPeriod, "period", 0, "Sleep between probes (default from config: 1m0s)")
	waitCmd.Flags().IntVar(&waitRetries, "retries", 0, "Maximum failed checks, 0 for unlimited (default from config)")
	waitCmd.Flags().BoolVar(&waitRaiseOnError, "raise-on-error", false, "Stop at the first probe error instead of retrying")
	waitCmd.MarkFlagsMutuallyExclusive("probe", "exit-code", "container", "http")
	waitCmd.MarkFlagsOneRequired("probe", "exit-code", "container", "http")
}

// waitProbeFromFlags returns the probe and the desired state implied by the flags.
func waitProbeFromFlags(exec ssh.Executor) (poll.Probe, string, error) {
	switch {
	case waitProbe != "":
		if waitDesired == "" {
			return nil, "", errors.New("--desired is required with --probe")
		}
		return poll.RemoteProbe(exec, waitProbe), waitDesired, nil
	case waitExitCode != "":
		return poll.ExitCodeProbe(exec, waitExitCode), desiredOr("0"), nil
	case waitContainer != "":
		return poll.RemoteProbe(exec, poll.ContainerStatusCommand(waitContainer)), desiredOr("running"), nil
	case waitHTTP != "":
		return poll.RemoteProbe(exec, poll.HTTPStatusCommand(waitHTTP)), desiredOr("200"), nil
	}
	return nil, "", errors.New("one of --probe, --exit-code, --container or --http is required")
}

func desiredOr(def string) string {
	if waitDesired != "" {
		return waitDesired
	}
	return def
}

// waitOptions merges the command flags over the configured poll defaults.
func waitOptions(cmd *cobra.Command) []poll.Option {
	timeout, period, retries := appConfig.Poll.Timeout, appConfig.Poll.Period, appConfig.Poll.Retries
	if cmd.Flags().Changed("timeout") {
		timeout = waitTimeout
	}
	if cmd.Flags().Changed("period") {
		period = waitPeriod
	}
	if cmd.Flags().Changed("retries") {
		retries = waitRetries
	}

	return []poll.Option{
		poll.WithUnexpected(waitUnexpected...),
		poll.WithTimeout(timeout),
		poll.WithRetrialPeriod(period),
		poll.WithRetrialCount(retries),
		poll.WithRaiseOnError(waitRaiseOnError),
		poll.WithLogger(logger),
	}
}

func runWait(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("retries") && waitRetries < 0 {
		return errors.New("--retries must not be negative")
	}
	if waitProbe != "" && waitDesired == "" {
		return errors.New("--desired is required with --probe")
	}

	client, err := ConnectToTarget(cmd, args)
	if err != nil {
		return err
	}
	defer client.Close()

	probe, desired, err := waitProbeFromFlags(client)
	if err != nil {
		return err
	}

	PrintInfo("Waiting for state %q", desired)
	result, err := poll.New(desired, waitOptions(cmd)...).Until(cmd.Context(), probe)
	if err != nil {
		PrintError("%s after %d attempts in %s (last state %q)",
			result.Outcome, result.Attempts, result.Elapsed.Round(time.Millisecond), result.State)
		return err
	}

	PrintSuccess("Reached %q after %d attempts in %s", result.State, result.Attempts, result.Elapsed.Round(time.Millisecond))
	return nil
}
