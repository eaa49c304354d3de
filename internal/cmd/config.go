package cmd

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yoanbernabeu/sshrun/internal/config"
	"github.com/yoanbernabeu/sshrun/internal/security"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file and named servers",
	Long: `Commands to locate, show and initialize the configuration file, and to
manage named servers that can be used in place of a HOST argument.`,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the defaults",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage named servers",
}

var serverAddCmd = &cobra.Command{
	Use:   "add <name> <user@host>",
	Short: "Add a named server",
	Long: `Adds a named server to the configuration.

Example:
  sshrun config server add core-switch netops@192.168.1.10
  sshrun config server add lab admin@lab.example.com --port 2222 --key ~/.ssh/lab`,
	Args: cobra.ExactArgs(2),
	RunE: runServerAdd,
}

var serverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List named servers",
	Args:  cobra.NoArgs,
	RunE:  runServerList,
}

var serverRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a named server",
	Args:  cobra.ExactArgs(1),
	RunE:  runServerRemove,
}

var (
	initForce     bool
	serverPort    int
	serverKeyPath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(serverCmd)
	serverCmd.AddCommand(serverAddCmd)
	serverCmd.AddCommand(serverListCmd)
	serverCmd.AddCommand(serverRemoveCmd)

	configInitCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")
	serverAddCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "SSH port (default from config: 22)")
	serverAddCmd.Flags().StringVarP(&serverKeyPath, "key", "k", "", "SSH private key path")
}

// configPath returns --config or the default location.
func configPath() (string, error) {
	if path := GetConfigFile(); path != "" {
		return path, nil
	}
	return config.Path()
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout(), path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(appConfig)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	fmt.Fprint(stdout(), string(data))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return errors.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.Save(config.Default(), path); err != nil {
		return err
	}
	PrintSuccess("Wrote %s", path)
	return nil
}

func runServerAdd(cmd *cobra.Command, args []string) error {
	name := args[0]
	hostSpec := args[1]

	// Validate server name
	if err := security.ValidateServerName(name); err != nil {
		return errors.Wrap(err, "invalid server name")
	}

	// Parse user@host
	parts := strings.SplitN(hostSpec, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return errors.New("invalid host format, use user@host")
	}
	user, host := parts[0], parts[1]

	port := serverPort
	if h, p, err := net.SplitHostPort(host); err == nil {
		host = h
		if port == 0 {
			if port, err = strconv.Atoi(p); err != nil {
				return errors.Errorf("invalid port %q", p)
			}
		}
	}

	path, err := configPath()
	if err != nil {
		return err
	}

	serverCfg := config.ServerConfig{
		Host:    host,
		User:    user,
		Port:    port,
		KeyPath: serverKeyPath,
	}
	if err := appConfig.AddServer(name, serverCfg); err != nil {
		return err
	}

	if err := config.Save(appConfig, path); err != nil {
		return errors.Wrap(err, "failed to save config")
	}

	PrintSuccess("Added server '%s' (%s@%s)", name, user, host)
	return nil
}

func runServerList(cmd *cobra.Command, args []string) error {
	servers := appConfig.ListServers()
	w := stdout()
	if len(servers) == 0 {
		PrintInfo("No servers configured")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Add a server with:")
		fmt.Fprintln(w, "  sshrun config server add <name> <user@host>")
		return nil
	}

	fmt.Fprintln(w, "Configured servers:")
	fmt.Fprintln(w)
	for _, name := range servers {
		server := appConfig.Servers[name]
		fmt.Fprintf(w, "  %s\n", name)
		fmt.Fprintf(w, "    Host: %s@%s\n", server.User, server.Address())
		if server.KeyPath != "" {
			fmt.Fprintf(w, "    Key:  %s\n", server.KeyPath)
		}
		fmt.Fprintln(w)
	}

	return nil
}

func runServerRemove(cmd *cobra.Command, args []string) error {
	name := args[0]

	// Validate server name
	if err := security.ValidateServerName(name); err != nil {
		return errors.Wrap(err, "invalid server name")
	}

	path, err := configPath()
	if err != nil {
		return err
	}

	if err := appConfig.RemoveServer(name); err != nil {
		return err
	}

	if err := config.Save(appConfig, path); err != nil {
		return errors.Wrap(err, "failed to save config")
	}

	PrintSuccess("Removed server '%s'", name)
	return nil
}
