// Package commands implements the gosshctl CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Global flags shared by every subcommand via rootCmd's persistent flag set.
var (
	// configPath is a YAML config file loaded before flag overrides are
	// applied (empty means "flags and environment only").
	configPath string
	// logLevel overrides config.LogConfig.Level when set on the CLI.
	logLevel string
)

// rootCmd is the top-level cobra command for gosshctl.
var rootCmd = &cobra.Command{
	Use:   "gosshctl",
	Short: "Demo CLI for the gossh client-side SSH transport library",
	Long: "gosshctl exercises the internal sshclient/kex/userauth/knownhosts\n" +
		"packages directly: connecting to a server, negotiating algorithms,\n" +
		"authenticating, and inspecting the known-hosts trust store.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to a gosshctl YAML config file (optional; flags always override it)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level override: debug, info, warn, error")

	rootCmd.AddCommand(connectCmd())
	rootCmd.AddCommand(knownHostsCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
