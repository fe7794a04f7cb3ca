// Package commands implements the coordctl command-line tool: local
// administration of a coordination core deployment (config scaffolding,
// backend inspection) without requiring a client-facing RPC surface.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// configFile holds the --config persistent flag value shared by subcommands
// that need to load a coordination core configuration file.
var configFile string

var rootCmd = &cobra.Command{
	Use:   "coordctl",
	Short: "Coordination core administration CLI",
	Long: `coordctl scaffolds and inspects a coordination core node's configuration
and storage backend directly, without talking to a running daemon.

Use "coordctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default: $XDG_CONFIG_HOME/coordcore/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
}
