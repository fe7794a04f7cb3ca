package commands

import (
	"fmt"

	"github.com/marmos91/coordcore/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Write a commented starter configuration file for a coordination core node.

By default the file is written to the default location
($XDG_CONFIG_HOME/coordcore/config.yaml). Pass --config to write it
somewhere else instead.

Examples:
  # Write the default config
  coordctl init

  # Overwrite an existing config
  coordctl init --force

  # Write to a specific path
  coordctl --config ./dev.yaml init`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file")
}

func runInit(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		if err := config.InitConfigToPath(configFile, initForce); err != nil {
			return err
		}
		fmt.Printf("wrote configuration to %s\n", configFile)
		return nil
	}

	path, err := config.InitConfig(initForce)
	if err != nil {
		return err
	}
	fmt.Printf("wrote configuration to %s\n", path)
	return nil
}
