package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "roomchat",
	Short: "Roomchat server and operator tools",
	Long: `Roomchat is a real-time chat backend.

Available commands:
  serve     Run the HTTP and websocket server
  sweep     Purge stale online-user rows once
  token     Issue a development credential for a user

Use "roomchat [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.New()
	},
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig is shared by the subcommands that need the full environment.
func loadConfig() (*config.Config, error) {
	return config.New()
}
