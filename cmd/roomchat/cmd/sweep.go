package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/roomchat/internal/app"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Purge online-user rows idle longer than PRESENCE_STALE_AFTER",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		n, err := app.Sweep(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale online user rows\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
