package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/roomchat/internal/app"
)

var tokenCmd = &cobra.Command{
	Use:   "token <userId>",
	Short: "Issue a signed credential for an existing user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		token, err := app.IssueToken(cmd.Context(), cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
