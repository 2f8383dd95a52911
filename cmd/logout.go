package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"invoicechat/internal/auth"
	"invoicechat/internal/logger"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved login and chat session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.WithComponent("logout")

		authCtx := auth.New(auth.NewTokenStore(appConfig.SessionFile), nil)
		if err := authCtx.Logout(); err != nil {
			log.Error().Err(err).Msg("Failed to clear session")
			return fmt.Errorf("failed to clear session: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
