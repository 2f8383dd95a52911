package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"invoicechat/internal/config"
	"invoicechat/internal/logger"
)

var version = "1.0.0"

// appConfig is set by main; commands load it themselves when main could not.
var appConfig *config.Config

var rootCmd = &cobra.Command{
	Use:   "invoicechat",
	Short: "invoicechat - talk to the invoicing backend from your terminal",
	Long: `invoicechat is a command-line client for a conversational invoice generator.

Describe what you need in plain language, pick the matching products, and
turn the draft into an invoice. Follow-up messages such as "change the
recipient to John Smith" edit the invoice you just created. Every rendered
invoice highlights the fields that changed since the previous version.

When the backend cannot be reached the chat switches to offline mode and
works with sample data that is never saved.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appConfig != nil {
			return nil
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("invalid configuration, check your .env file: %w", err)
		}
		appConfig = cfg
		return nil
	},
}

// SetConfig hands the configuration loaded by main to the commands.
func SetConfig(cfg *config.Config) {
	appConfig = cfg
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
