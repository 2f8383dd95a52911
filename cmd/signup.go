package cmd

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"invoicechat/internal/logger"
)

var signupCmd = &cobra.Command{
	Use:     "signup",
	Short:   "Create an account and log in",
	Example: `  invoicechat signup --email anna@example.it --name "Anna Verdi"`,
	Args:    cobra.NoArgs,
	RunE:    runSignup,
}

func init() {
	rootCmd.AddCommand(signupCmd)

	signupCmd.Flags().String("email", "", "Account email")
	signupCmd.Flags().String("name", "", "Display name")
	signupCmd.Flags().String("password", "", "Password, at least 6 characters (prompted when omitted)")
}

func runSignup(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("signup")

	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")
	password, _ := cmd.Flags().GetString("password")

	in := bufio.NewReader(cmd.InOrStdin())
	email, err := promptLine(cmd, in, "Email: ", email)
	if err != nil {
		return err
	}
	password, err = promptSecret(cmd, in, "Password: ", password)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	a, err := newApp(ctx, log)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.auth.Signup(ctx, email, password, name); err != nil {
		return handleBackendError(err, log)
	}

	log.Info().Str("email", email).Msg("Account created")
	fmt.Fprintf(cmd.OutOrStdout(), "Account created, logged in as %s\n", email)
	return nil
}
