package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"invoicechat/internal/logger"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the invoicing backend",
	Long: `Sign in with your email and password. The token pair is saved to
SESSION_FILE and refreshed automatically while invoicechat runs.

Missing values are asked for interactively; the password is never echoed.`,
	Example: `  invoicechat login --email anna@example.it
  echo "$PASSWORD" | invoicechat login --email anna@example.it`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().String("email", "", "Account email")
	loginCmd.Flags().String("password", "", "Account password (prompted when omitted)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("login")

	email, _ := cmd.Flags().GetString("email")
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

	if err := a.auth.Login(ctx, email, password); err != nil {
		return handleBackendError(err, log)
	}

	log.Info().Str("email", email).Msg("Logged in")
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", email)
	return nil
}

// promptLine returns value, or reads a line from in when value is empty.
func promptLine(cmd *cobra.Command, in *bufio.Reader, label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

// promptSecret is promptLine without echo when stdin is a terminal.
func promptSecret(cmd *cobra.Command, in *bufio.Reader, label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return promptLine(cmd, in, label, "")
	}

	fmt.Fprint(cmd.ErrOrStderr(), label)
	secret, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(secret), nil
}
