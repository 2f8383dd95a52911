package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"invoicechat/internal/backend"
	"invoicechat/internal/logger"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage your chat sessions on the backend",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chat sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsMessagesCmd = &cobra.Command{
	Use:   "messages [session-id]",
	Short: "Show the messages of a session (default: the current one)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessionsMessages,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var sessionsRenameCmd = &cobra.Command{
	Use:     "rename <session-id> <title>",
	Short:   "Rename a session",
	Example: `  invoicechat sessions rename 12 "Preventivo Rossi"`,
	Args:    cobra.MinimumNArgs(2),
	RunE:    runSessionsRename,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsMessagesCmd, sessionsDeleteCmd, sessionsRenameCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("sessions")
	ctx, cancel := signalContext(log)
	defer cancel()

	a, err := newApp(ctx, log)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.requireLogin(); err != nil {
		return err
	}

	sessions, err := a.client.ListSessions(ctx)
	if err != nil {
		return handleBackendError(err, log)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions yet.")
		return nil
	}

	current := a.auth.SessionID()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tTITLE\tUPDATED")
	for _, s := range sessions {
		marker := ""
		if s.ID == current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", marker, s.ID, s.Title, s.UpdatedAt)
	}
	return w.Flush()
}

func runSessionsMessages(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("sessions")
	ctx, cancel := signalContext(log)
	defer cancel()

	a, err := newApp(ctx, log)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.requireLogin(); err != nil {
		return err
	}

	id := a.auth.SessionID()
	if len(args) == 1 {
		id = backend.Ref(args[0])
	}
	if id == "" {
		return fmt.Errorf("no current session, pass a session id")
	}

	messages, err := a.client.SessionMessages(ctx, id)
	if err != nil {
		return handleBackendError(err, log)
	}
	for _, m := range messages {
		fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", m.Role, m.Content)
	}
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("sessions")
	ctx, cancel := signalContext(log)
	defer cancel()

	a, err := newApp(ctx, log)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.requireLogin(); err != nil {
		return err
	}

	id := backend.Ref(args[0])
	if err := a.client.DeleteSession(ctx, id); err != nil {
		return handleBackendError(err, log)
	}
	if a.auth.SessionID() == id {
		if err := a.auth.SetSessionID(""); err != nil {
			log.Warn().Err(err).Msg("Failed to forget deleted session")
		}
	}

	log.Info().Str("session_id", id.String()).Msg("Session deleted")
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", id)
	return nil
}

func runSessionsRename(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("sessions")
	ctx, cancel := signalContext(log)
	defer cancel()

	a, err := newApp(ctx, log)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.requireLogin(); err != nil {
		return err
	}

	session, err := a.client.UpdateSessionTitle(ctx, backend.Ref(args[0]), strings.Join(args[1:], " "))
	if err != nil {
		return handleBackendError(err, log)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session %s renamed to %q\n", session.ID, session.Title)
	return nil
}
