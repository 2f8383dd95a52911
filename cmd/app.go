package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"invoicechat/internal/auth"
	"invoicechat/internal/backend"
	"invoicechat/internal/config"
)

// app bundles what commands talking to the backend need.
type app struct {
	cfg    *config.Config
	auth   *auth.Context
	client *backend.Client
}

// newApp wires the backend client to the persisted login and starts the
// token refresh timer. Call close when done.
func newApp(ctx context.Context, log zerolog.Logger) (*app, error) {
	cfg := appConfig

	authCtx := auth.New(auth.NewTokenStore(cfg.SessionFile), nil)
	client := backend.NewClient(cfg.BackendURL, backend.WithTokenSource(authCtx))
	authCtx.SetAPI(client)

	if err := authCtx.Init(ctx); err != nil {
		log.Error().
			Err(err).
			Str("session_file", cfg.SessionFile).
			Msg("Failed to load saved session")
		return nil, fmt.Errorf("failed to load saved session from %s: %w", cfg.SessionFile, err)
	}

	log.Debug().
		Str("backend", cfg.BackendURL).
		Bool("authenticated", authCtx.IsAuthenticated()).
		Msg("Backend client ready")

	return &app{cfg: cfg, auth: authCtx, client: client}, nil
}

func (a *app) close() {
	a.auth.Teardown()
}

// requireLogin fails early for commands that cannot work anonymously.
func (a *app) requireLogin() error {
	if !a.auth.IsAuthenticated() {
		return auth.ErrNotLoggedIn
	}
	return nil
}

// signalContext is canceled on SIGINT or SIGTERM. Backend calls have no
// client-side timeout; interrupting is the way to give up on one.
func signalContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// handleBackendError turns backend failures into messages for the terminal.
func handleBackendError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Backend request failed")

	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("request was canceled")
	case errors.Is(err, auth.ErrNotLoggedIn):
		return err
	case backend.IsUnauthorized(err):
		return fmt.Errorf("%s Run `invoicechat login`", backend.DisplayMessage(err))
	case backend.IsUnavailable(err):
		return fmt.Errorf("%s Check BACKEND_URL (%s)", backend.DisplayMessage(err), appConfig.BackendURL)
	case errors.Is(err, backend.ErrValidation), errors.Is(err, backend.ErrAPI):
		return errors.New(backend.DisplayMessage(err))
	default:
		return fmt.Errorf("request failed: %w", err)
	}
}

// writeOutput writes data to path, or to the command's stdout when path is empty.
func writeOutput(cmd *cobra.Command, path string, data []byte, log zerolog.Logger) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", path).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}
	log.Info().
		Str("output_file", path).
		Int("bytes", len(data)).
		Msg("Output written")
	return nil
}
