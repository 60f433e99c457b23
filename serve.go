package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adstack/adsync/internal/httpapi"
)

// serverShutdownTimeout bounds graceful shutdown after a signal.
const serverShutdownTimeout = 10 * time.Second

// newServeCmd builds `adsync serve`, which exposes sync triggering and
// run history over HTTP until interrupted.
func newServeCmd() *cobra.Command {
	var flagListen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sync trigger HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			addr := resolvedCfg.Server.ListenAddr
			if flagListen != "" {
				addr = flagListen
			}

			handler := httpapi.NewHandler(a.orch, a.store, a.logger)

			srv := &http.Server{
				Addr:              addr,
				Handler:           handler.Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)

			go func() {
				a.logger.Info("http api listening", slog.String("addr", addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}

			if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&flagListen, "listen", "", "listen address (overrides config)")

	return cmd
}
