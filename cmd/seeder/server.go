package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"catalog-platform/seeder/internal/bootstrap"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the seeder HTTP API server",
	Long: `Start the seeder HTTP server on the configured port (default :8081).

The server exposes bootstrap trigger and status endpoints, health and
readiness probes and read-only catalog endpoints. With
server.bootstrap_on_start it runs one bootstrap at startup. It shuts down
cleanly on SIGTERM or SIGINT.`,
	RunE: runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      app.router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("seeder server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if cfg.Server.BootstrapOnStart {
		go bootstrapOnStart(ctx)
	}

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped cleanly")
	return nil
}

func bootstrapOnStart(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Bootstrap.Timeout)
	defer cancel()

	result, err := app.bootstrapper.RunBootstrap(ctx)
	switch {
	case errors.Is(err, bootstrap.ErrBootstrapInProgress):
		return
	case err != nil:
		slog.ErrorContext(ctx, "startup bootstrap failed", "error", err)
	case result.Status != bootstrap.StatusOK:
		slog.WarnContext(ctx, "startup bootstrap completed with errors", "status", result.Status)
	}
}
