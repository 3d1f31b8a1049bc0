package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyperengineering/fieldsync/internal/api"
	"github.com/hyperengineering/fieldsync/internal/config"
	"github.com/hyperengineering/fieldsync/internal/remote"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference remote service",
	Long:  "Serve the row API that devices push to and pull from, backed by memory or PostgreSQL.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

// newBackend builds the row service for the configured backend. The
// returned cleanup releases its resources.
func newBackend(ctx context.Context, sc config.ServerConfig) (remote.Service, func(), error) {
	switch sc.Backend {
	case config.BackendPostgres:
		pool, err := remote.NewPostgresPool(ctx, sc.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg := remote.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return pg, pool.Close, nil
	default:
		return remote.NewMemory(), func() {}, nil
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := cfg.RequireServer(); err != nil {
		return err
	}

	backend, cleanup, err := newBackend(ctx, cfg.Server)
	if err != nil {
		return err
	}
	defer cleanup()
	slog.Info("backend initialized", "backend", cfg.Server.Backend)

	handler := api.NewHandler(backend, cfg.Server.APIKey, Version, cfg.Server.Backend)
	router := api.NewRouter(handler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	go func() {
		slog.Info("server starting", "address", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
