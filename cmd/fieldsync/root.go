package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/hyperengineering/fieldsync/internal/config"
	"github.com/hyperengineering/fieldsync/internal/remote"
	"github.com/hyperengineering/fieldsync/internal/store"
	"github.com/hyperengineering/fieldsync/internal/worker"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var (
	cfg        *config.Config
	jsonOutput bool
	logCloser  io.Closer
)

var rootCmd = &cobra.Command{
	Use:          "fieldsync",
	Short:        "fieldsync - offline-first sync for field scans",
	Long:         "Capture plant scans and diagnoses offline, then push them to and pull server changes from the remote service.",
	SilenceUsage: true,
	Version:      Version,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded

		logger, closer, err := newLogger(cfg.Log, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		logCloser = closer
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			err := logCloser.Close()
			logCloser = nil
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")

	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(outboxCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(diagnosisCmd)
	rootCmd.AddCommand(notificationCmd)
	rootCmd.AddCommand(tipCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(serveCmd)
}

// openStore opens the device's local store.
func openStore() (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	slog.Debug("store initialized", "path", cfg.Database.Path, "device_id", s.DeviceID())
	return s, nil
}

// newRemote builds the remote service client from config.
func newRemote() (*remote.HTTPClient, error) {
	if err := cfg.RequireRemote(); err != nil {
		return nil, err
	}
	return remote.NewHTTPClient(cfg.Remote.URL, cfg.Remote.APIKey, time.Duration(cfg.Remote.Timeout)), nil
}

func newPushWorker(s *store.SQLiteStore, r remote.Service) *worker.PushWorker {
	return worker.NewPushWorker(s, r, worker.PushOptions{
		Limit:       cfg.Sync.PushLimit,
		MaxRetries:  cfg.Sync.MaxRetries,
		CallTimeout: time.Duration(cfg.Remote.Timeout),
	})
}

func newPullEngine(s *store.SQLiteStore, r remote.Service, tables []string) *worker.PullEngine {
	return worker.NewPullEngine(s, r, worker.PullOptions{
		Limit:       cfg.Sync.PullLimit,
		UserID:      cfg.Sync.UserID,
		CallTimeout: time.Duration(cfg.Remote.Timeout),
		Tables:      tables,
	})
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}
