package main

import (
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hyperengineering/fieldsync/internal/schema"
	engsync "github.com/hyperengineering/fieldsync/internal/sync"
	"github.com/hyperengineering/fieldsync/internal/worker"
	"github.com/spf13/cobra"
)

var (
	pullFull   bool
	pullTables []string
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push pending local changes to the remote",
	Args:  cobra.NoArgs,
	RunE:  runPush,
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull server changes into the local store",
	Args:  cobra.NoArgs,
	RunE:  runPull,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push and pull once",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sync on an interval until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runLoop,
}

func init() {
	pullCmd.Flags().BoolVar(&pullFull, "full", false,
		"Forget checkpoints first and pull every row")
	pullCmd.Flags().StringSliceVar(&pullTables, "table", nil,
		"Restrict the pull to these tables (repeatable)")
}

func runPush(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	r, err := newRemote()
	if err != nil {
		return err
	}

	res, err := newPushWorker(s, r).Run(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}
	printPushResult(cmd.OutOrStdout(), res)
	return nil
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	r, err := newRemote()
	if err != nil {
		return err
	}

	if pullFull {
		tables := pullTables
		if len(tables) == 0 {
			for _, t := range schema.Pullable() {
				tables = append(tables, t.Name)
			}
		}
		for _, table := range tables {
			if err := s.ResetCheckpoint(ctx, table); err != nil {
				return err
			}
		}
	}

	res, err := newPullEngine(s, r, pullTables).Run(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}
	printPullResult(cmd.OutOrStdout(), res)
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	r, err := newRemote()
	if err != nil {
		return err
	}

	res, runErr := worker.NewSyncer(newPushWorker(s, r), newPullEngine(s, r, nil)).RunOnce(ctx)
	// A failed direction still leaves the other one's summary.
	if jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		return runErr
	}
	printPushResult(cmd.OutOrStdout(), res.Push)
	printPullResult(cmd.OutOrStdout(), res.Pull)
	if runErr != nil {
		return runErr
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sync completed in %s\n", res.Duration.Round(time.Millisecond))
	return nil
}

func runLoop(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	s, err := openStore()
	if err != nil {
		return err
	}
	r, err := newRemote()
	if err != nil {
		s.Close()
		return err
	}

	syncer := worker.NewSyncer(newPushWorker(s, r), newPullEngine(s, r, nil))
	coordinator := worker.NewSyncCoordinator(syncer, s, time.Duration(cfg.Sync.Interval), cfg.Sync.MaxRetries)

	var wg sync.WaitGroup
	startWorker(ctx, &wg, "sync-coordinator", coordinator.Run)

	<-ctx.Done()
	slog.Info("shutdown initiated")
	wg.Wait()

	if err := s.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}
	slog.Info("shutdown complete")
	return nil
}

func printPushResult(w io.Writer, res *engsync.PushResult) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "Push: %d processed, %d synced, %d failed\n", res.Processed, res.Succeeded, res.Failed)
	for _, e := range res.Entries {
		if e.Status == engsync.PushFailed {
			fmt.Fprintf(w, "  %s %s %s: %s\n", e.Operation, e.TableName, e.LocalID, e.Error)
		}
	}
}

func printPullResult(w io.Writer, res *engsync.PullResult) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "Pull: %d fetched, %d inserted, %d updated, %d deleted, %d skipped\n",
		res.Fetched, res.Inserted, res.Updated, res.Deleted, res.Skipped)
	for _, t := range res.Tables {
		if t.Error != "" {
			fmt.Fprintf(w, "  %s: %s\n", t.TableName, t.Error)
		}
	}
}
