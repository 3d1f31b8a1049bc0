package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	outboxLimit int
	resetTable  string
	resetID     string
	purgeForce  bool
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and repair the sync outbox",
}

var outboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List outbox entries, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runOutboxList,
}

var outboxResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear retry counts so failed entries are pushed again",
	Long:  "Clear the retry count of one record's entries (--table and --id) or of every failed entry. Quarantined entries become eligible for push again.",
	Args:  cobra.NoArgs,
	RunE:  runOutboxReset,
}

var outboxPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Discard quarantined entries",
	Long:  "Permanently discard entries that exhausted their retries. The local records keep their pending status. Requires --force.",
	Args:  cobra.NoArgs,
	RunE:  runOutboxPurge,
}

func init() {
	outboxListCmd.Flags().IntVar(&outboxLimit, "limit", 100,
		"Maximum entries to list")
	outboxResetCmd.Flags().StringVar(&resetTable, "table", "",
		"Table of the record to reset")
	outboxResetCmd.Flags().StringVar(&resetID, "id", "",
		"Local id of the record to reset")
	outboxPurgeCmd.Flags().BoolVar(&purgeForce, "force", false,
		"Confirm the purge")

	outboxCmd.AddCommand(outboxListCmd)
	outboxCmd.AddCommand(outboxResetCmd)
	outboxCmd.AddCommand(outboxPurgeCmd)
}

func runOutboxList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.ListOutbox(ctx, outboxLimit)
	if err != nil {
		return fmt.Errorf("list outbox: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"entries": entries,
			"total":   len(entries),
		})
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Outbox is empty.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tTABLE\tLOCAL ID\tOP\tRETRIES\tLAST ERROR")
	for _, e := range entries {
		lastErr := "-"
		if e.LastError != nil {
			lastErr = *e.LastError
		}
		state := fmt.Sprintf("%d", e.RetryCount)
		if e.RetryCount >= cfg.Sync.MaxRetries {
			state += " (quarantined)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.TableName, e.LocalID, e.Operation, state, lastErr)
	}
	return w.Flush()
}

func runOutboxReset(cmd *cobra.Command, args []string) error {
	if (resetTable == "") != (resetID == "") {
		return errors.New("--table and --id must be given together")
	}
	ctx := cmd.Context()

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var n int64
	if resetTable != "" {
		n, err = s.ResetFailed(ctx, resetTable, resetID)
	} else {
		n, err = s.ResetAllFailed(ctx)
	}
	if err != nil {
		return fmt.Errorf("reset outbox: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{"reset": n})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reset %d outbox entries.\n", n)
	return nil
}

func runOutboxPurge(cmd *cobra.Command, args []string) error {
	if !purgeForce {
		return errors.New("purge discards unsynced changes; rerun with --force")
	}
	ctx := cmd.Context()

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.PurgeQuarantined(ctx, cfg.Sync.MaxRetries)
	if err != nil {
		return fmt.Errorf("purge outbox: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{"purged": n})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Purged %d quarantined entries.\n", n)
	return nil
}
