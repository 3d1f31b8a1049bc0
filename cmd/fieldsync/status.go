package main

import (
	"fmt"

	"github.com/hyperengineering/fieldsync/internal/schema"
	engsync "github.com/hyperengineering/fieldsync/internal/sync"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show device id, outbox backlog and pull checkpoints",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.OutboxStats(ctx, cfg.Sync.MaxRetries)
	if err != nil {
		return fmt.Errorf("outbox stats: %w", err)
	}
	stored, err := s.ListCheckpoints(ctx)
	if err != nil {
		return fmt.Errorf("list checkpoints: %w", err)
	}
	checkpoints := pullCheckpoints(stored)

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"device_id":   s.DeviceID(),
			"database":    cfg.Database.Path,
			"outbox":      stats,
			"checkpoints": checkpoints,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Device:      %s\n", s.DeviceID())
	fmt.Fprintf(out, "Database:    %s\n", cfg.Database.Path)
	fmt.Fprintf(out, "Pending:     %d\n", stats.Pending)
	fmt.Fprintf(out, "Failing:     %d\n", stats.Failing)
	fmt.Fprintf(out, "Quarantined: %d\n", stats.Quarantined)
	fmt.Fprintln(out)

	w := newTabWriter(out)
	fmt.Fprintln(w, "TABLE\tLAST PULL")
	for _, c := range checkpoints {
		fmt.Fprintf(w, "%s\t%s\n", c.TableName, formatTime(c.LastPullAt))
	}
	return w.Flush()
}

// pullCheckpoints lists one checkpoint per pullable table. Tables never
// pulled have a nil LastPullAt.
func pullCheckpoints(stored []engsync.Checkpoint) []engsync.Checkpoint {
	byTable := make(map[string]engsync.Checkpoint, len(stored))
	for _, c := range stored {
		byTable[c.TableName] = c
	}
	var out []engsync.Checkpoint
	for _, t := range schema.Pullable() {
		c, ok := byTable[t.Name]
		if !ok {
			c = engsync.Checkpoint{TableName: t.Name}
		}
		out = append(out, c)
	}
	return out
}
