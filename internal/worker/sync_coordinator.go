package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/fieldsync/internal/metrics"
	engsync "github.com/hyperengineering/fieldsync/internal/sync"
)

// StatsStore reports outbox backlog for the coordinator's gauges.
type StatsStore interface {
	OutboxStats(ctx context.Context, maxRetries int) (*engsync.OutboxStats, error)
}

// SyncRunner runs one sync cycle.
type SyncRunner interface {
	RunOnce(ctx context.Context) (*SyncResult, error)
}

// SyncCoordinator drives SyncRunner on a fixed interval. Runs are
// sequential; a tick arriving mid-run is dropped by the ticker.
type SyncCoordinator struct {
	runner     SyncRunner
	stats      StatsStore
	interval   time.Duration
	maxRetries int
}

// NewSyncCoordinator creates a coordinator. stats may be nil.
func NewSyncCoordinator(runner SyncRunner, stats StatsStore, interval time.Duration, maxRetries int) *SyncCoordinator {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &SyncCoordinator{
		runner:     runner,
		stats:      stats,
		interval:   interval,
		maxRetries: maxRetries,
	}
}

// Run starts the loop. It syncs immediately, then on every tick, and blocks
// until ctx is cancelled.
func (c *SyncCoordinator) Run(ctx context.Context) {
	slog.Info("sync coordinator started",
		"component", "worker",
		"worker", "sync-coordinator",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync coordinator stopped",
				"component", "worker",
				"worker", "sync-coordinator",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.cycle(ctx)
		}
	}
}

func (c *SyncCoordinator) cycle(ctx context.Context) {
	if _, err := c.runner.RunOnce(ctx); err != nil {
		if ctx.Err() != nil {
			return // Graceful shutdown
		}
		slog.Error("sync cycle failed",
			"component", "worker",
			"worker", "sync-coordinator",
			"error", err,
		)
	}
	c.recordStats(ctx)
}

func (c *SyncCoordinator) recordStats(ctx context.Context) {
	if c.stats == nil {
		return
	}
	stats, err := c.stats.OutboxStats(ctx, c.maxRetries)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("failed to read outbox stats",
				"component", "worker",
				"worker", "sync-coordinator",
				"error", err,
			)
		}
		return
	}
	metrics.OutboxBacklog.Set(float64(stats.Pending))
	metrics.OutboxQuarantined.Set(float64(stats.Quarantined))
	if stats.Quarantined > 0 {
		slog.Warn("outbox has quarantined entries",
			"component", "worker",
			"worker", "sync-coordinator",
			"quarantined", stats.Quarantined,
		)
	}
}
