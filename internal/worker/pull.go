package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/fieldsync/internal/metrics"
	"github.com/hyperengineering/fieldsync/internal/remote"
	"github.com/hyperengineering/fieldsync/internal/schema"
	engsync "github.com/hyperengineering/fieldsync/internal/sync"
	"github.com/hyperengineering/fieldsync/internal/types"
)

// DefaultPullLimit bounds one table's batch.
const DefaultPullLimit = 100

// PullStore defines the store operations needed by the pull engine.
type PullStore interface {
	GetCheckpoint(ctx context.Context, table string) (*time.Time, error)
	AdvanceCheckpoint(ctx context.Context, table string, t time.Time) (bool, error)
	MergeRemote(ctx context.Context, table schema.Table, incoming types.Record) (engsync.MergeOutcome, error)
}

// PullOptions tunes one pull run. Zero values take the defaults.
type PullOptions struct {
	Limit int

	// UserID scopes owner-scoped tables to one user's rows. Empty pulls
	// every row.
	UserID string

	CallTimeout time.Duration

	// Tables restricts the run to the named tables. Empty means every
	// pullable table.
	Tables []string
}

func (o PullOptions) withDefaults() PullOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultPullLimit
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultTimeout
	}
	return o
}

// PullEngine fetches server changes per table and merges them locally.
type PullEngine struct {
	store  PullStore
	remote remote.Service
	opts   PullOptions
}

// NewPullEngine creates a pull engine.
func NewPullEngine(s PullStore, r remote.Service, opts PullOptions) *PullEngine {
	return &PullEngine{
		store:  s,
		remote: r,
		opts:   opts.withDefaults(),
	}
}

func (e *PullEngine) tables() ([]schema.Table, error) {
	if len(e.opts.Tables) == 0 {
		return schema.Pullable(), nil
	}
	var out []schema.Table
	for _, name := range e.opts.Tables {
		t, ok := schema.Lookup(name)
		if !ok || !t.Pull {
			return nil, fmt.Errorf("%w: %q is not pullable", ErrUnsupportedTable, name)
		}
		out = append(out, t)
	}
	return out, nil
}

// Run pulls every configured table in order. A failing table is reported
// in its own result and the run moves on to the next.
func (e *PullEngine) Run(ctx context.Context) (*engsync.PullResult, error) {
	start := time.Now()
	tables, err := e.tables()
	if err != nil {
		return nil, err
	}

	result := &engsync.PullResult{Tables: []engsync.TablePullResult{}}
	for _, table := range tables {
		if ctx.Err() != nil {
			break
		}
		result.Add(e.PullTable(ctx, table))
	}

	result.Duration = time.Since(start)
	metrics.RunDuration.WithLabelValues("pull").Observe(result.Duration.Seconds())

	slog.Info("pull run completed",
		"component", "worker",
		"worker", "pull",
		"tables", len(result.Tables),
		"fetched", result.Fetched,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"deleted", result.Deleted,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// PullTable fetches and merges one batch for table.
func (e *PullEngine) PullTable(ctx context.Context, table schema.Table) engsync.TablePullResult {
	res := engsync.TablePullResult{TableName: table.Name}

	checkpoint, err := e.store.GetCheckpoint(ctx, table.Name)
	if err != nil {
		return e.fail(res, fmt.Errorf("read checkpoint: %w", err))
	}
	res.Checkpoint = checkpoint

	query := remote.Query{UpdatedAfter: checkpoint, Limit: e.opts.Limit}
	if owner := table.OwnerRemote(); owner != "" && e.opts.UserID != "" {
		query.Filters = append(query.Filters, remote.Filter{Column: owner, Value: e.opts.UserID})
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	rows, err := e.remote.Select(callCtx, table.Name, query)
	cancel()
	if err != nil {
		return e.fail(res, fmt.Errorf("fetch: %w", err))
	}
	res.Fetched = len(rows)

	// merged holds updated_at of every record merged, in batch order.
	var merged []time.Time
	for _, row := range rows {
		rec, err := table.FromRemote(row)
		if err != nil {
			slog.Warn("skipping malformed remote row",
				"component", "worker",
				"worker", "pull",
				"table", table.Name,
				"error", err,
			)
			res.Skipped++
			continue
		}

		outcome, err := e.store.MergeRemote(ctx, table, rec)
		if err != nil {
			res.Error = fmt.Sprintf("merge %s: %v", rec.String(types.ColLocalID), err)
			break
		}
		res.Record(outcome)
		metrics.PullRecords.WithLabelValues(table.Name, string(outcome)).Inc()
		merged = append(merged, rec.Time(types.ColUpdatedAt))
	}

	target, ok := checkpointTarget(merged, res.Error == "" && len(rows) == e.opts.Limit)
	if ok {
		advanced, err := e.store.AdvanceCheckpoint(ctx, table.Name, target)
		if err != nil {
			res.Error = joinError(res.Error, fmt.Sprintf("advance checkpoint: %v", err))
		} else if advanced {
			res.Advanced = true
			res.Checkpoint = &target
			metrics.CheckpointTimestamp.WithLabelValues(table.Name).Set(float64(target.Unix()))
		}
	}

	if res.Error != "" {
		metrics.PullErrors.WithLabelValues(table.Name).Inc()
		slog.Warn("pull table failed",
			"component", "worker",
			"worker", "pull",
			"table", table.Name,
			"error", res.Error,
		)
	}
	return res
}

func (e *PullEngine) fail(res engsync.TablePullResult, err error) engsync.TablePullResult {
	res.Error = err.Error()
	metrics.PullErrors.WithLabelValues(res.TableName).Inc()
	slog.Warn("pull table failed",
		"component", "worker",
		"worker", "pull",
		"table", res.TableName,
		"error", err,
	)
	return res
}

// checkpointTarget picks the checkpoint for a merged batch: the maximum
// updated_at. When the batch was cut by the limit, rows sharing the last
// timestamp may remain on the server, so the target backs off to the
// greatest timestamp strictly below it; a batch with a single timestamp
// still advances to avoid stalling.
//
// This departs from advancing to exactly the batch maximum: a full batch
// checkpoints below its max, so the next pull fetches the max-timestamp
// rows again. On a table that fills every batch this costs throughput,
// up to half of each batch in the worst case.
func checkpointTarget(merged []time.Time, full bool) (time.Time, bool) {
	if len(merged) == 0 {
		return time.Time{}, false
	}
	var max time.Time
	for _, t := range merged {
		if t.After(max) {
			max = t
		}
	}
	if !full {
		return max, true
	}
	var below time.Time
	for _, t := range merged {
		if t.Before(max) && t.After(below) {
			below = t
		}
	}
	if below.IsZero() {
		return max, true
	}
	return below, true
}

func joinError(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
