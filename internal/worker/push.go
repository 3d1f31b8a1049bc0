package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/fieldsync/internal/metrics"
	"github.com/hyperengineering/fieldsync/internal/remote"
	"github.com/hyperengineering/fieldsync/internal/schema"
	"github.com/hyperengineering/fieldsync/internal/store"
	engsync "github.com/hyperengineering/fieldsync/internal/sync"
	"github.com/hyperengineering/fieldsync/internal/types"
)

// Terminal local errors recorded on outbox entries.
var (
	ErrRecordNotFound       = errors.New("local record not found")
	ErrUnsupportedTable     = errors.New("unsupported table")
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// Push defaults.
const (
	DefaultPushLimit  = 50
	DefaultMaxRetries = 5
	DefaultTimeout    = 30 * time.Second
)

// PushStore defines the store operations needed by the push worker.
type PushStore interface {
	GetPending(ctx context.Context, limit, maxRetries int) ([]engsync.OutboxEntry, error)
	GetRecord(ctx context.Context, table, localID string) (types.Record, error)
	MarkSynced(ctx context.Context, entry engsync.OutboxEntry, serverID string) error
	MarkFailed(ctx context.Context, entry engsync.OutboxEntry, cause error) error
}

// PushOptions tunes one push run. Zero values take the defaults.
type PushOptions struct {
	Limit       int
	MaxRetries  int
	CallTimeout time.Duration
}

func (o PushOptions) withDefaults() PushOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultPushLimit
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultTimeout
	}
	return o
}

// PushWorker drains the outbox to the remote service.
type PushWorker struct {
	store  PushStore
	remote remote.Service
	opts   PushOptions
}

// NewPushWorker creates a push worker.
func NewPushWorker(s PushStore, r remote.Service, opts PushOptions) *PushWorker {
	return &PushWorker{
		store:  s,
		remote: r,
		opts:   opts.withDefaults(),
	}
}

// Run pushes one bounded batch of pending entries, oldest first, one at a
// time. A failing entry is marked failed and the run continues. The only
// returned error is failing to read the outbox.
func (w *PushWorker) Run(ctx context.Context) (*engsync.PushResult, error) {
	start := time.Now()
	result := &engsync.PushResult{Entries: []engsync.PushEntryResult{}}

	entries, err := w.store.GetPending(ctx, w.opts.Limit, w.opts.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("read outbox: %w", err)
	}

	for _, entry := range entries {
		res := w.pushEntry(ctx, entry)
		result.Processed++
		if res.Status == engsync.PushSynced {
			result.Succeeded++
		} else {
			result.Failed++
		}
		result.Entries = append(result.Entries, res)
		metrics.PushEntries.WithLabelValues(entry.TableName, string(entry.Operation), string(res.Status)).Inc()
	}

	result.Duration = time.Since(start)
	metrics.RunDuration.WithLabelValues("push").Observe(result.Duration.Seconds())

	if result.Processed > 0 {
		slog.Info("push run completed",
			"component", "worker",
			"worker", "push",
			"processed", result.Processed,
			"succeeded", result.Succeeded,
			"failed", result.Failed,
			"duration_ms", result.Duration.Milliseconds(),
		)
	}
	return result, nil
}

func (w *PushWorker) pushEntry(ctx context.Context, entry engsync.OutboxEntry) engsync.PushEntryResult {
	res := engsync.PushEntryResult{
		EntryID:   entry.ID,
		TableName: entry.TableName,
		LocalID:   entry.LocalID,
		Operation: entry.Operation,
	}

	serverID, err := w.send(ctx, entry)
	if err == nil {
		err = w.store.MarkSynced(ctx, entry, serverID)
		if err == nil {
			res.Status = engsync.PushSynced
			res.ServerID = serverID
			return res
		}
		slog.Error("failed to mark entry synced",
			"component", "worker",
			"worker", "push",
			"entry_id", entry.ID,
			"error", err,
		)
		res.Status = engsync.PushFailed
		res.Error = err.Error()
		return res
	}

	res.Status = engsync.PushFailed
	res.Error = err.Error()
	slog.Warn("push entry failed",
		"component", "worker",
		"worker", "push",
		"entry_id", entry.ID,
		"table", entry.TableName,
		"local_id", entry.LocalID,
		"operation", entry.Operation,
		"retry_count", entry.RetryCount+1,
		"error", err,
	)
	if markErr := w.store.MarkFailed(ctx, entry, err); markErr != nil {
		slog.Error("failed to mark entry failed",
			"component", "worker",
			"worker", "push",
			"entry_id", entry.ID,
			"error", markErr,
		)
	}
	return res
}

// send performs the remote call for one entry and returns the server id
// when the remote assigns one.
func (w *PushWorker) send(ctx context.Context, entry engsync.OutboxEntry) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("push %s %s: panic: %v", entry.TableName, entry.LocalID, r)
		}
	}()

	table, ok := schema.Lookup(entry.TableName)
	if !ok || !table.Push {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedTable, entry.TableName)
	}

	switch entry.Operation {
	case types.OperationInsert, types.OperationUpdate, types.OperationDelete:
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedOperation, entry.Operation)
	}

	rec, err := w.store.GetRecord(ctx, table.Name, entry.LocalID)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %s %s", ErrRecordNotFound, table.Name, entry.LocalID)
	}
	if err != nil {
		return "", fmt.Errorf("load %s %s: %w", table.Name, entry.LocalID, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, w.opts.CallTimeout)
	defer cancel()

	if entry.Operation == types.OperationDelete {
		row := table.ToRemote(rec)
		patch := types.Row{
			schema.RemoteDeletedAt: row[schema.RemoteDeletedAt],
			schema.RemoteUpdatedAt: row[schema.RemoteUpdatedAt],
			schema.RemoteVersion:   row[schema.RemoteVersion],
			schema.RemoteDeviceID:  row[schema.RemoteDeviceID],
		}
		target := rec.String(types.ColServerID)
		if target == "" {
			target = entry.LocalID
		}
		if err := w.remote.Update(callCtx, table.Name, patch, remote.Filter{Column: schema.RemoteID, Value: target}); err != nil {
			return "", fmt.Errorf("remote update %s %s: %w", table.Name, entry.LocalID, err)
		}
		return "", nil
	}

	row := table.ToRemote(rec)
	if sid := rec.String(types.ColServerID); sid != "" {
		row[schema.RemoteID] = sid
	}
	serverID, err := w.remote.Upsert(callCtx, table.Name, row)
	if err != nil {
		return "", fmt.Errorf("remote upsert %s %s: %w", table.Name, entry.LocalID, err)
	}
	return serverID, nil
}
