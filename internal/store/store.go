package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hyperengineering/fieldsync/internal/schema"
	engsync "github.com/hyperengineering/fieldsync/internal/sync"
	"github.com/hyperengineering/fieldsync/internal/types"
)

// Store defines the interface contract for local storage: domain records,
// the outbox and pull checkpoints.
type Store interface {
	// Domain records
	GetRecord(ctx context.Context, table, localID string) (types.Record, error)
	ListRecords(ctx context.Context, table string, filter Filter) ([]types.Record, error)
	SoftDelete(ctx context.Context, table, localID string) error

	// Outbox
	Enqueue(ctx context.Context, table, localID string, op types.Operation, payload json.RawMessage)
	GetPending(ctx context.Context, limit, maxRetries int) ([]engsync.OutboxEntry, error)
	ListOutbox(ctx context.Context, limit int) ([]engsync.OutboxEntry, error)
	MarkSynced(ctx context.Context, entry engsync.OutboxEntry, serverID string) error
	MarkFailed(ctx context.Context, entry engsync.OutboxEntry, cause error) error
	ResetFailed(ctx context.Context, table, localID string) (int64, error)
	ResetAllFailed(ctx context.Context) (int64, error)
	PurgeQuarantined(ctx context.Context, maxRetries int) (int64, error)
	OutboxStats(ctx context.Context, maxRetries int) (*engsync.OutboxStats, error)

	// Checkpoints
	GetCheckpoint(ctx context.Context, table string) (*time.Time, error)
	AdvanceCheckpoint(ctx context.Context, table string, t time.Time) (bool, error)
	ListCheckpoints(ctx context.Context) ([]engsync.Checkpoint, error)
	ResetCheckpoint(ctx context.Context, table string) error

	// Merge
	MergeRemote(ctx context.Context, table schema.Table, incoming types.Record) (engsync.MergeOutcome, error)

	DeviceID() string
	Close() error
}

// Filter narrows ListRecords. Zero value lists every live record.
type Filter struct {
	// Column and Value add an equality match when Column is set.
	Column string
	Value  any

	// IncludeDeleted also returns tombstoned records.
	IncludeDeleted bool

	// Limit caps the result. Zero means no limit.
	Limit int
}

var _ Store = (*SQLiteStore)(nil)
