package sync

import (
	"encoding/json"
	"time"

	"github.com/hyperengineering/fieldsync/internal/types"
)

// OutboxEntry is one durable intent to sync a (table, record, operation).
type OutboxEntry struct {
	ID              int64           `json:"id"`
	TableName       string          `json:"table_name"`
	LocalID         string          `json:"local_id"`
	Operation       types.Operation `json:"operation"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	RetryCount      int             `json:"retry_count"`
	LastError       *string         `json:"last_error,omitempty"`
	Revision        int64           `json:"revision"`
	CreatedAt       time.Time       `json:"created_at"`
	LastAttemptedAt *time.Time      `json:"last_attempted_at,omitempty"`
}

// Checkpoint is the pull high-water mark for one table.
// LastPullAt is nil until the first successful pull.
type Checkpoint struct {
	TableName  string     `json:"table_name"`
	LastPullAt *time.Time `json:"last_pull_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// MergeOutcome is the rule that decided a pulled record's fate.
type MergeOutcome string

const (
	MergeInserted          MergeOutcome = "inserted"
	MergeSkippedPending    MergeOutcome = "skipped_pending"
	MergeSkippedLocalNewer MergeOutcome = "skipped_local_newer"
	MergeDeleted           MergeOutcome = "deleted"
	MergeUpdated           MergeOutcome = "updated"
)

// Skipped reports whether the outcome left local state untouched.
func (o MergeOutcome) Skipped() bool {
	return o == MergeSkippedPending || o == MergeSkippedLocalNewer
}

// PushEntryStatus is the per-entry result of a push attempt.
type PushEntryStatus string

const (
	PushSynced PushEntryStatus = "synced"
	PushFailed PushEntryStatus = "failed"
)

// PushEntryResult records what happened to one outbox entry.
type PushEntryResult struct {
	EntryID   int64           `json:"entry_id"`
	TableName string          `json:"table_name"`
	LocalID   string          `json:"local_id"`
	Operation types.Operation `json:"operation"`
	Status    PushEntryStatus `json:"status"`
	ServerID  string          `json:"server_id,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// PushResult summarizes one push run.
type PushResult struct {
	Processed int               `json:"processed"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Entries   []PushEntryResult `json:"entries"`
	Duration  time.Duration     `json:"duration"`
}

// TablePullResult summarizes the pull of one table.
type TablePullResult struct {
	TableName  string     `json:"table_name"`
	Fetched    int        `json:"fetched"`
	Inserted   int        `json:"inserted"`
	Updated    int        `json:"updated"`
	Deleted    int        `json:"deleted"`
	Skipped    int        `json:"skipped"`
	Error      string     `json:"error,omitempty"`
	Checkpoint *time.Time `json:"checkpoint,omitempty"`
	Advanced   bool       `json:"advanced"`
}

// Record counts one merge outcome.
func (r *TablePullResult) Record(o MergeOutcome) {
	switch o {
	case MergeInserted:
		r.Inserted++
	case MergeUpdated:
		r.Updated++
	case MergeDeleted:
		r.Deleted++
	case MergeSkippedPending, MergeSkippedLocalNewer:
		r.Skipped++
	}
}

// PullResult summarizes one pull run across tables.
type PullResult struct {
	Tables   []TablePullResult `json:"tables"`
	Fetched  int               `json:"fetched"`
	Inserted int               `json:"inserted"`
	Updated  int               `json:"updated"`
	Deleted  int               `json:"deleted"`
	Skipped  int               `json:"skipped"`
	Errors   int               `json:"errors"`
	Duration time.Duration     `json:"duration"`
}

// Add folds a table result into the aggregate counts.
func (r *PullResult) Add(t TablePullResult) {
	r.Tables = append(r.Tables, t)
	r.Fetched += t.Fetched
	r.Inserted += t.Inserted
	r.Updated += t.Updated
	r.Deleted += t.Deleted
	r.Skipped += t.Skipped
	if t.Error != "" {
		r.Errors++
	}
}

// OutboxStats summarizes outbox backlog.
type OutboxStats struct {
	Pending     int `json:"pending"`
	Quarantined int `json:"quarantined"`
	Failing     int `json:"failing"`
}

// SyncMeta keys
const (
	SyncMetaSchemaVersion = "schema_version"
	SyncMetaDeviceID      = "device_id"
)
