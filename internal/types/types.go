package types

import (
	"fmt"
	"strconv"
	"time"
)

// SyncStatus is the per-record synchronization state.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusPending, SyncStatusSynced, SyncStatusFailed:
		return true
	}
	return false
}

// Operation is the kind of mutation recorded in the outbox.
type Operation string

const (
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Valid reports whether o is one of the known operations.
func (o Operation) Valid() bool {
	switch o {
	case OperationInsert, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// Domain table names.
const (
	TableUsers         = "users"
	TableScans         = "scans"
	TableDiagnoses     = "diagnoses"
	TableTips          = "tips"
	TableNotifications = "notifications"
)

// TimeLayout is the on-disk and on-wire timestamp format. It is fixed width
// and always UTC, so lexical order equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a timestamp written by FormatTime or any RFC 3339 variant.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Record is a domain row keyed by local column name, as stored in SQLite.
// Text and timestamps are strings, booleans are 0/1 integers, NULL is nil.
type Record map[string]any

// Row is a domain row keyed by remote field name, as exchanged with the
// remote service. Timestamps are strings, booleans are bools.
type Row map[string]any

// String returns the column as a string, or "" when absent or NULL.
func (r Record) String(col string) string {
	return asString(r[col])
}

// Int returns the column as an int64.
func (r Record) Int(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

// Float returns the column as a float64.
func (r Record) Float(col string) float64 {
	switch v := r[col].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// FloatPtr returns the column as a *float64, nil when NULL.
func (r Record) FloatPtr(col string) *float64 {
	if r[col] == nil {
		return nil
	}
	f := r.Float(col)
	return &f
}

// Bool returns the column as a bool.
func (r Record) Bool(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case float64:
		return v != 0
	}
	return false
}

// Time returns the column parsed as a timestamp, zero when NULL or invalid.
func (r Record) Time(col string) time.Time {
	s := r.String(col)
	if s == "" {
		return time.Time{}
	}
	t, err := ParseTime(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// TimePtr returns the column parsed as a timestamp, nil when NULL.
func (r Record) TimePtr(col string) *time.Time {
	if r.String(col) == "" {
		return nil
	}
	t := r.Time(col)
	return &t
}

// StringPtr returns the column as a *string, nil when NULL.
func (r Record) StringPtr(col string) *string {
	if r[col] == nil {
		return nil
	}
	s := r.String(col)
	return &s
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the field as a string, or "" when absent or null.
func (r Row) String(field string) string {
	return asString(r[field])
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

func formatTimePtr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return FormatTime(*t)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
