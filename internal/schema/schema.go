// Package schema declares the syncable domain tables: their columns, the
// direction each one syncs in, and how local columns map to remote fields.
package schema

import (
	"fmt"
	"math"
	"sort"

	"github.com/hyperengineering/fieldsync/internal/types"
)

// ColumnType drives value conversion between SQLite and the remote service.
type ColumnType int

const (
	Text ColumnType = iota
	Real
	Integer
	Bool
	Timestamp
)

// Column is an entity-specific column. Envelope columns are implicit.
type Column struct {
	// Name is the local SQLite column name.
	Name string

	// Type selects the value conversion.
	Type ColumnType

	// Remote is the remote field name. Empty means same as Name.
	Remote string

	// Nullable columns map missing remote values to NULL instead of a zero value.
	Nullable bool
}

// RemoteName returns the field name used on the remote side.
func (c Column) RemoteName() string {
	if c.Remote != "" {
		return c.Remote
	}
	return c.Name
}

// Table declares one syncable domain table.
type Table struct {
	// Name is the SQL table name (local and remote).
	Name string

	// Columns lists entity-specific columns in table order.
	Columns []Column

	// Push marks tables whose local mutations are sent to the remote.
	Push bool

	// Pull marks tables fetched from the remote by the pull engine.
	Pull bool

	// Owner is the local column scoping pulls to the current user, if any.
	Owner string
}

// Remote envelope field names.
const (
	RemoteID        = "id"
	RemoteDeviceID  = "device_id"
	RemoteVersion   = "version"
	RemoteCreatedAt = "created_at"
	RemoteUpdatedAt = "updated_at"
	RemoteDeletedAt = "deleted_at"
)

// LocalColumns returns every local column: envelope first, then entity columns.
func (t Table) LocalColumns() []string {
	cols := make([]string, 0, len(types.EnvelopeColumns)+len(t.Columns))
	cols = append(cols, types.EnvelopeColumns...)
	for _, c := range t.Columns {
		cols = append(cols, c.Name)
	}
	return cols
}

// EntityColumns returns the entity-specific column names.
func (t Table) EntityColumns() []string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = c.Name
	}
	return cols
}

// RemoteFields returns every field name the remote shape carries.
func (t Table) RemoteFields() []string {
	fields := []string{RemoteID, RemoteDeviceID, RemoteVersion, RemoteCreatedAt, RemoteUpdatedAt, RemoteDeletedAt}
	for _, c := range t.Columns {
		fields = append(fields, c.RemoteName())
	}
	return fields
}

// Column returns the entity column with the given local name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// OwnerRemote returns the remote field name of the owner column, or "".
func (t Table) OwnerRemote() string {
	if t.Owner == "" {
		return ""
	}
	if c, ok := t.Column(t.Owner); ok {
		return c.RemoteName()
	}
	return ""
}

// ToRemote maps a stored record to the remote shape. local_id becomes id;
// server_id and sync_status stay local.
func (t Table) ToRemote(rec types.Record) types.Row {
	row := types.Row{
		RemoteID:        rec.String(types.ColLocalID),
		RemoteDeviceID:  rec.String(types.ColDeviceID),
		RemoteVersion:   rec.Int(types.ColVersion),
		RemoteCreatedAt: nullableString(rec[types.ColCreatedAt]),
		RemoteUpdatedAt: nullableString(rec[types.ColUpdatedAt]),
		RemoteDeletedAt: nullableString(rec[types.ColDeletedAt]),
	}
	for _, c := range t.Columns {
		row[c.RemoteName()] = toRemoteValue(c, rec[c.Name])
	}
	return row
}

// FromRemote maps a remote row to a stored record. The remote id fills both
// local_id and server_id, so server-originated rows need no id mapping.
// The returned record is marked synced.
func (t Table) FromRemote(row types.Row) (types.Record, error) {
	id := row.String(RemoteID)
	if id == "" {
		return nil, fmt.Errorf("%s: remote row missing %q", t.Name, RemoteID)
	}
	updatedAt, err := remoteTime(row[RemoteUpdatedAt])
	if err != nil || updatedAt == nil {
		return nil, fmt.Errorf("%s %s: invalid %s: %v", t.Name, id, RemoteUpdatedAt, row[RemoteUpdatedAt])
	}
	createdAt, err := remoteTime(row[RemoteCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("%s %s: invalid %s: %w", t.Name, id, RemoteCreatedAt, err)
	}
	if createdAt == nil {
		createdAt = updatedAt
	}
	deletedAt, err := remoteTime(row[RemoteDeletedAt])
	if err != nil {
		return nil, fmt.Errorf("%s %s: invalid %s: %w", t.Name, id, RemoteDeletedAt, err)
	}

	version := int64(1)
	if v, ok := toInt(row[RemoteVersion]); ok && v > 0 {
		version = v
	}

	rec := types.Record{
		types.ColLocalID:    id,
		types.ColServerID:   id,
		types.ColSyncStatus: string(types.SyncStatusSynced),
		types.ColCreatedAt:  *createdAt,
		types.ColUpdatedAt:  *updatedAt,
		types.ColDeletedAt:  nil,
		types.ColDeviceID:   row.String(RemoteDeviceID),
		types.ColVersion:    version,
	}
	if deletedAt != nil {
		rec[types.ColDeletedAt] = *deletedAt
	}

	for _, c := range t.Columns {
		v, err := toLocalValue(c, row[c.RemoteName()])
		if err != nil {
			return nil, fmt.Errorf("%s %s: field %s: %w", t.Name, id, c.RemoteName(), err)
		}
		rec[c.Name] = v
	}
	return rec, nil
}

func nullableString(v any) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && s == "" {
		return nil
	}
	return v
}

func toRemoteValue(c Column, v any) any {
	if v == nil {
		return nil
	}
	switch c.Type {
	case Bool:
		return types.Record{c.Name: v}.Bool(c.Name)
	case Integer:
		return types.Record{c.Name: v}.Int(c.Name)
	case Real:
		return types.Record{c.Name: v}.Float(c.Name)
	case Timestamp:
		return nullableString(v)
	default:
		return types.Record{c.Name: v}.String(c.Name)
	}
}

func toLocalValue(c Column, v any) (any, error) {
	if v == nil {
		if c.Nullable || c.Type == Timestamp {
			return nil, nil
		}
		return zeroValue(c.Type), nil
	}
	switch c.Type {
	case Bool:
		switch b := v.(type) {
		case bool:
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		default:
			n, ok := toInt(v)
			if !ok {
				return nil, fmt.Errorf("expected boolean, got %T", v)
			}
			if n != 0 {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case Integer:
		n, ok := toInt(v)
		if !ok {
			return nil, fmt.Errorf("expected integer, got %T", v)
		}
		return n, nil
	case Real:
		switch f := v.(type) {
		case float64:
			return f, nil
		case float32:
			return float64(f), nil
		}
		n, ok := toInt(v)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", v)
		}
		return float64(n), nil
	case Timestamp:
		t, err := remoteTime(v)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, nil
		}
		return *t, nil
	default:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	}
}

func zeroValue(t ColumnType) any {
	switch t {
	case Bool, Integer:
		return int64(0)
	case Real:
		return float64(0)
	default:
		return ""
	}
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

// remoteTime normalizes a remote timestamp to TimeLayout. nil and "" are NULL.
func remoteTime(v any) (*string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" {
			return nil, nil
		}
		parsed, err := types.ParseTime(t)
		if err != nil {
			return nil, err
		}
		s := types.FormatTime(parsed)
		return &s, nil
	default:
		return nil, fmt.Errorf("expected timestamp string, got %T", v)
	}
}

// SortedNames returns the names of tables, sorted.
func SortedNames(tables []Table) []string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	sort.Strings(names)
	return names
}
