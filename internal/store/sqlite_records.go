package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hyperengineering/fieldsync/internal/schema"
	"github.com/hyperengineering/fieldsync/internal/types"
	"github.com/oklog/ulid/v2"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one row into a Record keyed by cols.
func scanRecord(row rowScanner, cols []string) (types.Record, error) {
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		return nil, err
	}
	rec := make(types.Record, len(cols))
	for i, c := range cols {
		if b, ok := vals[i].([]byte); ok {
			rec[c] = string(b)
			continue
		}
		rec[c] = vals[i]
	}
	return rec, nil
}

func lookupTable(name string) (schema.Table, error) {
	t, ok := schema.Lookup(name)
	if !ok {
		return schema.Table{}, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return t, nil
}

func selectRecord(ctx context.Context, execer execContext, table schema.Table, where string, arg any) (types.Record, error) {
	cols := table.LocalColumns()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", strings.Join(cols, ", "), table.Name, where)
	rec, err := scanRecord(execer.QueryRowContext(ctx, query, arg), cols)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s=%v: %w", table.Name, where, arg, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s record: %w", table.Name, err)
	}
	return rec, nil
}

func getRecord(ctx context.Context, execer execContext, table schema.Table, localID string) (types.Record, error) {
	return selectRecord(ctx, execer, table, types.ColLocalID, localID)
}

func insertRecord(ctx context.Context, execer execContext, table schema.Table, rec types.Record) error {
	cols := table.LocalColumns()
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = "?"
		args[i] = rec[col]
	}

	sqlStr := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table.Name,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
	)
	if _, err := execer.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert %s record %s: %w", table.Name, rec.String(types.ColLocalID), err)
	}
	return nil
}

// writeRecord overwrites every column of the record identified by localID.
func writeRecord(ctx context.Context, execer execContext, table schema.Table, localID string, rec types.Record) error {
	cols := table.LocalColumns()
	setClauses := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		if col == types.ColLocalID {
			continue
		}
		setClauses = append(setClauses, col+" = ?")
		args = append(args, rec[col])
	}
	args = append(args, localID)

	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE local_id = ?", table.Name, strings.Join(setClauses, ", "))
	res, err := execer.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update %s record %s: %w", table.Name, localID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", table.Name, localID, ErrNotFound)
	}
	return nil
}

func remotePayload(table schema.Table, rec types.Record) json.RawMessage {
	payload, err := json.Marshal(table.ToRemote(rec))
	if err != nil {
		return nil
	}
	return payload
}

// GetRecord returns one record, tombstoned or not.
func (s *SQLiteStore) GetRecord(ctx context.Context, tableName, localID string) (types.Record, error) {
	table, err := lookupTable(tableName)
	if err != nil {
		return nil, err
	}
	return getRecord(ctx, s.db, table, localID)
}

// ListRecords returns records ordered by created_at.
func (s *SQLiteStore) ListRecords(ctx context.Context, tableName string, filter Filter) ([]types.Record, error) {
	table, err := lookupTable(tableName)
	if err != nil {
		return nil, err
	}
	cols := table.LocalColumns()

	var where []string
	var args []any
	if filter.Column != "" {
		if !slices.Contains(cols, filter.Column) {
			return nil, fmt.Errorf("%s: unknown column %q", table.Name, filter.Column)
		}
		where = append(where, filter.Column+" = ?")
		args = append(args, filter.Value)
	}
	if !filter.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), table.Name)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, local_id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table.Name, err)
	}
	defer rows.Close()

	var out []types.Record
	for rows.Next() {
		rec, err := scanRecord(rows, cols)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table.Name, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// create stamps a new local record with a fresh envelope, stores it and
// enqueues an insert in the same transaction.
func (s *SQLiteStore) create(ctx context.Context, tableName string, rec types.Record) (types.Record, error) {
	table, err := lookupTable(tableName)
	if err != nil {
		return nil, err
	}

	rec = rec.Clone()
	if rec.String(types.ColLocalID) == "" {
		rec[types.ColLocalID] = ulid.Make().String()
	}
	now := types.FormatTime(s.stamp(time.Time{}))
	rec[types.ColServerID] = nil
	rec[types.ColSyncStatus] = string(types.SyncStatusPending)
	rec[types.ColCreatedAt] = now
	rec[types.ColUpdatedAt] = now
	rec[types.ColDeletedAt] = nil
	rec[types.ColDeviceID] = s.deviceID
	rec[types.ColVersion] = int64(1)

	localID := rec.String(types.ColLocalID)
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertRecord(ctx, tx, table, rec); err != nil {
			return err
		}
		s.enqueueInTx(ctx, tx, table.Name, localID, types.OperationInsert, remotePayload(table, rec))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// update applies mutate to a live record, bumps its version and updated_at,
// marks it pending and enqueues an update in the same transaction.
func (s *SQLiteStore) update(ctx context.Context, tableName, localID string, mutate func(next types.Record)) (types.Record, error) {
	table, err := lookupTable(tableName)
	if err != nil {
		return nil, err
	}

	var next types.Record
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := getRecord(ctx, tx, table, localID)
		if err != nil {
			return err
		}
		if cur[types.ColDeletedAt] != nil {
			return fmt.Errorf("%s %s: %w", table.Name, localID, ErrDeleted)
		}

		next = cur.Clone()
		mutate(next)
		for _, col := range []string{types.ColLocalID, types.ColServerID, types.ColCreatedAt, types.ColDeletedAt, types.ColDeviceID} {
			next[col] = cur[col]
		}
		next[types.ColSyncStatus] = string(types.SyncStatusPending)
		next[types.ColUpdatedAt] = types.FormatTime(s.stamp(cur.Time(types.ColUpdatedAt)))
		next[types.ColVersion] = cur.Int(types.ColVersion) + 1

		if err := writeRecord(ctx, tx, table, localID, next); err != nil {
			return err
		}
		s.enqueueInTx(ctx, tx, table.Name, localID, types.OperationUpdate, remotePayload(table, next))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// SoftDelete tombstones a record and enqueues a delete. Deleting an
// already tombstoned record is a no-op.
func (s *SQLiteStore) SoftDelete(ctx context.Context, tableName, localID string) error {
	table, err := lookupTable(tableName)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := getRecord(ctx, tx, table, localID)
		if err != nil {
			return err
		}
		if cur[types.ColDeletedAt] != nil {
			return nil
		}

		next := cur.Clone()
		now := types.FormatTime(s.stamp(cur.Time(types.ColUpdatedAt)))
		next[types.ColDeletedAt] = now
		next[types.ColUpdatedAt] = now
		next[types.ColVersion] = cur.Int(types.ColVersion) + 1
		next[types.ColSyncStatus] = string(types.SyncStatusPending)

		if err := writeRecord(ctx, tx, table, localID, next); err != nil {
			return err
		}
		s.enqueueInTx(ctx, tx, table.Name, localID, types.OperationDelete, remotePayload(table, next))
		return nil
	})
}

// entityFields copies the entity columns of src into dst.
func entityFields(tableName string, src types.Record) func(types.Record) {
	return func(dst types.Record) {
		table, _ := schema.Lookup(tableName)
		for _, col := range table.EntityColumns() {
			dst[col] = src[col]
		}
	}
}

// CreateUser stores a new local user and enqueues it for push.
func (s *SQLiteStore) CreateUser(ctx context.Context, u types.User) (*types.User, error) {
	rec, err := s.create(ctx, types.TableUsers, u.Record())
	if err != nil {
		return nil, err
	}
	out := types.UserFromRecord(rec)
	return &out, nil
}

// CreateScan stores a new local scan and enqueues it for push.
func (s *SQLiteStore) CreateScan(ctx context.Context, sc types.Scan) (*types.Scan, error) {
	if sc.CapturedAt.IsZero() {
		sc.CapturedAt = s.now().UTC()
	}
	rec, err := s.create(ctx, types.TableScans, sc.Record())
	if err != nil {
		return nil, err
	}
	out := types.ScanFromRecord(rec)
	return &out, nil
}

// CreateDiagnosis stores a diagnosis for a scan and enqueues it for push.
func (s *SQLiteStore) CreateDiagnosis(ctx context.Context, d types.Diagnosis) (*types.Diagnosis, error) {
	table, _ := schema.Lookup(types.TableScans)
	if _, err := getRecord(ctx, s.db, table, d.ScanLocalID); err != nil {
		return nil, fmt.Errorf("diagnosis scan: %w", err)
	}
	rec, err := s.create(ctx, types.TableDiagnoses, d.Record())
	if err != nil {
		return nil, err
	}
	out := types.DiagnosisFromRecord(rec)
	return &out, nil
}

// UpdateUser overwrites the user's profile fields.
func (s *SQLiteStore) UpdateUser(ctx context.Context, u types.User) (*types.User, error) {
	rec, err := s.update(ctx, types.TableUsers, u.LocalID, entityFields(types.TableUsers, u.Record()))
	if err != nil {
		return nil, err
	}
	out := types.UserFromRecord(rec)
	return &out, nil
}

// UpdateScan overwrites the scan's fields.
func (s *SQLiteStore) UpdateScan(ctx context.Context, sc types.Scan) (*types.Scan, error) {
	rec, err := s.update(ctx, types.TableScans, sc.LocalID, entityFields(types.TableScans, sc.Record()))
	if err != nil {
		return nil, err
	}
	out := types.ScanFromRecord(rec)
	return &out, nil
}

// UpdateDiagnosis overwrites the diagnosis fields.
func (s *SQLiteStore) UpdateDiagnosis(ctx context.Context, d types.Diagnosis) (*types.Diagnosis, error) {
	rec, err := s.update(ctx, types.TableDiagnoses, d.LocalID, entityFields(types.TableDiagnoses, d.Record()))
	if err != nil {
		return nil, err
	}
	out := types.DiagnosisFromRecord(rec)
	return &out, nil
}

// MarkNotificationRead flags a notification read and records when.
// Marking an already read notification keeps the original read_at.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, localID string) (*types.Notification, error) {
	readAt := types.FormatTime(s.now())
	rec, err := s.update(ctx, types.TableNotifications, localID, func(next types.Record) {
		if next.Bool("is_read") && next["read_at"] != nil {
			return
		}
		next["is_read"] = int64(1)
		next["read_at"] = readAt
	})
	if err != nil {
		return nil, err
	}
	out := types.NotificationFromRecord(rec)
	return &out, nil
}

// SetTipBookmarked sets the local bookmark flag of a tip.
func (s *SQLiteStore) SetTipBookmarked(ctx context.Context, localID string, bookmarked bool) (*types.Tip, error) {
	v := int64(0)
	if bookmarked {
		v = 1
	}
	rec, err := s.update(ctx, types.TableTips, localID, func(next types.Record) {
		next["is_bookmarked"] = v
	})
	if err != nil {
		return nil, err
	}
	out := types.TipFromRecord(rec)
	return &out, nil
}

// GetUser returns a user by local id.
func (s *SQLiteStore) GetUser(ctx context.Context, localID string) (*types.User, error) {
	rec, err := s.GetRecord(ctx, types.TableUsers, localID)
	if err != nil {
		return nil, err
	}
	out := types.UserFromRecord(rec)
	return &out, nil
}

// GetScan returns a scan by local id.
func (s *SQLiteStore) GetScan(ctx context.Context, localID string) (*types.Scan, error) {
	rec, err := s.GetRecord(ctx, types.TableScans, localID)
	if err != nil {
		return nil, err
	}
	out := types.ScanFromRecord(rec)
	return &out, nil
}

// GetDiagnosis returns a diagnosis by local id.
func (s *SQLiteStore) GetDiagnosis(ctx context.Context, localID string) (*types.Diagnosis, error) {
	rec, err := s.GetRecord(ctx, types.TableDiagnoses, localID)
	if err != nil {
		return nil, err
	}
	out := types.DiagnosisFromRecord(rec)
	return &out, nil
}

// GetTip returns a tip by local id.
func (s *SQLiteStore) GetTip(ctx context.Context, localID string) (*types.Tip, error) {
	rec, err := s.GetRecord(ctx, types.TableTips, localID)
	if err != nil {
		return nil, err
	}
	out := types.TipFromRecord(rec)
	return &out, nil
}

// GetNotification returns a notification by local id.
func (s *SQLiteStore) GetNotification(ctx context.Context, localID string) (*types.Notification, error) {
	rec, err := s.GetRecord(ctx, types.TableNotifications, localID)
	if err != nil {
		return nil, err
	}
	out := types.NotificationFromRecord(rec)
	return &out, nil
}

// ListNotifications returns the live notifications of a user, or of
// every user when userLocalID is empty.
func (s *SQLiteStore) ListNotifications(ctx context.Context, userLocalID string) ([]types.Notification, error) {
	recs, err := s.ListRecords(ctx, types.TableNotifications, ownerFilter(userLocalID))
	if err != nil {
		return nil, err
	}
	out := make([]types.Notification, len(recs))
	for i, r := range recs {
		out[i] = types.NotificationFromRecord(r)
	}
	return out, nil
}

// ListTips returns every live tip.
func (s *SQLiteStore) ListTips(ctx context.Context) ([]types.Tip, error) {
	recs, err := s.ListRecords(ctx, types.TableTips, Filter{})
	if err != nil {
		return nil, err
	}
	out := make([]types.Tip, len(recs))
	for i, r := range recs {
		out[i] = types.TipFromRecord(r)
	}
	return out, nil
}

// ListScans returns the live scans of a user, or of every user when
// userLocalID is empty.
func (s *SQLiteStore) ListScans(ctx context.Context, userLocalID string) ([]types.Scan, error) {
	recs, err := s.ListRecords(ctx, types.TableScans, ownerFilter(userLocalID))
	if err != nil {
		return nil, err
	}
	out := make([]types.Scan, len(recs))
	for i, r := range recs {
		out[i] = types.ScanFromRecord(r)
	}
	return out, nil
}

func ownerFilter(userLocalID string) Filter {
	if userLocalID == "" {
		return Filter{}
	}
	return Filter{Column: "user_local_id", Value: userLocalID}
}
