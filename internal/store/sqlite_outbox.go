package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	engsync "github.com/hyperengineering/fieldsync/internal/sync"
	"github.com/hyperengineering/fieldsync/internal/types"
)

// Enqueue records an intent to sync (table, localID, op). A later enqueue of
// the same triple replaces the payload, resets retry state and bumps the
// revision; created_at is kept so FIFO position is stable. Failures are
// logged and never returned: the local write has already succeeded.
func (s *SQLiteStore) Enqueue(ctx context.Context, table, localID string, op types.Operation, payload json.RawMessage) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return s.enqueue(ctx, tx, table, localID, op, payload)
	})
	if err != nil {
		logEnqueueFailure(table, localID, op, err)
	}
}

// enqueueInTx enqueues inside an open domain write transaction.
func (s *SQLiteStore) enqueueInTx(ctx context.Context, tx *sql.Tx, table, localID string, op types.Operation, payload json.RawMessage) {
	if err := s.enqueue(ctx, tx, table, localID, op, payload); err != nil {
		logEnqueueFailure(table, localID, op, err)
	}
}

func logEnqueueFailure(table, localID string, op types.Operation, err error) {
	slog.Warn("outbox enqueue failed",
		"component", "store",
		"action", "enqueue",
		"table", table,
		"local_id", localID,
		"operation", op,
		"error", err,
	)
}

func (s *SQLiteStore) enqueue(ctx context.Context, execer execContext, table, localID string, op types.Operation, payload json.RawMessage) error {
	if !op.Valid() {
		return fmt.Errorf("invalid operation %q", op)
	}
	var body any
	if len(payload) > 0 {
		body = string(payload)
	}

	var id int64
	err := execer.QueryRowContext(ctx, `
		SELECT id FROM outbox WHERE table_name = ? AND local_id = ? AND operation = ?
	`, table, localID, string(op)).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = execer.ExecContext(ctx, `
			INSERT INTO outbox (table_name, local_id, operation, payload, retry_count, revision, created_at)
			VALUES (?, ?, ?, ?, 0, 1, ?)
		`, table, localID, string(op), body, types.FormatTime(s.now()))
		if err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
	case err != nil:
		return fmt.Errorf("find outbox entry: %w", err)
	default:
		_, err = execer.ExecContext(ctx, `
			UPDATE outbox
			SET payload = ?, retry_count = 0, last_error = NULL, last_attempted_at = NULL, revision = revision + 1
			WHERE id = ?
		`, body, id)
		if err != nil {
			return fmt.Errorf("refresh outbox entry: %w", err)
		}
	}
	return nil
}

const outboxColumns = `id, table_name, local_id, operation, payload, retry_count, last_error, revision, created_at, last_attempted_at`

// GetPending returns up to limit entries with retry_count below maxRetries,
// oldest first. A non-positive limit returns every eligible entry.
func (s *SQLiteStore) GetPending(ctx context.Context, limit, maxRetries int) ([]engsync.OutboxEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox
		WHERE retry_count < ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox: %w", err)
	}
	defer rows.Close()
	return scanOutboxEntries(rows)
}

// ListOutbox returns every entry, quarantined included, oldest first.
func (s *SQLiteStore) ListOutbox(ctx context.Context, limit int) ([]engsync.OutboxEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()
	return scanOutboxEntries(rows)
}

func scanOutboxEntries(rows *sql.Rows) ([]engsync.OutboxEntry, error) {
	var entries []engsync.OutboxEntry
	for rows.Next() {
		var (
			e             engsync.OutboxEntry
			op            string
			payload       sql.NullString
			lastError     sql.NullString
			createdAt     string
			lastAttempted sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TableName, &e.LocalID, &op, &payload, &e.RetryCount,
			&lastError, &e.Revision, &createdAt, &lastAttempted); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.Operation = types.Operation(op)
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		if lastError.Valid {
			msg := lastError.String
			e.LastError = &msg
		}
		t, err := types.ParseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("outbox entry %d: %w", e.ID, err)
		}
		e.CreatedAt = t
		if lastAttempted.Valid {
			at, err := types.ParseTime(lastAttempted.String)
			if err != nil {
				return nil, fmt.Errorf("outbox entry %d: %w", e.ID, err)
			}
			e.LastAttemptedAt = &at
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkSynced removes a delivered entry and records the server id. The entry
// is removed only if its revision is unchanged; a newer enqueue of the same
// intent stays queued. The record turns synced only when no other entry for
// it remains.
func (s *SQLiteStore) MarkSynced(ctx context.Context, entry engsync.OutboxEntry, serverID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM outbox WHERE id = ? AND revision = ?
		`, entry.ID, entry.Revision); err != nil {
			return fmt.Errorf("delete outbox entry %d: %w", entry.ID, err)
		}

		table, err := lookupTable(entry.TableName)
		if err != nil {
			return err
		}

		if serverID != "" {
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf("UPDATE %s SET server_id = ? WHERE local_id = ?", table.Name),
				serverID, entry.LocalID); err != nil {
				return fmt.Errorf("set server id on %s %s: %w", table.Name, entry.LocalID, err)
			}
		}

		var remaining int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM outbox WHERE table_name = ? AND local_id = ?
		`, entry.TableName, entry.LocalID).Scan(&remaining); err != nil {
			return fmt.Errorf("count outbox entries: %w", err)
		}
		if remaining > 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET sync_status = ? WHERE local_id = ?", table.Name),
			string(types.SyncStatusSynced), entry.LocalID); err != nil {
			return fmt.Errorf("mark %s %s synced: %w", table.Name, entry.LocalID, err)
		}
		return nil
	})
}

// MarkFailed increments the entry's retry count and stores the error. The
// record is flagged failed unless a newer enqueue superseded the entry.
// Entries for unknown tables only get their retry state updated.
func (s *SQLiteStore) MarkFailed(ctx context.Context, entry engsync.OutboxEntry, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE outbox
			SET retry_count = retry_count + 1, last_error = ?, last_attempted_at = ?
			WHERE id = ? AND revision = ?
		`, msg, types.FormatTime(s.now()), entry.ID, entry.Revision)
		if err != nil {
			return fmt.Errorf("mark outbox entry %d failed: %w", entry.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		table, ok := lookupKnown(entry.TableName)
		if !ok {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET sync_status = ? WHERE local_id = ?", table),
			string(types.SyncStatusFailed), entry.LocalID); err != nil {
			return fmt.Errorf("mark %s %s failed: %w", table, entry.LocalID, err)
		}
		return nil
	})
}

func lookupKnown(name string) (string, bool) {
	t, err := lookupTable(name)
	if err != nil {
		return "", false
	}
	return t.Name, true
}

// ResetFailed clears retry state for one record's entries, quarantined
// ones included, and returns the record to pending.
func (s *SQLiteStore) ResetFailed(ctx context.Context, tableName, localID string) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE outbox SET retry_count = 0, last_error = NULL
			WHERE table_name = ? AND local_id = ?
		`, tableName, localID)
		if err != nil {
			return fmt.Errorf("reset outbox entries: %w", err)
		}
		n, _ = res.RowsAffected()

		if table, ok := lookupKnown(tableName); ok && n > 0 {
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf("UPDATE %s SET sync_status = ? WHERE local_id = ? AND sync_status = ?", table),
				string(types.SyncStatusPending), localID, string(types.SyncStatusFailed)); err != nil {
				return fmt.Errorf("reset %s %s: %w", table, localID, err)
			}
		}
		return nil
	})
	return n, err
}

// ResetAllFailed clears retry state for every entry that has failed at
// least once and returns failed records to pending.
func (s *SQLiteStore) ResetAllFailed(ctx context.Context) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE outbox SET retry_count = 0, last_error = NULL WHERE retry_count > 0
		`)
		if err != nil {
			return fmt.Errorf("reset outbox entries: %w", err)
		}
		n, _ = res.RowsAffected()

		for _, table := range allTableNames() {
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`UPDATE %s SET sync_status = ? WHERE sync_status = ?
					AND local_id IN (SELECT local_id FROM outbox WHERE table_name = ?)`, table),
				string(types.SyncStatusPending), string(types.SyncStatusFailed), table); err != nil {
				return fmt.Errorf("reset %s: %w", table, err)
			}
		}
		return nil
	})
	return n, err
}

// PurgeQuarantined deletes entries that reached maxRetries. Their records
// stay failed.
func (s *SQLiteStore) PurgeQuarantined(ctx context.Context, maxRetries int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM outbox WHERE retry_count >= ?
	`, maxRetries)
	if err != nil {
		return 0, fmt.Errorf("purge quarantined entries: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.Info("quarantined outbox entries purged",
			"component", "store",
			"action", "purge",
			"count", n,
		)
	}
	return n, nil
}

// OutboxStats counts outbox entries by retry state.
func (s *SQLiteStore) OutboxStats(ctx context.Context, maxRetries int) (*engsync.OutboxStats, error) {
	var stats engsync.OutboxStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN retry_count < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN retry_count >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN retry_count > 0 AND retry_count < ? THEN 1 ELSE 0 END), 0)
		FROM outbox
	`, maxRetries, maxRetries, maxRetries).Scan(&stats.Pending, &stats.Quarantined, &stats.Failing)
	if err != nil {
		return nil, fmt.Errorf("outbox stats: %w", err)
	}
	return &stats, nil
}
