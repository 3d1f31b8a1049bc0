package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/fieldsync/internal/schema"
	engsync "github.com/hyperengineering/fieldsync/internal/sync"
	"github.com/hyperengineering/fieldsync/internal/types"
)

func allTableNames() []string {
	tables := schema.All()
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names
}

func getCheckpoint(ctx context.Context, execer execContext, table string) (*time.Time, error) {
	var lastPull sql.NullString
	err := execer.QueryRowContext(ctx, `
		SELECT last_pull_at FROM sync_checkpoints WHERE table_name = ?
	`, table).Scan(&lastPull)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !lastPull.Valid) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", table, err)
	}
	t, err := types.ParseTime(lastPull.String)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", table, err)
	}
	return &t, nil
}

// GetCheckpoint returns the pull high-water mark of table, or nil if the
// table has never been pulled.
func (s *SQLiteStore) GetCheckpoint(ctx context.Context, table string) (*time.Time, error) {
	return getCheckpoint(ctx, s.db, table)
}

// AdvanceCheckpoint moves the checkpoint of table to t if t is strictly
// later than the stored value. It reports whether the checkpoint moved.
func (s *SQLiteStore) AdvanceCheckpoint(ctx context.Context, table string, t time.Time) (bool, error) {
	var advanced bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := getCheckpoint(ctx, tx, table)
		if err != nil {
			return err
		}
		if cur != nil && !t.After(*cur) {
			return nil
		}

		now := types.FormatTime(s.now())
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sync_checkpoints (table_name, last_pull_at, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(table_name) DO UPDATE SET
				last_pull_at = excluded.last_pull_at,
				updated_at = excluded.updated_at
		`, table, types.FormatTime(t), now, now); err != nil {
			return fmt.Errorf("advance checkpoint %s: %w", table, err)
		}
		advanced = true
		return nil
	})
	return advanced, err
}

// ListCheckpoints returns every stored checkpoint ordered by table name.
func (s *SQLiteStore) ListCheckpoints(ctx context.Context) ([]engsync.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, last_pull_at, created_at, updated_at
		FROM sync_checkpoints
		ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []engsync.Checkpoint
	for rows.Next() {
		var (
			cp                   engsync.Checkpoint
			lastPull             sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&cp.TableName, &lastPull, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		if lastPull.Valid {
			t, err := types.ParseTime(lastPull.String)
			if err != nil {
				return nil, fmt.Errorf("checkpoint %s: %w", cp.TableName, err)
			}
			cp.LastPullAt = &t
		}
		if cp.CreatedAt, err = types.ParseTime(createdAt); err != nil {
			return nil, fmt.Errorf("checkpoint %s: %w", cp.TableName, err)
		}
		if cp.UpdatedAt, err = types.ParseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("checkpoint %s: %w", cp.TableName, err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// ResetCheckpoint forgets the checkpoint of table; the next pull is full.
func (s *SQLiteStore) ResetCheckpoint(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_checkpoints WHERE table_name = ?
	`, table); err != nil {
		return fmt.Errorf("reset checkpoint %s: %w", table, err)
	}
	slog.Info("checkpoint reset", "component", "store", "table", table)
	return nil
}
