package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hyperengineering/fieldsync/internal/schema"
	engsync "github.com/hyperengineering/fieldsync/internal/sync"
	"github.com/hyperengineering/fieldsync/internal/types"
)

// MergeRemote applies one pulled record to the local store. Rules, first
// match wins:
//
//  1. no local counterpart: insert as synced
//  2. local has unpushed changes (pending or failed): skip
//  3. local updated_at is not older than the server's: skip
//  4. server carries a tombstone the local record lacks: tombstone locally
//  5. otherwise overwrite with the server version
//
// The local counterpart is found by server_id, falling back to local_id.
func (s *SQLiteStore) MergeRemote(ctx context.Context, table schema.Table, incoming types.Record) (engsync.MergeOutcome, error) {
	serverID := incoming.String(types.ColServerID)
	if serverID == "" {
		serverID = incoming.String(types.ColLocalID)
	}
	if serverID == "" {
		return "", fmt.Errorf("merge %s: incoming record has no id", table.Name)
	}

	var outcome engsync.MergeOutcome
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		local, err := findCounterpart(ctx, tx, table, serverID, incoming.String(types.ColLocalID))
		if err != nil {
			return err
		}

		if local == nil {
			rec := incoming.Clone()
			if rec.String(types.ColLocalID) == "" {
				rec[types.ColLocalID] = serverID
			}
			rec[types.ColServerID] = serverID
			rec[types.ColSyncStatus] = string(types.SyncStatusSynced)
			if err := insertRecord(ctx, tx, table, rec); err != nil {
				return err
			}
			outcome = engsync.MergeInserted
			return nil
		}

		switch types.SyncStatus(local.String(types.ColSyncStatus)) {
		case types.SyncStatusPending, types.SyncStatusFailed:
			outcome = engsync.MergeSkippedPending
			return nil
		}

		if !local.Time(types.ColUpdatedAt).Before(incoming.Time(types.ColUpdatedAt)) {
			outcome = engsync.MergeSkippedLocalNewer
			return nil
		}

		localID := local.String(types.ColLocalID)
		if incoming[types.ColDeletedAt] != nil && local[types.ColDeletedAt] == nil {
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`UPDATE %s SET deleted_at = ?, updated_at = ?, version = ?, server_id = ?, sync_status = ?
					WHERE local_id = ?`, table.Name),
				incoming[types.ColDeletedAt], incoming[types.ColUpdatedAt], incoming.Int(types.ColVersion),
				serverID, string(types.SyncStatusSynced), localID); err != nil {
				return fmt.Errorf("tombstone %s %s: %w", table.Name, localID, err)
			}
			outcome = engsync.MergeDeleted
			return nil
		}

		next := incoming.Clone()
		next[types.ColLocalID] = localID
		next[types.ColServerID] = serverID
		next[types.ColSyncStatus] = string(types.SyncStatusSynced)
		next[types.ColCreatedAt] = local[types.ColCreatedAt]
		if err := writeRecord(ctx, tx, table, localID, next); err != nil {
			return err
		}
		outcome = engsync.MergeUpdated
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func findCounterpart(ctx context.Context, execer execContext, table schema.Table, serverID, localID string) (types.Record, error) {
	rec, err := selectRecord(ctx, execer, table, types.ColServerID, serverID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if localID == "" {
		localID = serverID
	}
	rec, err = selectRecord(ctx, execer, table, types.ColLocalID, localID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return rec, err
}
