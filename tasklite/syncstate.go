// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package tasklite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mobiletoly/go-overtask/overtask"
)

// UpsertSyncState overwrites the sync-state singleton
func (s *Store) UpsertSyncState(ctx context.Context, st overtask.SyncState) error {
	st.ID = overtask.SyncStateID
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO sync_state (id, last_sync, is_online) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET last_sync = excluded.last_sync, is_online = excluded.is_online`,
			st.ID, formatTime(st.LastSync), st.IsOnline)
		if err != nil {
			return fmt.Errorf("failed to upsert sync state: %w", err)
		}
		return nil
	})
}

// SyncState returns the singleton or an error wrapping overtask.ErrNotFound
// when no cycle has completed yet.
func (s *Store) SyncState(ctx context.Context) (overtask.SyncState, error) {
	var (
		st       overtask.SyncState
		lastSync string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, last_sync, is_online FROM sync_state WHERE id = ?`, overtask.SyncStateID).
		Scan(&st.ID, &lastSync, &st.IsOnline)
	if errors.Is(err, sql.ErrNoRows) {
		return overtask.SyncState{}, overtask.NotFoundf("sync state")
	}
	if err != nil {
		return overtask.SyncState{}, fmt.Errorf("failed to load sync state: %w", err)
	}
	if st.LastSync, err = parseTime(lastSync); err != nil {
		return overtask.SyncState{}, &overtask.SchemaError{Collection: "sync_state", ID: st.ID, Err: err}
	}
	return st, nil
}
