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

const upsertUserSQL = `INSERT INTO users (id, name, created_at) VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET name = excluded.name, created_at = excluded.created_at`

// UpsertUser inserts the user or overwrites it by identity
func (s *Store) UpsertUser(ctx context.Context, u overtask.User) error {
	if err := overtask.Validate(u); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertUserSQL, u.ID, u.Name, formatTime(u.CreatedAt)); err != nil {
			return fmt.Errorf("failed to upsert user %s: %w", u.ID, err)
		}
		return nil
	})
}

// FindUser returns the user with id or an error wrapping overtask.ErrNotFound
func (s *Store) FindUser(ctx context.Context, id string) (overtask.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return overtask.User{}, overtask.NotFoundf("user %s", id)
	}
	if err != nil {
		return overtask.User{}, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	return u, nil
}

// FindUserByName returns the oldest local user with the given name
func (s *Store) FindUserByName(ctx context.Context, name string) (overtask.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM users WHERE name = ? ORDER BY created_at ASC, id ASC LIMIT 1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return overtask.User{}, overtask.NotFoundf("user named %q", name)
	}
	if err != nil {
		return overtask.User{}, fmt.Errorf("failed to load user %q: %w", name, err)
	}
	return u, nil
}

// FindUsers returns every local user ordered by creation time
func (s *Store) FindUsers(ctx context.Context) ([]overtask.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []overtask.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// RemoveUser deletes the user; removing an absent user is a no-op
func (s *Store) RemoveUser(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to remove user %s: %w", id, err)
		}
		return nil
	})
}

// PromoteUser atomically replaces the locally-minted user oldID with the
// server-assigned user and re-points every task it owns.
func (s *Store) PromoteUser(ctx context.Context, oldID string, u overtask.User) error {
	if err := overtask.Validate(u); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertUserSQL, u.ID, u.Name, formatTime(u.CreatedAt)); err != nil {
			return fmt.Errorf("failed to insert promoted user %s: %w", u.ID, err)
		}
		if oldID == u.ID {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET user_id = ? WHERE user_id = ?`, u.ID, oldID); err != nil {
			return fmt.Errorf("failed to re-point tasks of user %s: %w", oldID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, oldID); err != nil {
			return fmt.Errorf("failed to remove local user %s: %w", oldID, err)
		}
		return nil
	})
}
