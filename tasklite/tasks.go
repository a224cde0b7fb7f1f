// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package tasklite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mobiletoly/go-overtask/overtask"
)

// SortField selects the timestamp a task query is ordered by
type SortField string

const (
	SortByCreatedAt SortField = "created_at"
	SortByUpdatedAt SortField = "updated_at"
)

// TaskQuery filters and orders FindTasks results.
// The zero value returns every task ordered by createdAt ascending.
type TaskQuery struct {
	UserID     string // equality filter; empty matches every user
	SortBy     SortField
	Descending bool
}

var upsertTaskSQL = `INSERT INTO tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		user_id = excluded.user_id,
		title = excluded.title,
		description = excluded.description,
		status = excluded.status,
		position_x = excluded.position_x,
		position_y = excluded.position_y,
		checklist = excluded.checklist,
		schema_version = excluded.schema_version,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at`

// UpsertTask inserts the task or overwrites it by identity. It is idempotent.
func (s *Store) UpsertTask(ctx context.Context, t overtask.Task) error {
	if err := overtask.Validate(t); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return writeTask(ctx, tx, t)
	})
}

// MergeTask applies a remote-origin task under last-writer-wins: the local
// copy is overwritten only when it is absent or not newer than t.
// It reports whether t was written.
func (s *Store) MergeTask(ctx context.Context, t overtask.Task) (bool, error) {
	if err := overtask.Validate(t); err != nil {
		return false, err
	}
	applied := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := readTask(ctx, tx, t.ID)
		switch {
		case errors.Is(err, overtask.ErrNotFound):
		case err != nil:
			return err
		case current.UpdatedAt.After(t.UpdatedAt):
			return nil
		}
		if err := writeTask(ctx, tx, t); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// FindTask returns the task with id or an error wrapping overtask.ErrNotFound
func (s *Store) FindTask(ctx context.Context, id string) (overtask.Task, error) {
	return readTask(ctx, s.db, id)
}

// FindTasks returns a snapshot of the tasks matching q
func (s *Store) FindTasks(ctx context.Context, q TaskQuery) ([]overtask.Task, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT ` + taskColumns + ` FROM tasks`)
	if q.UserID != "" {
		sb.WriteString(` WHERE user_id = ?`)
		args = append(args, q.UserID)
	}
	sortBy := q.SortBy
	if sortBy != SortByUpdatedAt {
		sortBy = SortByCreatedAt
	}
	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	fmt.Fprintf(&sb, ` ORDER BY %s %s, id %s`, sortBy, dir, dir)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []overtask.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

// MutateTask runs fn against the current task inside one transaction and
// persists the result with a refreshed updatedAt. fn cannot change the id.
// It fails with overtask.ErrNotFound if the task no longer exists.
func (s *Store) MutateTask(ctx context.Context, id string, fn func(t *overtask.Task) error) (overtask.Task, error) {
	var out overtask.Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := readTask(ctx, tx, id)
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := fn(&next); err != nil {
			return err
		}
		next.ID = id
		next.UpdatedAt = overtask.Touch(current.UpdatedAt, s.clock.Now())
		if err := overtask.Validate(next); err != nil {
			return err
		}
		if err := writeTask(ctx, tx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

// RemoveTask deletes the task; removing an absent task is a no-op
func (s *Store) RemoveTask(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to remove task %s: %w", id, err)
		}
		return nil
	})
}

// PromoteTask atomically moves the locally-minted task oldID to the
// server-assigned newID. The current local fields are kept and updatedAt is
// raised above remoteUpdatedAt so the local copy stays authoritative until
// it has been pushed. It fails with overtask.ErrNotFound when oldID is gone.
func (s *Store) PromoteTask(ctx context.Context, oldID, newID string, remoteUpdatedAt time.Time) (overtask.Task, error) {
	var out overtask.Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := readTask(ctx, tx, oldID)
		if err != nil {
			return err
		}
		promoted := current.Clone()
		promoted.ID = newID
		floor := current.UpdatedAt
		if remoteUpdatedAt.After(floor) {
			floor = remoteUpdatedAt
		}
		promoted.UpdatedAt = overtask.Touch(floor, s.clock.Now())
		if oldID != newID {
			if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, oldID); err != nil {
				return fmt.Errorf("failed to remove local task %s: %w", oldID, err)
			}
		}
		if err := writeTask(ctx, tx, promoted); err != nil {
			return err
		}
		out = promoted
		return nil
	})
	return out, err
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readTask(ctx context.Context, q queryRower, id string) (overtask.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return overtask.Task{}, overtask.NotFoundf("task %s", id)
	}
	if err != nil {
		return overtask.Task{}, fmt.Errorf("failed to load task %s: %w", id, err)
	}
	return t, nil
}

func writeTask(ctx context.Context, tx *sql.Tx, t overtask.Task) error {
	args, err := taskArgs(t)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upsertTaskSQL, args...); err != nil {
		if strings.Contains(err.Error(), "CHECK constraint failed") {
			return &overtask.SchemaError{Collection: "tasks", ID: t.ID, Err: err}
		}
		return fmt.Errorf("failed to write task %s: %w", t.ID, err)
	}
	return nil
}
