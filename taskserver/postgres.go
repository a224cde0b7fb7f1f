// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package taskserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mobiletoly/go-overtask/overtask"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresRepository stores users and tasks in PostgreSQL through pgxpool
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresRepository wraps pool and creates the overtask schema if needed
func NewPostgresRepository(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*PostgresRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &PostgresRepository{pool: pool, logger: logger}
	if err := r.initializeSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepository) initializeSchema(ctx context.Context) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS overtask`); err != nil {
			return fmt.Errorf("failed to create overtask schema: %w", err)
		}

		createUsersSQL :=
			/*language=postgresql*/ `
CREATE TABLE IF NOT EXISTS overtask.users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)
`
		if _, err := tx.Exec(ctx, createUsersSQL); err != nil {
			return fmt.Errorf("failed to create users table: %w", err)
		}

		createTasksSQL :=
			/*language=postgresql*/ `
CREATE TABLE IF NOT EXISTS overtask.tasks (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES overtask.users(id),
	title       TEXT NOT NULL,
	description TEXT,
	status      TEXT NOT NULL CHECK (status IN ('not-started','in-progress','blocked','final-check-awaiting','completed')),
	position    JSONB,
	checklist   JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
)
`
		if _, err := tx.Exec(ctx, createTasksSQL); err != nil {
			return fmt.Errorf("failed to create tasks table: %w", err)
		}
		if _, err := tx.Exec(ctx, `CREATE INDEX IF NOT EXISTS tasks_user_id_idx ON overtask.tasks(user_id)`); err != nil {
			return fmt.Errorf("failed to create tasks index: %w", err)
		}
		r.logger.Info("Initialized overtask schema")
		return nil
	})
}

func (r *PostgresRepository) CreateOrGetUser(ctx context.Context, u overtask.User) (overtask.User, bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO overtask.users (id, name, created_at) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING`,
		u.ID, u.Name, u.CreatedAt)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return overtask.User{}, false, fmt.Errorf("user %s: %w", u.ID, ErrConflict)
		}
		return overtask.User{}, false, fmt.Errorf("failed to insert user: %w", err)
	}
	var stored overtask.User
	err = r.pool.QueryRow(ctx, `SELECT id, name, created_at FROM overtask.users WHERE name = $1`, u.Name).
		Scan(&stored.ID, &stored.Name, &stored.CreatedAt)
	if err != nil {
		return overtask.User{}, false, fmt.Errorf("failed to load user %q: %w", u.Name, err)
	}
	stored.CreatedAt = stored.CreatedAt.UTC()
	return stored, tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) GetUser(ctx context.Context, id string) (overtask.User, error) {
	var u overtask.User
	err := r.pool.QueryRow(ctx, `SELECT id, name, created_at FROM overtask.users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return overtask.User{}, overtask.NotFoundf("user %s", id)
	}
	if err != nil {
		return overtask.User{}, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

const pgTaskColumns = `id, user_id, title, description, status, position, checklist, created_at, updated_at`

func (r *PostgresRepository) ListTasks(ctx context.Context, userID string) ([]overtask.Task, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+pgTaskColumns+` FROM overtask.tasks WHERE user_id = $1 ORDER BY created_at DESC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	out := []overtask.Task{}
	for rows.Next() {
		t, err := scanPgTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) GetTask(ctx context.Context, id string) (overtask.Task, error) {
	return getPgTask(ctx, r.pool, id, false)
}

func (r *PostgresRepository) InsertTask(ctx context.Context, t overtask.Task) error {
	args, err := pgTaskArgs(t)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO overtask.tasks (`+pgTaskColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, args...)
	switch {
	case err == nil:
		return nil
	case isPgCode(err, pgUniqueViolation):
		return fmt.Errorf("task %s: %w", t.ID, ErrConflict)
	case isPgCode(err, pgForeignKeyViolation):
		return overtask.NotFoundf("user %s", t.UserID)
	default:
		return fmt.Errorf("failed to insert task %s: %w", t.ID, err)
	}
}

func (r *PostgresRepository) ModifyTask(ctx context.Context, id string, fn func(t *overtask.Task) error) (overtask.Task, error) {
	var out overtask.Task
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := getPgTask(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := fn(&current); err != nil {
			return err
		}
		current.ID = id
		args, err := pgTaskArgs(current)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE overtask.tasks SET
			user_id = $2, title = $3, description = $4, status = $5, position = $6,
			checklist = $7, created_at = $8, updated_at = $9
			WHERE id = $1`, args...); err != nil {
			return fmt.Errorf("failed to update task %s: %w", id, err)
		}
		out = current
		return nil
	})
	return out, err
}

func (r *PostgresRepository) DeleteTask(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM overtask.tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return overtask.NotFoundf("task %s", id)
	}
	return nil
}

func (r *PostgresRepository) Close() { r.pool.Close() }

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getPgTask(ctx context.Context, q pgQuerier, id string, forUpdate bool) (overtask.Task, error) {
	query := `SELECT ` + pgTaskColumns + ` FROM overtask.tasks WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	t, err := scanPgTask(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return overtask.Task{}, overtask.NotFoundf("task %s", id)
	}
	return t, err
}

func scanPgTask(row pgx.Row) (overtask.Task, error) {
	var (
		t           overtask.Task
		description *string
		status      string
		position    []byte
		checklist   []byte
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &description, &status, &position, &checklist,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return overtask.Task{}, err
		}
		return overtask.Task{}, fmt.Errorf("failed to scan task: %w", err)
	}
	t.Status = overtask.Status(status)
	if description != nil {
		t.Description = *description
	}
	if len(position) > 0 {
		t.Position = &overtask.Position{}
		if err := json.Unmarshal(position, t.Position); err != nil {
			return overtask.Task{}, fmt.Errorf("failed to decode position of task %s: %w", t.ID, err)
		}
	}
	if err := json.Unmarshal(checklist, &t.Checklist); err != nil {
		return overtask.Task{}, fmt.Errorf("failed to decode checklist of task %s: %w", t.ID, err)
	}
	if t.Checklist == nil {
		t.Checklist = []overtask.ChecklistItem{}
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func pgTaskArgs(t overtask.Task) ([]any, error) {
	var description, position any
	if t.Description != "" {
		description = t.Description
	}
	if t.Position != nil {
		b, err := json.Marshal(t.Position)
		if err != nil {
			return nil, fmt.Errorf("failed to encode position: %w", err)
		}
		position = string(b)
	}
	checklist := t.Checklist
	if checklist == nil {
		checklist = []overtask.ChecklistItem{}
	}
	cb, err := json.Marshal(checklist)
	if err != nil {
		return nil, fmt.Errorf("failed to encode checklist: %w", err)
	}
	return []any{t.ID, t.UserID, t.Title, description, string(t.Status), position, string(cb), t.CreatedAt, t.UpdatedAt}, nil
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
