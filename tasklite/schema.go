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

// Baseline (version 0) layout. The tasks status CHECK only knows the
// original four statuses; later versions extend it through migrations.
var baselineDDL = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY CHECK (length(id) <= 100),
		name       TEXT NOT NULL CHECK (length(name) <= 100),
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS users_name_idx ON users(name)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id             TEXT PRIMARY KEY CHECK (length(id) <= 100),
		user_id        TEXT NOT NULL,
		title          TEXT NOT NULL CHECK (length(title) <= 200),
		description    TEXT CHECK (description IS NULL OR length(description) <= 1000),
		status         TEXT NOT NULL CHECK (status IN ('not-started','in-progress','blocked','completed')),
		position_x     REAL,
		position_y     REAL,
		checklist      TEXT NOT NULL DEFAULT '[]',
		schema_version INTEGER NOT NULL DEFAULT 0,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS tasks_user_idx ON tasks(user_id)`,
	`CREATE TABLE IF NOT EXISTS sync_state (
		id        TEXT PRIMARY KEY,
		last_sync TEXT NOT NULL,
		is_online INTEGER NOT NULL
	)`,
}

// migration upgrades the tasks collection to version
type migration struct {
	version     int
	description string
	apply       func(ctx context.Context, tx *sql.Tx) error
}

// migrations are applied in order; each one runs in its own transaction
var migrations = []migration{
	{
		version:     1,
		description: "accept final-check-awaiting status",
		apply:       rebuildTasksWithFinalCheck,
	},
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _schema_version (
		collection TEXT PRIMARY KEY,
		version    INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema version table: %w", err)
	}
	for _, stmt := range baselineDDL {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create baseline schema: %w", err)
		}
	}

	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > overtask.TaskSchemaVersion {
		return &overtask.SchemaError{
			Collection: "tasks",
			Err:        fmt.Errorf("database schema version %d is newer than supported %d", current, overtask.TaskSchemaVersion),
		}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}
		if err := m.apply(ctx, tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", m.version, m.description, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO _schema_version (collection, version) VALUES ('tasks', ?)
			 ON CONFLICT(collection) DO UPDATE SET version = excluded.version`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record schema version %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
		s.logger.Info("Applied local schema migration", "collection", "tasks", "version", m.version, "description", m.description)
	}
	return nil
}

// schemaVersion returns the recorded tasks schema version, 0 when none is recorded
func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM _schema_version WHERE collection = 'tasks'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// SchemaVersion reports the persisted tasks schema version
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return s.schemaVersion(ctx)
}

// SQLite cannot alter a CHECK constraint, so the table is rebuilt and rows are copied over.
func rebuildTasksWithFinalCheck(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE tasks_v1 (
			id             TEXT PRIMARY KEY CHECK (length(id) <= 100),
			user_id        TEXT NOT NULL,
			title          TEXT NOT NULL CHECK (length(title) <= 200),
			description    TEXT CHECK (description IS NULL OR length(description) <= 1000),
			status         TEXT NOT NULL CHECK (status IN ('not-started','in-progress','blocked','final-check-awaiting','completed')),
			position_x     REAL,
			position_y     REAL,
			checklist      TEXT NOT NULL DEFAULT '[]',
			schema_version INTEGER NOT NULL DEFAULT 1,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		)`,
		`INSERT INTO tasks_v1 (id, user_id, title, description, status, position_x, position_y, checklist, schema_version, created_at, updated_at)
		 SELECT id, user_id, title, description, status, position_x, position_y, checklist, 1, created_at, updated_at FROM tasks`,
		`DROP TABLE tasks`,
		`ALTER TABLE tasks_v1 RENAME TO tasks`,
		`CREATE INDEX IF NOT EXISTS tasks_user_idx ON tasks(user_id)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
