// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package tasklite is the durable on-device store for users, tasks and the
// sync-state singleton. It is backed by SQLite and is the single source of
// truth for immediate reads and writes; nothing here talks to the network.
package tasklite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mobiletoly/go-overtask/internal/clock"
)

// Options configures a Store
type Options struct {
	Clock       clock.Clock   // time source for updatedAt; defaults to clock.NewReal
	Logger      *slog.Logger  // defaults to slog.Default()
	BusyTimeout time.Duration // SQLite busy_timeout, e.g. 5s
}

// DefaultOptions returns options suitable for a device process
func DefaultOptions() *Options {
	return &Options{
		Clock:       clock.NewReal(),
		Logger:      slog.Default(),
		BusyTimeout: 5 * time.Second,
	}
}

// Store is an explicitly constructed handle to the local database.
// Create it with Open and release it with Close; it is safe for concurrent use.
type Store struct {
	db      *sql.DB
	clock   clock.Clock
	logger  *slog.Logger
	writeMu sync.Mutex // Serialize write operations to prevent SQLite locking issues
}

// Open opens (creating if needed) the database at path and brings its schema
// to the current version. Use ":memory:" for an ephemeral store.
func Open(ctx context.Context, path string, opts *Options) (*Store, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes SQLite access
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, clock: opts.Clock, logger: opts.Logger}
	if err := s.initializeDatabase(ctx, opts.BusyTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close sqlite database: %w", err)
	}
	return nil
}

// Now returns the store's notion of current time
func (s *Store) Now() time.Time { return s.clock.Now() }

func (s *Store) initializeDatabase(ctx context.Context, busyTimeout time.Duration) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if busyTimeout > 0 {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`PRAGMA busy_timeout=%d`, busyTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("failed to set busy timeout: %w", err)
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.migrate(ctx)
}

// Reset drops every collection and recreates the current schema.
// All local data is lost; callers must surface this to the user.
func (s *Store) Reset(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, stmt := range []string{
		`DROP TABLE IF EXISTS tasks`,
		`DROP TABLE IF EXISTS users`,
		`DROP TABLE IF EXISTS sync_state`,
		`DROP TABLE IF EXISTS _schema_version`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to reset local store: %w", err)
		}
	}
	s.logger.Warn("Local store reset; all local records dropped")
	return s.migrate(ctx)
}

// inTx runs fn inside a write transaction holding writeMu
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
