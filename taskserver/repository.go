// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package taskserver is the reference backend for the offline-first task
// client. It serves the /api REST contract over net/http and persists to
// either an in-memory repository or PostgreSQL.
package taskserver

import (
	"context"
	"errors"

	"github.com/mobiletoly/go-overtask/overtask"
)

// ErrConflict is returned when a record with the same identity already exists
var ErrConflict = errors.New("conflict")

// Repository persists server-side users and tasks. Missing records are
// reported with errors wrapping overtask.ErrNotFound.
type Repository interface {
	// CreateOrGetUser inserts u unless a user with the same name exists; it
	// returns the stored user and whether it was created.
	CreateOrGetUser(ctx context.Context, u overtask.User) (overtask.User, bool, error)
	GetUser(ctx context.Context, id string) (overtask.User, error)
	ListTasks(ctx context.Context, userID string) ([]overtask.Task, error)
	GetTask(ctx context.Context, id string) (overtask.Task, error)
	InsertTask(ctx context.Context, t overtask.Task) error
	// ModifyTask applies fn to the stored task atomically and returns the result
	ModifyTask(ctx context.Context, id string, fn func(t *overtask.Task) error) (overtask.Task, error)
	DeleteTask(ctx context.Context, id string) error
	Close()
}
