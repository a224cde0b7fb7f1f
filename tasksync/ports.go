// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package tasksync reconciles the local task store with the remote backend:
// deduplication, identity promotion, gated reconciliation cycles and the
// connectivity signal that triggers them.
package tasksync

import (
	"context"
	"time"

	"github.com/mobiletoly/go-overtask/overtask"
	"github.com/mobiletoly/go-overtask/tasklite"
)

// Store is the subset of the local store used by synchronization.
// *tasklite.Store implements it.
type Store interface {
	FindUsers(ctx context.Context) ([]overtask.User, error)
	FindTask(ctx context.Context, id string) (overtask.Task, error)
	FindTasks(ctx context.Context, q tasklite.TaskQuery) ([]overtask.Task, error)
	RemoveTask(ctx context.Context, id string) error
	PromoteTask(ctx context.Context, oldID, newID string, remoteUpdatedAt time.Time) (overtask.Task, error)
	PromoteUser(ctx context.Context, oldID string, u overtask.User) error
	UpsertSyncState(ctx context.Context, st overtask.SyncState) error
}

// Remote is the backend contract. *taskremote.Client implements it.
type Remote interface {
	CreateOrGetUser(ctx context.Context, req overtask.CreateUserRequest) (overtask.User, error)
	GetUserByID(ctx context.Context, id string) (overtask.User, error)
	GetTasksByUserID(ctx context.Context, userID string) ([]overtask.Task, error)
	GetTaskByID(ctx context.Context, id string) (overtask.Task, error)
	CreateTask(ctx context.Context, req overtask.CreateTaskRequest) (overtask.Task, error)
	UpdateTask(ctx context.Context, id string, req overtask.UpdateTaskRequest) (overtask.Task, error)
	DeleteTask(ctx context.Context, id string) error
	AddChecklistItem(ctx context.Context, taskID string, req overtask.CreateChecklistItemRequest) (overtask.ChecklistItem, error)
	UpdateChecklistItem(ctx context.Context, taskID, itemID string, req overtask.UpdateChecklistItemRequest) (overtask.ChecklistItem, error)
	DeleteChecklistItem(ctx context.Context, taskID, itemID string) error
}

var _ Store = (*tasklite.Store)(nil)
