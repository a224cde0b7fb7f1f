// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package tasksync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/mobiletoly/go-overtask/overtask"
)

// ErrAlreadyPublished is returned by Publish when the locally-minted task no
// longer exists, because another path promoted or deleted it first.
var ErrAlreadyPublished = errors.New("task already published or removed")

// Publisher creates locally-minted tasks on the backend, promotes them to the
// server identity and pushes local field changes. The engine and the facade
// share one Publisher so that a task is never created remotely twice by
// concurrent paths.
type Publisher struct {
	store  Store
	remote Remote
	logger *slog.Logger
	flight singleflight.Group
}

func NewPublisher(store Store, remote Remote, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{store: store, remote: remote, logger: logger}
}

// Publish creates the task localID remotely and promotes the local record to
// the server identity. Concurrent calls for the same id share one attempt.
func (p *Publisher) Publish(ctx context.Context, localID string) (overtask.Task, error) {
	v, err, _ := p.flight.Do(localID, func() (any, error) {
		return p.publish(ctx, localID)
	})
	if err != nil {
		return overtask.Task{}, err
	}
	return v.(overtask.Task), nil
}

func (p *Publisher) publish(ctx context.Context, localID string) (overtask.Task, error) {
	local, err := p.store.FindTask(ctx, localID)
	if errors.Is(err, overtask.ErrNotFound) {
		return overtask.Task{}, ErrAlreadyPublished
	}
	if err != nil {
		return overtask.Task{}, err
	}

	created, err := p.remote.CreateTask(ctx, overtask.CreateTaskRequest{
		UserID:      local.UserID,
		Title:       local.Title,
		Description: local.Description,
		Position:    local.Position,
	})
	if err != nil {
		return overtask.Task{}, fmt.Errorf("failed to create task remotely: %w", err)
	}

	promoted, err := p.store.PromoteTask(ctx, localID, created.ID, created.UpdatedAt)
	if errors.Is(err, overtask.ErrNotFound) {
		// Deleted locally while the create was in flight
		if derr := p.remote.DeleteTask(ctx, created.ID); derr != nil {
			p.logger.Warn("Failed to delete orphaned remote task", "task_id", created.ID, "error", derr)
		}
		return overtask.Task{}, ErrAlreadyPublished
	}
	if err != nil {
		return overtask.Task{}, fmt.Errorf("failed to promote task %s: %w", localID, err)
	}
	p.logger.Info("Promoted task", "local_id", localID, "task_id", promoted.ID)

	if err := p.Push(ctx, promoted, created); err != nil {
		p.logger.Warn("Failed to push local fields after promotion", "task_id", promoted.ID, "error", err)
	}
	return promoted, nil
}

// Push sends the differences between local and its remote copy. Each remote
// call is independent; the joined error lists every failed call.
func (p *Publisher) Push(ctx context.Context, local, remote overtask.Task) error {
	var errs []error

	if req, changed := taskDiff(local, remote); changed {
		if _, err := p.remote.UpdateTask(ctx, local.ID, req); err != nil {
			errs = append(errs, err)
		}
	}

	for _, item := range local.Checklist {
		i := remote.ChecklistIndex(item.ID)
		if i < 0 {
			if _, err := p.remote.AddChecklistItem(ctx, local.ID, overtask.CreateChecklistItemRequest{ID: item.ID, Text: item.Text}); err != nil {
				errs = append(errs, err)
				continue
			}
			if item.Status != overtask.StatusNotStarted {
				status := item.Status
				if _, err := p.remote.UpdateChecklistItem(ctx, local.ID, item.ID, overtask.UpdateChecklistItemRequest{Status: &status}); err != nil {
					errs = append(errs, err)
				}
			}
			continue
		}
		if req, changed := itemDiff(item, remote.Checklist[i]); changed {
			if _, err := p.remote.UpdateChecklistItem(ctx, local.ID, item.ID, req); err != nil {
				errs = append(errs, err)
			}
		}
	}

	for _, item := range remote.Checklist {
		if local.ChecklistIndex(item.ID) < 0 {
			if err := p.remote.DeleteChecklistItem(ctx, local.ID, item.ID); err != nil && !errors.Is(err, overtask.ErrNotFound) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func taskDiff(local, remote overtask.Task) (overtask.UpdateTaskRequest, bool) {
	var req overtask.UpdateTaskRequest
	if local.Title != remote.Title {
		req.Title = &local.Title
	}
	if local.Description != remote.Description {
		req.Description = &local.Description
	}
	if local.Status != remote.Status {
		req.Status = &local.Status
	}
	if local.Position != nil && (remote.Position == nil || *local.Position != *remote.Position) {
		req.Position = local.Position
	}
	return req, !req.Empty()
}

func itemDiff(local, remote overtask.ChecklistItem) (overtask.UpdateChecklistItemRequest, bool) {
	var req overtask.UpdateChecklistItemRequest
	if local.Text != remote.Text {
		req.Text = &local.Text
	}
	if local.Status != remote.Status {
		req.Status = &local.Status
	}
	return req, req.Text != nil || req.Status != nil
}
