// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package taskstate

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mobiletoly/go-overtask/overtask"
	"github.com/mobiletoly/go-overtask/tasksync"
)

// NewTask describes a task created by the user
type NewTask struct {
	Title       string
	Description string
	Position    *overtask.Position
}

// CreateTask stores the task under a local identity and publishes it in the
// background. A schema failure resets the local store and asks the user to
// retry.
func (s *State) CreateTask(ctx context.Context, in NewTask) (overtask.Task, *Pending, error) {
	userID, err := s.userID()
	if err != nil {
		return overtask.Task{}, nil, s.fail(err)
	}
	now := s.clock.Now()
	task := overtask.Task{
		ID:          overtask.NewLocalTaskID(now),
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		Status:      overtask.StatusNotStarted,
		Position:    in.Position,
		Checklist:   []overtask.ChecklistItem{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := overtask.RequireText("title", in.Title); err != nil {
		return overtask.Task{}, nil, s.fail(err)
	}
	if err := overtask.Validate(task); err != nil {
		return overtask.Task{}, nil, s.fail(err)
	}

	if err := s.store.UpsertTask(ctx, task); err != nil {
		if errors.Is(err, overtask.ErrSchema) {
			s.logger.Error("Schema failure on create; resetting local store", "error", err)
			if rerr := s.ClearDatabaseAndRetry(ctx); rerr != nil {
				return overtask.Task{}, nil, rerr
			}
			return overtask.Task{}, nil, err
		}
		return overtask.Task{}, nil, s.fail(err)
	}
	if err := s.Reload(ctx); err != nil {
		return task, resolved(nil), err
	}
	s.succeed()

	pending := s.opportunistic(ctx, "create task", func(ctx context.Context) error {
		return s.publish(ctx, task.ID)
	})
	return task, pending, nil
}

// UpdateTask applies req to the local task and forwards it to the backend
func (s *State) UpdateTask(ctx context.Context, id string, req overtask.UpdateTaskRequest) (overtask.Task, *Pending, error) {
	if err := overtask.Validate(req); err != nil {
		return overtask.Task{}, nil, s.fail(err)
	}
	task, err := s.store.MutateTask(ctx, id, func(t *overtask.Task) error {
		req.ApplyTo(t)
		return nil
	})
	if err != nil {
		return overtask.Task{}, nil, s.fail(err)
	}
	if err := s.Reload(ctx); err != nil {
		return task, resolved(nil), err
	}
	s.succeed()

	pending := s.remoteFor(ctx, "update task", id, func(ctx context.Context) error {
		_, err := s.remote.UpdateTask(ctx, id, req)
		return err
	})
	return task, pending, nil
}

// DeleteTask removes the task locally and then remotely. Deleting a task
// that does not exist locally is a no-op.
func (s *State) DeleteTask(ctx context.Context, id string) (*Pending, error) {
	if _, err := s.store.FindTask(ctx, id); err != nil {
		if errors.Is(err, overtask.ErrNotFound) {
			return resolved(nil), nil
		}
		return nil, s.fail(err)
	}
	if err := s.store.RemoveTask(ctx, id); err != nil {
		return nil, s.fail(err)
	}
	if err := s.Reload(ctx); err != nil {
		return resolved(nil), err
	}
	s.succeed()

	if overtask.IsLocalTaskID(id) {
		return resolved(nil), nil
	}
	return s.opportunistic(ctx, "delete task", func(ctx context.Context) error {
		err := s.remote.DeleteTask(ctx, id)
		if errors.Is(err, overtask.ErrNotFound) {
			return nil
		}
		return err
	}), nil
}

// AddChecklistItem appends a not-started item to the task
func (s *State) AddChecklistItem(ctx context.Context, taskID, text string) (overtask.ChecklistItem, *Pending, error) {
	if err := overtask.RequireText("text", text); err != nil {
		return overtask.ChecklistItem{}, nil, s.fail(err)
	}
	now := s.clock.Now()
	item := overtask.ChecklistItem{
		ID:        overtask.NewChecklistItemID(now),
		Text:      text,
		Status:    overtask.StatusNotStarted,
		CreatedAt: now,
	}
	if _, err := s.store.MutateTask(ctx, taskID, func(t *overtask.Task) error {
		t.Checklist = append(t.Checklist, item)
		return nil
	}); err != nil {
		return overtask.ChecklistItem{}, nil, s.fail(err)
	}
	if err := s.Reload(ctx); err != nil {
		return item, resolved(nil), err
	}
	s.succeed()

	pending := s.remoteFor(ctx, "add checklist item", taskID, func(ctx context.Context) error {
		_, err := s.remote.AddChecklistItem(ctx, taskID, overtask.CreateChecklistItemRequest{ID: item.ID, Text: item.Text})
		return err
	})
	return item, pending, nil
}

// UpdateChecklistItem changes text or status of one checklist item
func (s *State) UpdateChecklistItem(ctx context.Context, taskID, itemID string, req overtask.UpdateChecklistItemRequest) (overtask.ChecklistItem, *Pending, error) {
	if err := overtask.Validate(req); err != nil {
		return overtask.ChecklistItem{}, nil, s.fail(err)
	}
	var item overtask.ChecklistItem
	if _, err := s.store.MutateTask(ctx, taskID, func(t *overtask.Task) error {
		i := t.ChecklistIndex(itemID)
		if i < 0 {
			return overtask.NotFoundf("checklist item %s in task %s", itemID, taskID)
		}
		req.ApplyTo(&t.Checklist[i])
		item = t.Checklist[i]
		return nil
	}); err != nil {
		return overtask.ChecklistItem{}, nil, s.fail(err)
	}
	if err := s.Reload(ctx); err != nil {
		return item, resolved(nil), err
	}
	s.succeed()

	pending := s.remoteFor(ctx, "update checklist item", taskID, func(ctx context.Context) error {
		_, err := s.remote.UpdateChecklistItem(ctx, taskID, itemID, req)
		return err
	})
	return item, pending, nil
}

// DeleteChecklistItem removes one checklist item; a missing item is a no-op
func (s *State) DeleteChecklistItem(ctx context.Context, taskID, itemID string) (*Pending, error) {
	task, err := s.store.FindTask(ctx, taskID)
	if err != nil {
		return nil, s.fail(err)
	}
	if task.ChecklistIndex(itemID) < 0 {
		return resolved(nil), nil
	}
	if _, err := s.store.MutateTask(ctx, taskID, func(t *overtask.Task) error {
		t.Checklist = slices.DeleteFunc(t.Checklist, func(it overtask.ChecklistItem) bool { return it.ID == itemID })
		return nil
	}); err != nil {
		return nil, s.fail(err)
	}
	if err := s.Reload(ctx); err != nil {
		return resolved(nil), err
	}
	s.succeed()

	return s.remoteFor(ctx, "delete checklist item", taskID, func(ctx context.Context) error {
		err := s.remote.DeleteChecklistItem(ctx, taskID, itemID)
		if errors.Is(err, overtask.ErrNotFound) {
			return nil
		}
		return err
	}), nil
}

// remoteFor forwards a change of task taskID. Tasks still under a local
// identity are published instead; publishing pushes every local field.
func (s *State) remoteFor(ctx context.Context, op, taskID string, call func(ctx context.Context) error) *Pending {
	if !overtask.IsLocalTaskID(taskID) {
		return s.opportunistic(ctx, op, call)
	}
	return s.opportunistic(ctx, op, func(ctx context.Context) error {
		return s.publish(ctx, taskID)
	})
}

// publish promotes a local task and reloads the projection. A task that was
// already promoted by the sync engine counts as published.
func (s *State) publish(ctx context.Context, taskID string) error {
	_, err := s.publisher.Publish(ctx, taskID)
	if errors.Is(err, tasksync.ErrAlreadyPublished) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to publish task %s: %w", taskID, err)
	}
	return s.Reload(ctx)
}
