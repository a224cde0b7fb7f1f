// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package taskserver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mobiletoly/go-overtask/internal/clock"
	"github.com/mobiletoly/go-overtask/overtask"
)

// TaskService implements the backend semantics on top of a Repository.
// The server is the source of truth for identifiers: users and tasks get
// UUIDs here, checklist items keep a client-supplied id when it is unique.
type TaskService struct {
	repo   Repository
	clock  clock.Clock
	logger *slog.Logger
}

func NewTaskService(repo Repository, clk clock.Clock, logger *slog.Logger) *TaskService {
	if clk == nil {
		clk = clock.NewReal()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskService{repo: repo, clock: clk, logger: logger}
}

// Postgres keeps microseconds, so every stored timestamp is truncated to match
func (s *TaskService) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

func (s *TaskService) CreateOrGetUser(ctx context.Context, req overtask.CreateUserRequest) (overtask.User, bool, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := overtask.Validate(req); err != nil {
		return overtask.User{}, false, err
	}
	u, created, err := s.repo.CreateOrGetUser(ctx, overtask.User{ID: uuid.NewString(), Name: req.Name, CreatedAt: s.now()})
	if err != nil {
		return overtask.User{}, false, fmt.Errorf("failed to create or get user: %w", err)
	}
	if created {
		s.logger.Info("Created user", "user_id", u.ID, "name", u.Name)
	}
	return u, created, nil
}

func (s *TaskService) GetUser(ctx context.Context, id string) (overtask.User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s *TaskService) TasksByUser(ctx context.Context, userID string) ([]overtask.Task, error) {
	return s.repo.ListTasks(ctx, userID)
}

func (s *TaskService) GetTask(ctx context.Context, id string) (overtask.Task, error) {
	return s.repo.GetTask(ctx, id)
}

// CreateTask stores a new task in its initial state: not started, empty checklist
func (s *TaskService) CreateTask(ctx context.Context, req overtask.CreateTaskRequest) (overtask.Task, error) {
	if err := overtask.Validate(req); err != nil {
		return overtask.Task{}, err
	}
	now := s.now()
	t := overtask.Task{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Title:       req.Title,
		Description: req.Description,
		Status:      overtask.StatusNotStarted,
		Position:    req.Position,
		Checklist:   []overtask.ChecklistItem{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertTask(ctx, t); err != nil {
		return overtask.Task{}, fmt.Errorf("failed to create task: %w", err)
	}
	s.logger.Info("Created task", "task_id", t.ID, "user_id", t.UserID)
	return t, nil
}

func (s *TaskService) UpdateTask(ctx context.Context, id string, req overtask.UpdateTaskRequest) (overtask.Task, error) {
	if err := overtask.Validate(req); err != nil {
		return overtask.Task{}, err
	}
	return s.repo.ModifyTask(ctx, id, func(t *overtask.Task) error {
		req.ApplyTo(t)
		t.UpdatedAt = s.touch(t.UpdatedAt)
		return nil
	})
}

func (s *TaskService) DeleteTask(ctx context.Context, id string) error {
	if err := s.repo.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Deleted task", "task_id", id)
	return nil
}

func (s *TaskService) AddChecklistItem(ctx context.Context, taskID string, req overtask.CreateChecklistItemRequest) (overtask.ChecklistItem, error) {
	if err := overtask.Validate(req); err != nil {
		return overtask.ChecklistItem{}, err
	}
	var item overtask.ChecklistItem
	_, err := s.repo.ModifyTask(ctx, taskID, func(t *overtask.Task) error {
		now := s.now()
		id := req.ID
		if id == "" || t.ChecklistIndex(id) >= 0 {
			id = overtask.NewChecklistItemID(now)
		}
		item = overtask.ChecklistItem{ID: id, Text: req.Text, Status: overtask.StatusNotStarted, CreatedAt: now}
		t.Checklist = append(t.Checklist, item)
		t.UpdatedAt = s.touch(t.UpdatedAt)
		return nil
	})
	return item, err
}

func (s *TaskService) UpdateChecklistItem(ctx context.Context, taskID, itemID string, req overtask.UpdateChecklistItemRequest) (overtask.ChecklistItem, error) {
	if err := overtask.Validate(req); err != nil {
		return overtask.ChecklistItem{}, err
	}
	var item overtask.ChecklistItem
	_, err := s.repo.ModifyTask(ctx, taskID, func(t *overtask.Task) error {
		i := t.ChecklistIndex(itemID)
		if i < 0 {
			return overtask.NotFoundf("checklist item %s", itemID)
		}
		req.ApplyTo(&t.Checklist[i])
		item = t.Checklist[i]
		t.UpdatedAt = s.touch(t.UpdatedAt)
		return nil
	})
	return item, err
}

func (s *TaskService) DeleteChecklistItem(ctx context.Context, taskID, itemID string) error {
	_, err := s.repo.ModifyTask(ctx, taskID, func(t *overtask.Task) error {
		i := t.ChecklistIndex(itemID)
		if i < 0 {
			return overtask.NotFoundf("checklist item %s", itemID)
		}
		t.Checklist = append(t.Checklist[:i], t.Checklist[i+1:]...)
		t.UpdatedAt = s.touch(t.UpdatedAt)
		return nil
	})
	return err
}

func (s *TaskService) touch(prev time.Time) time.Time {
	return overtask.Touch(prev, s.now()).Truncate(time.Microsecond)
}
