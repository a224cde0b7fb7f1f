// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package taskserver

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/mobiletoly/go-overtask/overtask"
)

// MemoryRepository keeps everything in process memory. Used by tests and
// by the server binary when no database is configured.
type MemoryRepository struct {
	mu     sync.RWMutex
	users  map[string]overtask.User
	byName map[string]string
	tasks  map[string]overtask.Task
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:  make(map[string]overtask.User),
		byName: make(map[string]string),
		tasks:  make(map[string]overtask.Task),
	}
}

func (m *MemoryRepository) CreateOrGetUser(_ context.Context, u overtask.User) (overtask.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byName[u.Name]; ok {
		return m.users[id], false, nil
	}
	if _, ok := m.users[u.ID]; ok {
		return overtask.User{}, false, fmt.Errorf("user %s: %w", u.ID, ErrConflict)
	}
	m.users[u.ID] = u
	m.byName[u.Name] = u.ID
	return u, true, nil
}

func (m *MemoryRepository) GetUser(_ context.Context, id string) (overtask.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return overtask.User{}, overtask.NotFoundf("user %s", id)
	}
	return u, nil
}

func (m *MemoryRepository) ListTasks(_ context.Context, userID string) ([]overtask.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []overtask.Task{}
	for _, t := range m.tasks {
		if t.UserID == userID {
			out = append(out, t.Clone())
		}
	}
	slices.SortFunc(out, func(a, b overtask.Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (m *MemoryRepository) GetTask(_ context.Context, id string) (overtask.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return overtask.Task{}, overtask.NotFoundf("task %s", id)
	}
	return t.Clone(), nil
}

func (m *MemoryRepository) InsertTask(_ context.Context, t overtask.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[t.UserID]; !ok {
		return overtask.NotFoundf("user %s", t.UserID)
	}
	if _, ok := m.tasks[t.ID]; ok {
		return fmt.Errorf("task %s: %w", t.ID, ErrConflict)
	}
	m.tasks[t.ID] = t.Clone()
	return nil
}

func (m *MemoryRepository) ModifyTask(_ context.Context, id string, fn func(t *overtask.Task) error) (overtask.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.tasks[id]
	if !ok {
		return overtask.Task{}, overtask.NotFoundf("task %s", id)
	}
	next := current.Clone()
	if err := fn(&next); err != nil {
		return overtask.Task{}, err
	}
	next.ID = id
	m.tasks[id] = next.Clone()
	return next, nil
}

func (m *MemoryRepository) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return overtask.NotFoundf("task %s", id)
	}
	delete(m.tasks, id)
	return nil
}

func (m *MemoryRepository) Close() {}
