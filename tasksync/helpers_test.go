// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package tasksync

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mobiletoly/go-overtask/internal/clock"
	"github.com/mobiletoly/go-overtask/overtask"
	"github.com/mobiletoly/go-overtask/taskremote"
	"github.com/mobiletoly/go-overtask/tasklite"
	"github.com/mobiletoly/go-overtask/taskserver"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

var quietLogger = slog.New(slog.DiscardHandler)

type harness struct {
	store  *tasklite.Store
	clock  *clock.Fake
	remote *taskremote.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	clk := clock.NewFake(t0)
	store, err := tasklite.Open(ctx, ":memory:", &tasklite.Options{Clock: clk, Logger: quietLogger})
	require.NoError(t, err)

	cfg := taskserver.DefaultServerConfig()
	cfg.Logger = quietLogger
	components, err := taskserver.SetupServer(ctx, cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(components.Handler)

	t.Cleanup(func() {
		srv.Close()
		components.Close()
		_ = store.Close()
	})
	return &harness{
		store:  store,
		clock:  clk,
		remote: taskremote.NewClient(&taskremote.Config{BaseURL: srv.URL + "/api", Timeout: 5 * time.Second, Logger: quietLogger}),
	}
}

func (h *harness) engineConfig() *Config {
	return &Config{
		DebounceInterval: time.Second,
		MinInterval:      5 * time.Second,
		Clock:            h.clock,
		Logger:           quietLogger,
	}
}

func (h *harness) putUser(t *testing.T, id, name string) overtask.User {
	t.Helper()
	u := overtask.User{ID: id, Name: name, CreatedAt: t0}
	require.NoError(t, h.store.UpsertUser(context.Background(), u))
	return u
}

func (h *harness) putTask(t *testing.T, id, userID, title string, updatedAt time.Time) overtask.Task {
	t.Helper()
	task := overtask.Task{
		ID:        id,
		UserID:    userID,
		Title:     title,
		Status:    overtask.StatusNotStarted,
		Checklist: []overtask.ChecklistItem{},
		CreatedAt: t0,
		UpdatedAt: updatedAt,
	}
	require.NoError(t, h.store.UpsertTask(context.Background(), task))
	return task
}

// hookStore overrides selected Store methods
type hookStore struct {
	Store
	findUsers   func(ctx context.Context) ([]overtask.User, error)
	promoteTask func(ctx context.Context, oldID, newID string, remoteUpdatedAt time.Time) (overtask.Task, error)
}

func (h *hookStore) FindUsers(ctx context.Context) ([]overtask.User, error) {
	if h.findUsers != nil {
		return h.findUsers(ctx)
	}
	return h.Store.FindUsers(ctx)
}

func (h *hookStore) PromoteTask(ctx context.Context, oldID, newID string, remoteUpdatedAt time.Time) (overtask.Task, error) {
	if h.promoteTask != nil {
		return h.promoteTask(ctx, oldID, newID, remoteUpdatedAt)
	}
	return h.Store.PromoteTask(ctx, oldID, newID, remoteUpdatedAt)
}

// cycleLog records every gate decision; debounced cycles run on timer goroutines
type cycleLog struct {
	mu       sync.Mutex
	outcomes []string
	offline  int
}

func (l *cycleLog) observe(_ context.Context, r CycleReport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, r.Outcome)
	if r.Offline {
		l.offline++
	}
}

func (l *cycleLog) snapshot() ([]string, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.outcomes), l.offline
}

// waitFor blocks until n decisions were observed and the gate is free again
func (l *cycleLog) waitFor(t *testing.T, e *Engine, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool {
		outcomes, _ := l.snapshot()
		return len(outcomes) >= n && !e.gate.running.Load()
	}, 2*time.Second, 5*time.Millisecond)
	outcomes, _ := l.snapshot()
	require.Len(t, outcomes, n)
	return outcomes
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }
