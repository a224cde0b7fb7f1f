// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package tasksync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobiletoly/go-overtask/overtask"
	"github.com/mobiletoly/go-overtask/tasklite"
)

func TestEnginePromotesLocalRecords(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.putUser(t, "user_1_aaaaaaaaa", "alice")
	task := h.putTask(t, "task_1_bbbbbbbbb", "user_1_aaaaaaaaa", "Pour foundation", t0)
	task.Checklist = []overtask.ChecklistItem{{ID: "item_1_ccccccccc", Text: "Inspect rebar", Status: overtask.StatusCompleted, CreatedAt: t0}}
	require.NoError(t, h.store.UpsertTask(ctx, task))

	e := NewEngine(h.store, h.remote, nil, nil, h.engineConfig())
	report, err := e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, report.Outcome)
	assert.Equal(t, 1, report.UsersReconciled)
	assert.Equal(t, 1, report.UsersPromoted)
	assert.Equal(t, 1, report.TasksPromoted)
	assert.Zero(t, report.TaskFailures)

	users, err := h.store.FindUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.False(t, overtask.IsLocalUserID(users[0].ID))

	local, err := h.store.FindTasks(ctx, tasklite.TaskQuery{UserID: users[0].ID})
	require.NoError(t, err)
	require.Len(t, local, 1)
	require.False(t, local[0].IsLocal())
	_, err = h.store.FindTask(ctx, "task_1_bbbbbbbbb")
	require.ErrorIs(t, err, overtask.ErrNotFound)

	remote, err := h.remote.GetTaskByID(ctx, local[0].ID)
	require.NoError(t, err)
	require.Equal(t, "Pour foundation", remote.Title)
	require.Len(t, remote.Checklist, 1)
	require.Equal(t, "item_1_ccccccccc", remote.Checklist[0].ID)
	require.Equal(t, overtask.StatusCompleted, remote.Checklist[0].Status)

	st, err := h.store.SyncState(ctx)
	require.NoError(t, err)
	require.True(t, st.IsOnline)
	require.True(t, t0.Equal(st.LastSync))
}

func TestEngineOfflineStillRecordsSyncState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.putUser(t, "user_1_aaaaaaaaa", "alice")
	h.putTask(t, "task_1_bbbbbbbbb", "user_1_aaaaaaaaa", "Pour foundation", t0)

	e := NewEngine(h.store, h.remote, nil, NewManualConnectivity(false), h.engineConfig())
	report, err := e.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, OutcomeOffline, report.Outcome)
	require.True(t, report.Offline)

	_, err = h.store.FindTask(ctx, "task_1_bbbbbbbbb")
	require.NoError(t, err, "offline cycle must not touch records")

	st, err := h.store.SyncState(ctx)
	require.NoError(t, err)
	require.False(t, st.IsOnline)
	require.Equal(t, overtask.SyncStateID, st.ID)
}

func TestEngineRateLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	e := NewEngine(h.store, h.remote, nil, nil, h.engineConfig())

	_, err := e.RunOnce(ctx)
	require.NoError(t, err)

	h.clock.Advance(4 * time.Second)
	report, err := e.RunOnce(ctx)
	require.ErrorIs(t, err, ErrRateLimited)
	require.Equal(t, OutcomeRateLimited, report.Outcome)
	require.False(t, report.Ran())

	h.clock.Advance(time.Second)
	_, err = e.RunOnce(ctx)
	require.NoError(t, err)
}

func TestEngineMutualExclusion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	store := &hookStore{
		Store: h.store,
		findUsers: func(ctx context.Context) ([]overtask.User, error) {
			close(entered)
			<-release
			return h.store.FindUsers(ctx)
		},
	}
	e := NewEngine(store, h.remote, nil, nil, h.engineConfig())

	done := make(chan error, 1)
	go func() {
		_, err := e.RunOnce(ctx)
		done <- err
	}()
	<-entered

	for i := 0; i < 3; i++ {
		_, err := e.RunOnce(ctx)
		require.ErrorIs(t, err, ErrCycleRunning)
	}
	close(release)
	require.NoError(t, <-done)

	// dropped requests did not consume the rate budget
	h.clock.Advance(5 * time.Second)
	store.findUsers = nil
	_, err := e.RunOnce(ctx)
	require.NoError(t, err)
}

func TestEngineDebounceCoalescesTriggers(t *testing.T) {
	h := newHarness(t)
	log := &cycleLog{}
	cfg := h.engineConfig()
	cfg.Metrics = MetricsRecorderFunc(log.observe)
	e := NewEngine(h.store, h.remote, nil, nil, cfg)

	e.Trigger()
	h.clock.Advance(500 * time.Millisecond)
	e.Trigger()
	e.Trigger()
	outcomes, _ := log.snapshot()
	require.Empty(t, outcomes)
	require.True(t, e.gate.pending())

	h.clock.Advance(500 * time.Millisecond)
	require.Equal(t, []string{OutcomeCompleted}, log.waitFor(t, e, 1))

	// inside the rate window the debounced trigger is dropped
	e.Trigger()
	h.clock.Advance(time.Second)
	require.Equal(t, OutcomeRateLimited, log.waitFor(t, e, 2)[1])

	h.clock.Advance(4 * time.Second)
	e.Trigger()
	h.clock.Advance(time.Second)
	require.Equal(t, OutcomeCompleted, log.waitFor(t, e, 3)[2])
}

func TestEngineRecoversPanic(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	store := &hookStore{
		Store: h.store,
		findUsers: func(context.Context) ([]overtask.User, error) {
			panic("disk on fire")
		},
	}
	e := NewEngine(store, h.remote, nil, nil, h.engineConfig())

	report, err := e.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, report.Outcome)
	require.ErrorContains(t, report.Err, "disk on fire")

	st, err := h.store.SyncState(ctx)
	require.NoError(t, err)
	require.True(t, st.IsOnline)

	// the gate was released
	h.clock.Advance(5 * time.Second)
	_, err = e.RunOnce(ctx)
	require.NoError(t, err)
}

func TestEngineRepublishesTaskMissingRemotely(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	user, err := h.remote.CreateOrGetUser(ctx, overtask.CreateUserRequest{Name: "alice"})
	require.NoError(t, err)
	h.putUser(t, user.ID, user.Name)
	created, err := h.remote.CreateTask(ctx, overtask.CreateTaskRequest{UserID: user.ID, Title: "Pour foundation"})
	require.NoError(t, err)
	h.putTask(t, created.ID, user.ID, created.Title, t0)
	require.NoError(t, h.remote.DeleteTask(ctx, created.ID))

	e := NewEngine(h.store, h.remote, nil, nil, h.engineConfig())
	report, err := e.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.TasksRepublished)

	local, err := h.store.FindTasks(ctx, tasklite.TaskQuery{UserID: user.ID})
	require.NoError(t, err)
	require.Len(t, local, 1)
	require.NotEqual(t, created.ID, local[0].ID)

	remote, err := h.remote.GetTasksByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, remote, 1)
	require.Equal(t, local[0].ID, remote[0].ID)
}

func TestEnginePushesNewerLocalChanges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	user, err := h.remote.CreateOrGetUser(ctx, overtask.CreateUserRequest{Name: "alice"})
	require.NoError(t, err)
	h.putUser(t, user.ID, user.Name)
	created, err := h.remote.CreateTask(ctx, overtask.CreateTaskRequest{UserID: user.ID, Title: "Pour foundation"})
	require.NoError(t, err)

	local := h.putTask(t, created.ID, user.ID, "Pour foundation slab", created.UpdatedAt.Add(time.Hour))
	local.Status = overtask.StatusInProgress
	require.NoError(t, h.store.UpsertTask(ctx, local))

	e := NewEngine(h.store, h.remote, nil, nil, h.engineConfig())
	report, err := e.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.TasksVerified)
	require.Equal(t, 1, report.TasksPushed)

	remote, err := h.remote.GetTaskByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Pour foundation slab", remote.Title)
	require.Equal(t, overtask.StatusInProgress, remote.Status)
}

func TestEngineStartTriggersOnReconnectAndPeriodically(t *testing.T) {
	h := newHarness(t)
	conn := NewManualConnectivity(false)
	log := &cycleLog{}
	cfg := h.engineConfig()
	cfg.SyncInterval = 30 * time.Second
	cfg.Metrics = MetricsRecorderFunc(log.observe)
	e := NewEngine(h.store, h.remote, nil, conn, cfg)
	e.Start(context.Background())
	t.Cleanup(e.Stop)

	h.clock.Advance(time.Second)
	log.waitFor(t, e, 1)
	_, offline := log.snapshot()
	require.Equal(t, 1, offline)

	h.clock.Advance(5 * time.Second)
	conn.Set(true)
	require.Eventually(t, e.gate.pending, time.Second, 5*time.Millisecond)
	h.clock.Advance(time.Second)
	require.Equal(t, OutcomeCompleted, log.waitFor(t, e, 2)[1])

	// periodic timer at 30s, debounced by another second
	h.clock.Advance(24 * time.Second)
	require.Eventually(t, e.gate.pending, time.Second, 5*time.Millisecond)
	h.clock.Advance(time.Second)
	require.Equal(t, OutcomeCompleted, log.waitFor(t, e, 3)[2])

	e.Stop()
	h.clock.Advance(time.Minute)
	require.Never(t, func() bool {
		outcomes, _ := log.snapshot()
		return len(outcomes) != 3
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestEngineReconnectTriggersAfterCollapsedOfflinePeriod(t *testing.T) {
	h := newHarness(t)
	conn := NewManualConnectivity(true)
	e := NewEngine(h.store, h.remote, nil, conn, h.engineConfig())

	ch, unsubscribe := conn.Subscribe()
	defer unsubscribe()
	// the offline value is overwritten before the watcher reads it
	conn.Set(false)
	conn.Set(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.watchConnectivity(ctx, ch)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, e.gate.pending, time.Second, 5*time.Millisecond)
	e.gate.cancel()
}
