// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package tasksync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mobiletoly/go-overtask/internal/clock"
	"github.com/mobiletoly/go-overtask/overtask"
	"github.com/mobiletoly/go-overtask/tasklite"
)

// CycleReport summarizes one gate decision and, when it ran, the cycle
type CycleReport struct {
	Outcome    string
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Offline    bool
	Err        error // store failure or recovered panic

	UsersReconciled int
	UsersPromoted   int
	UserFailures    int

	TasksVerified    int
	TasksPromoted    int
	TasksRepublished int
	TasksPushed      int
	TaskFailures     int
}

// Ran reports whether the cycle passed the gate
func (r CycleReport) Ran() bool {
	return r.Outcome != OutcomeBusy && r.Outcome != OutcomeRateLimited
}

// Engine runs gated reconciliation cycles between the local store and the
// backend. At most one cycle is in flight; requests that find a cycle running
// or arrive before MinInterval are dropped.
type Engine struct {
	store     Store
	remote    Remote
	publisher *Publisher
	conn      Connectivity
	cfg       *Config
	clock     clock.Clock
	logger    *slog.Logger
	gate      *gate

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	periodic    clock.Timer
	wg          sync.WaitGroup
}

// NewEngine creates an engine. A nil publisher gets one built on store and
// remote; a nil conn is treated as always online.
func NewEngine(store Store, remote Remote, publisher *Publisher, conn Connectivity, cfg *Config) *Engine {
	cfg = cfg.withDefaults()
	if publisher == nil {
		publisher = NewPublisher(store, remote, cfg.Logger)
	}
	if conn == nil {
		conn = NewManualConnectivity(true)
	}
	return &Engine{
		store:     store,
		remote:    remote,
		publisher: publisher,
		conn:      conn,
		cfg:       cfg,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		gate:      newGate(cfg.Clock, cfg.DebounceInterval, cfg.MinInterval),
	}
}

// Trigger requests a cycle after the debounce interval
func (e *Engine) Trigger() {
	e.gate.schedule(e.fire)
}

func (e *Engine) fire() {
	ctx := e.baseContext()
	if ctx.Err() != nil {
		return
	}
	if _, err := e.RunOnce(ctx); err != nil {
		e.logger.Debug("Sync trigger dropped", "reason", err)
	}
}

// RunOnce runs a cycle now, skipping the debounce window. It returns
// ErrCycleRunning or ErrRateLimited when the gate rejects the request.
func (e *Engine) RunOnce(ctx context.Context) (CycleReport, error) {
	if err := e.gate.acquire(); err != nil {
		report := CycleReport{Outcome: OutcomeBusy, StartedAt: e.clock.Now()}
		if errors.Is(err, ErrRateLimited) {
			report.Outcome = OutcomeRateLimited
		}
		e.cfg.Metrics.ObserveCycle(ctx, report)
		return report, err
	}
	defer e.gate.release()

	report := e.cycle(ctx)
	e.cfg.Metrics.ObserveCycle(ctx, report)
	if e.cfg.OnCycle != nil {
		e.cfg.OnCycle(report)
	}
	return report, nil
}

// Start subscribes to connectivity changes, requests an initial cycle and
// schedules periodic ones. Calling Start on a started engine is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	ch, unsubscribe := e.conn.Subscribe()
	e.unsubscribe = unsubscribe
	runCtx := e.ctx
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.watchConnectivity(runCtx, ch)
	}()

	e.logger.Info("Sync engine started",
		"debounce", e.cfg.DebounceInterval,
		"min_interval", e.cfg.MinInterval,
		"sync_interval", e.cfg.SyncInterval)
	e.Trigger()
	e.schedulePeriodic()
}

// Stop cancels pending triggers and waits for the connectivity watcher.
// A cycle already running finishes with a cancelled context.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.cancel == nil {
		e.mu.Unlock()
		return
	}
	e.cancel()
	e.cancel = nil
	e.unsubscribe()
	if e.periodic != nil {
		e.periodic.Stop()
		e.periodic = nil
	}
	e.mu.Unlock()

	e.gate.cancel()
	e.wg.Wait()
	e.logger.Info("Sync engine stopped")
}

// watchConnectivity triggers on every delivered true. Only changes are
// delivered, so a true always ends an offline period, even when the offline
// value itself was overwritten before it was read.
func (e *Engine) watchConnectivity(ctx context.Context, ch <-chan bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-ch:
			if !ok {
				return
			}
			if online {
				e.logger.Info("Connectivity restored, scheduling sync")
				e.Trigger()
			}
		}
	}
}

func (e *Engine) schedulePeriodic() {
	if e.cfg.SyncInterval <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel == nil {
		return
	}
	e.periodic = e.clock.AfterFunc(e.cfg.SyncInterval, func() {
		e.Trigger()
		e.schedulePeriodic()
	})
}

func (e *Engine) baseContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx != nil {
		return e.ctx
	}
	return context.Background()
}

// cycle reconciles users, then their tasks, then records the sync state.
// The sync state is written even when reconciliation fails or panics.
func (e *Engine) cycle(ctx context.Context) (report CycleReport) {
	report.StartedAt = e.clock.Now()
	online := e.conn.Online()
	report.Offline = !online

	func() {
		defer func() {
			if r := recover(); r != nil {
				report.Outcome = OutcomeFailed
				report.Err = fmt.Errorf("sync cycle panic: %v", r)
				e.logger.Error("Recovered panic in sync cycle", "panic", r)
			}
		}()
		if !online {
			report.Outcome = OutcomeOffline
			return
		}
		if err := e.reconcile(ctx, &report); err != nil {
			report.Outcome = OutcomeFailed
			report.Err = err
			e.logger.Error("Sync cycle failed", "error", err)
			return
		}
		report.Outcome = OutcomeCompleted
	}()

	now := e.clock.Now()
	state := overtask.SyncState{ID: overtask.SyncStateID, LastSync: now, IsOnline: online}
	if err := e.store.UpsertSyncState(ctx, state); err != nil {
		e.logger.Error("Failed to record sync state", "error", err)
		if report.Err == nil {
			report.Outcome = OutcomeFailed
			report.Err = err
		}
	}
	report.FinishedAt = now
	report.Duration = now.Sub(report.StartedAt)

	e.logger.Info("Sync cycle finished",
		"outcome", report.Outcome,
		"users", report.UsersReconciled,
		"tasks_verified", report.TasksVerified,
		"tasks_promoted", report.TasksPromoted,
		"task_failures", report.TaskFailures,
		"duration", report.Duration)
	return report
}

func (e *Engine) reconcile(ctx context.Context, report *CycleReport) error {
	users, err := e.store.FindUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}

	var reconciled []string
	for _, u := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		id, err := e.reconcileUser(ctx, u, report)
		if err != nil {
			report.UserFailures++
			e.logger.Warn("Failed to reconcile user", "user_id", u.ID, "error", err)
			continue
		}
		report.UsersReconciled++
		reconciled = append(reconciled, id)
	}

	for _, userID := range reconciled {
		tasks, err := e.store.FindTasks(ctx, tasklite.TaskQuery{UserID: userID})
		if err != nil {
			return fmt.Errorf("failed to load tasks of user %s: %w", userID, err)
		}
		for _, t := range tasks {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.reconcileTask(ctx, t, report)
		}
	}
	return nil
}

// reconcileUser returns the server identity of u, promoting the local
// record when the server assigned a different one
func (e *Engine) reconcileUser(ctx context.Context, u overtask.User, report *CycleReport) (string, error) {
	if !overtask.IsLocalUserID(u.ID) {
		if _, err := e.remote.GetUserByID(ctx, u.ID); err == nil {
			return u.ID, nil
		}
	}
	remote, err := e.remote.CreateOrGetUser(ctx, overtask.CreateUserRequest{Name: u.Name})
	if err != nil {
		return "", err
	}
	if remote.ID != u.ID {
		if err := e.store.PromoteUser(ctx, u.ID, remote); err != nil {
			return "", fmt.Errorf("failed to promote user: %w", err)
		}
		report.UsersPromoted++
		e.logger.Info("Promoted user", "local_id", u.ID, "user_id", remote.ID)
	}
	return remote.ID, nil
}

// reconcileTask publishes locally-minted tasks and verifies server ones.
// A server task is re-created only when the lookup reports NotFound; any
// other lookup failure is logged and left for the next cycle, so a flaky
// backend cannot produce duplicate remote copies.
func (e *Engine) reconcileTask(ctx context.Context, t overtask.Task, report *CycleReport) {
	if t.IsLocal() {
		e.publish(ctx, t.ID, &report.TasksPromoted, report)
		return
	}

	remote, err := e.remote.GetTaskByID(ctx, t.ID)
	switch {
	case err == nil:
		report.TasksVerified++
		if t.UpdatedAt.After(remote.UpdatedAt) {
			if err := e.publisher.Push(ctx, t, remote); err != nil {
				report.TaskFailures++
				e.logger.Warn("Failed to push task changes", "task_id", t.ID, "error", err)
				return
			}
			report.TasksPushed++
		}
	case errors.Is(err, overtask.ErrNotFound):
		e.publish(ctx, t.ID, &report.TasksRepublished, report)
	default:
		report.TaskFailures++
		e.logger.Warn("Failed to verify task", "task_id", t.ID, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, id string, counter *int, report *CycleReport) {
	_, err := e.publisher.Publish(ctx, id)
	switch {
	case err == nil:
		*counter++
	case errors.Is(err, ErrAlreadyPublished):
	default:
		report.TaskFailures++
		e.logger.Warn("Failed to publish task", "task_id", id, "error", err)
	}
}
