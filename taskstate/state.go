// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package taskstate exposes a subscribable projection of one user's tasks.
// Mutations are written to the local store first and then sent to the
// backend best-effort; remote failures never fail an operation.
package taskstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mobiletoly/go-overtask/internal/clock"
	"github.com/mobiletoly/go-overtask/overtask"
	"github.com/mobiletoly/go-overtask/tasklite"
	"github.com/mobiletoly/go-overtask/tasksync"
)

// SchemaResetMessage is shown after the local store was rebuilt
const SchemaResetMessage = "Database schema updated. Please try creating the task again."

// ErrNoSession is returned by user-scoped operations before Login
var ErrNoSession = errors.New("no user logged in")

// Store is the local store surface used by the facade. *tasklite.Store implements it.
type Store interface {
	tasksync.Store
	FindUserByName(ctx context.Context, name string) (overtask.User, error)
	UpsertUser(ctx context.Context, u overtask.User) error
	UpsertTask(ctx context.Context, t overtask.Task) error
	MergeTask(ctx context.Context, t overtask.Task) (bool, error)
	MutateTask(ctx context.Context, id string, fn func(t *overtask.Task) error) (overtask.Task, error)
	Reset(ctx context.Context) error
}

var _ Store = (*tasklite.Store)(nil)

// Config holds facade dependencies
type Config struct {
	Clock        clock.Clock
	Logger       *slog.Logger
	Publisher    *tasksync.Publisher   // share with the engine; nil builds a private one
	Connectivity tasksync.Connectivity // optional; remote calls are skipped while offline
}

// Snapshot is an immutable view of the facade state
type Snapshot struct {
	User      *overtask.User
	Tasks     []overtask.Task // createdAt descending
	IsLoading bool
	Warning   string // last remote failure, cleared by the next remote success
	Error     string // last local failure, cleared by the next successful operation
}

func (s Snapshot) clone() Snapshot {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	out.Tasks = make([]overtask.Task, len(s.Tasks))
	for i, t := range s.Tasks {
		out.Tasks[i] = t.Clone()
	}
	return out
}

// State is the reactive facade over the local store and the backend
type State struct {
	store     Store
	remote    tasksync.Remote
	publisher *tasksync.Publisher
	dedup     *tasksync.DedupResolver
	conn      tasksync.Connectivity
	clock     clock.Clock
	logger    *slog.Logger

	reloadMu sync.Mutex
	mu       sync.RWMutex
	snap     Snapshot
	subs     map[int]chan Snapshot
	nextSub  int

	inflight sync.WaitGroup
}

func New(store Store, remote tasksync.Remote, cfg *Config) *State {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewReal()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = tasksync.NewPublisher(store, remote, logger)
	}
	return &State{
		store:     store,
		remote:    remote,
		publisher: publisher,
		dedup:     tasksync.NewDedupResolver(store, logger),
		conn:      cfg.Connectivity,
		clock:     clk,
		logger:    logger,
		subs:      make(map[int]chan Snapshot),
	}
}

// Snapshot returns a copy of the current state
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

// Subscribe delivers every state change. A slow subscriber only sees the
// latest snapshot. The returned function unsubscribes.
func (s *State) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// update applies fn to the state and notifies subscribers
func (s *State) update(fn func(snap *Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
	for _, ch := range s.subs {
		snap := s.snap.clone()
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

// SetError replaces the user-visible error message
func (s *State) SetError(msg string) {
	s.update(func(snap *Snapshot) { snap.Error = msg })
}

func (s *State) fail(err error) error {
	s.SetError(err.Error())
	return err
}

func (s *State) succeed() {
	s.update(func(snap *Snapshot) { snap.Error = "" })
}

func (s *State) userID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap.User == nil {
		return "", ErrNoSession
	}
	return s.snap.User.ID, nil
}

func (s *State) online() bool {
	return s.conn == nil || s.conn.Online()
}

// Login starts a session for name. The backend identity is preferred; when
// the backend is unreachable an existing local user with that name is reused,
// otherwise a local identity is minted.
func (s *State) Login(ctx context.Context, name string) (overtask.User, error) {
	if err := overtask.RequireText("name", name); err != nil {
		return overtask.User{}, s.fail(err)
	}

	user, err := s.resolveUser(ctx, name)
	if err != nil {
		return overtask.User{}, s.fail(err)
	}
	s.update(func(snap *Snapshot) {
		snap.User = &user
		snap.Tasks = nil
	})
	if err := s.Reload(ctx); err != nil {
		return user, err
	}
	s.succeed()
	return user, nil
}

func (s *State) resolveUser(ctx context.Context, name string) (overtask.User, error) {
	local, lerr := s.store.FindUserByName(ctx, name)
	if lerr != nil && !errors.Is(lerr, overtask.ErrNotFound) {
		return overtask.User{}, lerr
	}
	hasLocal := lerr == nil

	if s.online() {
		remote, err := s.remote.CreateOrGetUser(ctx, overtask.CreateUserRequest{Name: name})
		if err == nil {
			s.clearWarning()
			if hasLocal && local.ID != remote.ID {
				if err := s.store.PromoteUser(ctx, local.ID, remote); err != nil {
					return overtask.User{}, err
				}
				return remote, nil
			}
			if err := s.store.UpsertUser(ctx, remote); err != nil {
				return overtask.User{}, err
			}
			return remote, nil
		}
		s.warn("login", err)
	}

	if hasLocal {
		return local, nil
	}
	now := s.clock.Now()
	user := overtask.User{ID: overtask.NewLocalUserID(now), Name: name, CreatedAt: now}
	if err := s.store.UpsertUser(ctx, user); err != nil {
		return overtask.User{}, err
	}
	s.logger.Info("Created local user", "user_id", user.ID)
	return user, nil
}

// Reload replaces the projection with the current local task set
func (s *State) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	userID, err := s.userID()
	if err != nil {
		return err
	}
	tasks, err := s.store.FindTasks(ctx, tasklite.TaskQuery{
		UserID:     userID,
		SortBy:     tasklite.SortByCreatedAt,
		Descending: true,
	})
	if err != nil {
		return s.fail(fmt.Errorf("failed to load tasks: %w", err))
	}
	s.update(func(snap *Snapshot) { snap.Tasks = tasks })
	return nil
}

// Fetch removes local duplicates, merges the backend task set into the local
// store and reloads the projection. Remote failures leave the local set as is.
func (s *State) Fetch(ctx context.Context) error {
	userID, err := s.userID()
	if err != nil {
		return s.fail(err)
	}
	s.update(func(snap *Snapshot) { snap.IsLoading = true })
	defer s.update(func(snap *Snapshot) { snap.IsLoading = false })

	if _, err := s.dedup.Resolve(ctx, userID); err != nil {
		return s.fail(err)
	}

	if s.online() {
		if err := s.mergeRemote(ctx, userID); err != nil {
			if errors.Is(err, errLocal) {
				return s.fail(err)
			}
			s.warn("fetch", err)
		} else {
			s.clearWarning()
		}
	}

	if err := s.Reload(ctx); err != nil {
		return err
	}
	s.succeed()
	return nil
}

var errLocal = errors.New("local store")

func (s *State) mergeRemote(ctx context.Context, userID string) error {
	remote, err := s.remote.GetTasksByUserID(ctx, userID)
	if err != nil {
		return err
	}
	applied := 0
	for _, t := range remote {
		ok, err := s.store.MergeTask(ctx, t)
		if err != nil {
			return fmt.Errorf("%w: failed to merge task %s: %w", errLocal, t.ID, err)
		}
		if ok {
			applied++
		}
	}
	s.logger.Debug("Merged remote tasks", "user_id", userID, "received", len(remote), "applied", applied)
	return nil
}

// CleanupDuplicates runs the dedup pass for the session user
func (s *State) CleanupDuplicates(ctx context.Context) (tasksync.DedupReport, error) {
	userID, err := s.userID()
	if err != nil {
		return tasksync.DedupReport{}, s.fail(err)
	}
	report, err := s.dedup.Resolve(ctx, userID)
	if err != nil {
		return report, s.fail(err)
	}
	if err := s.Reload(ctx); err != nil {
		return report, err
	}
	s.succeed()
	return report, nil
}

// ClearDatabaseAndRetry rebuilds the local store after a schema failure.
// Local records are lost; the session user is kept.
func (s *State) ClearDatabaseAndRetry(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return s.fail(fmt.Errorf("failed to reset local store: %w", err))
	}
	s.mu.RLock()
	user := s.snap.User
	s.mu.RUnlock()
	if user != nil {
		if err := s.store.UpsertUser(ctx, *user); err != nil {
			return s.fail(err)
		}
		if err := s.Reload(ctx); err != nil {
			return err
		}
	}
	s.SetError(SchemaResetMessage)
	return nil
}

// OnSyncCycle reloads the projection after a cycle that changed identities.
// Use it as tasksync.Config.OnCycle.
func (s *State) OnSyncCycle(report tasksync.CycleReport) {
	if report.UsersPromoted > 0 {
		s.refreshSessionUser(context.Background())
	}
	if report.UsersPromoted+report.TasksPromoted+report.TasksRepublished == 0 {
		return
	}
	if err := s.Reload(context.Background()); err != nil && !errors.Is(err, ErrNoSession) {
		s.logger.Warn("Failed to reload after sync cycle", "error", err)
	}
}

// refreshSessionUser follows a promoted session user to its server identity
func (s *State) refreshSessionUser(ctx context.Context) {
	s.mu.RLock()
	user := s.snap.User
	s.mu.RUnlock()
	if user == nil || !overtask.IsLocalUserID(user.ID) {
		return
	}
	promoted, err := s.store.FindUserByName(ctx, user.Name)
	if err != nil || promoted.ID == user.ID {
		return
	}
	s.update(func(snap *Snapshot) { snap.User = &promoted })
}

// Wait blocks until every opportunistic remote call has finished
func (s *State) Wait() {
	s.inflight.Wait()
}

func (s *State) warn(op string, err error) {
	s.logger.Warn("Remote call failed; changes kept locally", "op", op, "error", err)
	s.update(func(snap *Snapshot) { snap.Warning = fmt.Sprintf("%s: %v", op, err) })
}

func (s *State) clearWarning() {
	s.update(func(snap *Snapshot) { snap.Warning = "" })
}

// opportunistic runs call in the background unless offline
func (s *State) opportunistic(ctx context.Context, op string, call func(ctx context.Context) error) *Pending {
	if !s.online() {
		return resolved(overtask.ErrRemoteUnavailable)
	}
	p := newPending()
	ctx = context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		err := call(ctx)
		if err != nil {
			s.warn(op, err)
		} else {
			s.clearWarning()
		}
		p.resolve(err)
	}()
	return p
}
