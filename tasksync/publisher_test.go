// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package tasksync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mobiletoly/go-overtask/overtask"
)

func TestPublisherPublishOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	user, err := h.remote.CreateOrGetUser(ctx, overtask.CreateUserRequest{Name: "alice"})
	require.NoError(t, err)
	h.putTask(t, "task_1_aaaaaaaaa", user.ID, "Pour foundation", t0)

	p := NewPublisher(h.store, h.remote, quietLogger)
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Publish(ctx, "task_1_aaaaaaaaa")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrAlreadyPublished)
		}
	}

	_, err = p.Publish(ctx, "task_1_aaaaaaaaa")
	require.ErrorIs(t, err, ErrAlreadyPublished)

	remote, err := h.remote.GetTasksByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, remote, 1)

	local, err := h.store.FindTask(ctx, remote[0].ID)
	require.NoError(t, err)
	require.Equal(t, "Pour foundation", local.Title)
	require.True(t, local.UpdatedAt.After(remote[0].UpdatedAt) || local.UpdatedAt.Equal(remote[0].UpdatedAt))
}

func TestPublisherCompensatesWhenDeletedDuringCreate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	user, err := h.remote.CreateOrGetUser(ctx, overtask.CreateUserRequest{Name: "alice"})
	require.NoError(t, err)
	h.putTask(t, "task_1_aaaaaaaaa", user.ID, "Pour foundation", t0)

	store := &hookStore{Store: h.store}
	store.promoteTask = func(ctx context.Context, oldID, newID string, remoteUpdatedAt time.Time) (overtask.Task, error) {
		require.NoError(t, h.store.RemoveTask(ctx, oldID))
		return h.store.PromoteTask(ctx, oldID, newID, remoteUpdatedAt)
	}

	p := NewPublisher(store, h.remote, quietLogger)
	_, err = p.Publish(ctx, "task_1_aaaaaaaaa")
	require.ErrorIs(t, err, ErrAlreadyPublished)

	remote, err := h.remote.GetTasksByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Empty(t, remote)
}

func TestPublisherPushChecklistDiff(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	user, err := h.remote.CreateOrGetUser(ctx, overtask.CreateUserRequest{Name: "alice"})
	require.NoError(t, err)
	created, err := h.remote.CreateTask(ctx, overtask.CreateTaskRequest{UserID: user.ID, Title: "Pour foundation"})
	require.NoError(t, err)
	for _, it := range []overtask.CreateChecklistItemRequest{
		{ID: "item_a", Text: "Inspect rebar"},
		{ID: "item_b", Text: "Order concrete"},
	} {
		_, err := h.remote.AddChecklistItem(ctx, created.ID, it)
		require.NoError(t, err)
	}
	remote, err := h.remote.GetTaskByID(ctx, created.ID)
	require.NoError(t, err)

	local := remote.Clone()
	local.Description = "north lot"
	local.Checklist = []overtask.ChecklistItem{
		{ID: "item_a", Text: "Inspect rebar", Status: overtask.StatusCompleted, CreatedAt: t0},
		{ID: "item_c", Text: "Cure slab", Status: overtask.StatusBlocked, CreatedAt: t0},
	}

	p := NewPublisher(h.store, h.remote, quietLogger)
	require.NoError(t, p.Push(ctx, local, remote))

	got, err := h.remote.GetTaskByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "north lot", got.Description)
	require.Len(t, got.Checklist, 2)
	require.Equal(t, -1, got.ChecklistIndex("item_b"))
	a := got.Checklist[got.ChecklistIndex("item_a")]
	require.Equal(t, overtask.StatusCompleted, a.Status)
	c := got.Checklist[got.ChecklistIndex("item_c")]
	require.Equal(t, "Cure slab", c.Text)
	require.Equal(t, overtask.StatusBlocked, c.Status)

	// nothing left to push
	require.NoError(t, p.Push(ctx, got, got))
}
