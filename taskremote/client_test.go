// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package taskremote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mobiletoly/go-overtask/overtask"
	"github.com/mobiletoly/go-overtask/taskserver"
)

func newBackend(t *testing.T, secret string) (*httptest.Server, *taskserver.ServerComponents) {
	t.Helper()
	cfg := taskserver.DefaultServerConfig()
	cfg.JWTSecret = secret
	components, err := taskserver.SetupServer(context.Background(), cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(components.Handler)
	t.Cleanup(func() {
		srv.Close()
		components.Close()
	})
	return srv, components
}

func TestClientAgainstBackend(t *testing.T) {
	ctx := context.Background()
	srv, _ := newBackend(t, "")
	c := NewClient(&Config{BaseURL: srv.URL + "/api/", Timeout: 5 * time.Second})

	user, err := c.CreateOrGetUser(ctx, overtask.CreateUserRequest{Name: "alice"})
	require.NoError(t, err)
	got, err := c.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, user, got)

	task, err := c.CreateTask(ctx, overtask.CreateTaskRequest{UserID: user.ID, Title: "Pour foundation"})
	require.NoError(t, err)
	require.Equal(t, overtask.StatusNotStarted, task.Status)

	status := overtask.StatusBlocked
	updated, err := c.UpdateTask(ctx, task.ID, overtask.UpdateTaskRequest{Status: &status, Position: &overtask.Position{X: 4, Y: 5}})
	require.NoError(t, err)
	require.Equal(t, overtask.StatusBlocked, updated.Status)
	require.Equal(t, &overtask.Position{X: 4, Y: 5}, updated.Position)

	item, err := c.AddChecklistItem(ctx, task.ID, overtask.CreateChecklistItemRequest{ID: "item_1_x", Text: "Inspect rebar"})
	require.NoError(t, err)
	require.Equal(t, "item_1_x", item.ID)

	text := "Inspect rebar spacing"
	item, err = c.UpdateChecklistItem(ctx, task.ID, item.ID, overtask.UpdateChecklistItemRequest{Text: &text})
	require.NoError(t, err)
	require.Equal(t, text, item.Text)

	tasks, err := c.GetTasksByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Len(t, tasks[0].Checklist, 1)

	require.NoError(t, c.DeleteChecklistItem(ctx, task.ID, item.ID))
	require.NoError(t, c.DeleteTask(ctx, task.ID))

	_, err = c.GetTaskByID(ctx, task.ID)
	require.ErrorIs(t, err, overtask.ErrNotFound)
	var remoteErr *overtask.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	require.Equal(t, http.StatusNotFound, remoteErr.StatusCode)
	require.Contains(t, remoteErr.Message, "not_found")

	require.ErrorIs(t, c.DeleteTask(ctx, task.ID), overtask.ErrNotFound)
}

func TestClientEscapesIdentifiers(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"a/b c","userId":"u","title":"t","status":"not-started","checklist":[]}`))
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL})
	task, err := c.GetTaskByID(context.Background(), "a/b c")
	require.NoError(t, err)
	require.Equal(t, "/tasks/a%2Fb%20c", gotPath)
	require.Equal(t, "a/b c", task.ID)
}

func TestClientClassifiesFailures(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/boom":
			http.Error(w, "database down", http.StatusServiceUnavailable)
		case "/users/bad":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Name is required"}`))
		case "/users/garbled":
			_, _ = w.Write([]byte(`{not json`))
		}
	}))
	c := NewClient(&Config{BaseURL: srv.URL})

	_, err := c.GetUserByID(ctx, "boom")
	require.ErrorIs(t, err, overtask.ErrRemoteUnavailable)
	require.ErrorContains(t, err, "database down")

	_, err = c.GetUserByID(ctx, "bad")
	require.ErrorIs(t, err, overtask.ErrRequestFailed)
	var remoteErr *overtask.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	require.Equal(t, "Name is required", remoteErr.Message)
	require.Equal(t, http.StatusBadRequest, remoteErr.StatusCode)

	_, err = c.GetUserByID(ctx, "garbled")
	require.ErrorIs(t, err, overtask.ErrRequestFailed)

	srv.Close()
	_, err = c.GetUserByID(ctx, "anyone")
	require.ErrorIs(t, err, overtask.ErrRemoteUnavailable)
	require.NotErrorIs(t, err, overtask.ErrNotFound)
}

func TestClientTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(&Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.GetUserByID(context.Background(), "slow")
	require.ErrorIs(t, err, overtask.ErrRemoteUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientSendsBearerToken(t *testing.T) {
	ctx := context.Background()
	srv, components := newBackend(t, "secret")

	anonymous := NewClient(&Config{BaseURL: srv.URL + "/api"})
	_, err := anonymous.CreateOrGetUser(ctx, overtask.CreateUserRequest{Name: "carol"})
	require.ErrorIs(t, err, overtask.ErrRequestFailed)

	authed := NewClient(&Config{
		BaseURL: srv.URL + "/api",
		Token: func(context.Context) (string, error) {
			return components.JWTAuth.GenerateToken("carol", "device-1", time.Hour)
		},
	})
	_, err = authed.CreateOrGetUser(ctx, overtask.CreateUserRequest{Name: "carol"})
	require.NoError(t, err)

	failing := NewClient(&Config{
		BaseURL: srv.URL + "/api",
		Token:   func(context.Context) (string, error) { return "", errors.New("no session") },
	})
	_, err = failing.CreateOrGetUser(ctx, overtask.CreateUserRequest{Name: "carol"})
	require.ErrorContains(t, err, "no session")
}
