// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package taskremote is a thin, fallible HTTP gateway to the task backend.
// Every call either returns a result or a *overtask.RemoteError; nothing is
// retried here.
package taskremote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mobiletoly/go-overtask/overtask"
)

// Config holds configuration for the remote client
type Config struct {
	BaseURL string                                    // e.g. "http://localhost:3001/api"
	Timeout time.Duration                             // per-request deadline; 0 disables it
	Token   func(ctx context.Context) (string, error) // returns JWT; nil sends no Authorization header
	HTTP    *http.Client
	Logger  *slog.Logger
}

// DefaultConfig returns the configuration for a backend on localhost
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://localhost:3001/api",
		Timeout: 10 * time.Second,
		HTTP:    &http.Client{},
		Logger:  slog.Default(),
	}
}

// Client calls the /api REST contract
type Client struct {
	baseURL string
	timeout time.Duration
	token   func(ctx context.Context) (string, error)
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client; zero fields of config fall back to DefaultConfig
func NewClient(config *Config) *Client {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	c := &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		timeout: config.Timeout,
		token:   config.Token,
		http:    config.HTTP,
		logger:  config.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = def.BaseURL
	}
	if c.http == nil {
		c.http = def.HTTP
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// BaseURL returns the API root the client talks to
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) CreateOrGetUser(ctx context.Context, req overtask.CreateUserRequest) (overtask.User, error) {
	var u overtask.User
	err := c.do(ctx, http.MethodPost, "/users", req, &u)
	return u, err
}

func (c *Client) GetUserByID(ctx context.Context, id string) (overtask.User, error) {
	var u overtask.User
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, &u)
	return u, err
}

func (c *Client) GetTasksByUserID(ctx context.Context, userID string) ([]overtask.Task, error) {
	var tasks []overtask.Task
	if err := c.do(ctx, http.MethodGet, "/tasks/user/"+url.PathEscape(userID), nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) GetTaskByID(ctx context.Context, id string) (overtask.Task, error) {
	var t overtask.Task
	err := c.do(ctx, http.MethodGet, taskPath(id), nil, &t)
	return t, err
}

func (c *Client) CreateTask(ctx context.Context, req overtask.CreateTaskRequest) (overtask.Task, error) {
	var t overtask.Task
	err := c.do(ctx, http.MethodPost, "/tasks", req, &t)
	return t, err
}

func (c *Client) UpdateTask(ctx context.Context, id string, req overtask.UpdateTaskRequest) (overtask.Task, error) {
	var t overtask.Task
	err := c.do(ctx, http.MethodPut, taskPath(id), req, &t)
	return t, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, taskPath(id), nil, nil)
}

func (c *Client) AddChecklistItem(ctx context.Context, taskID string, req overtask.CreateChecklistItemRequest) (overtask.ChecklistItem, error) {
	var item overtask.ChecklistItem
	err := c.do(ctx, http.MethodPost, taskPath(taskID)+"/checklist", req, &item)
	return item, err
}

func (c *Client) UpdateChecklistItem(ctx context.Context, taskID, itemID string, req overtask.UpdateChecklistItemRequest) (overtask.ChecklistItem, error) {
	var item overtask.ChecklistItem
	err := c.do(ctx, http.MethodPut, itemPath(taskID, itemID), req, &item)
	return item, err
}

func (c *Client) DeleteChecklistItem(ctx context.Context, taskID, itemID string) error {
	return c.do(ctx, http.MethodDelete, itemPath(taskID, itemID), nil, nil)
}

func taskPath(id string) string { return "/tasks/" + url.PathEscape(id) }

func itemPath(taskID, itemID string) string {
	return taskPath(taskID) + "/checklist/" + url.PathEscape(itemID)
}

// do sends one request and decodes a 2xx body into out (when non-nil).
// Failures are classified into the overtask remote error kinds.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	op := method + " " + path
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return &overtask.RemoteError{Kind: overtask.ErrRequestFailed, Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		body = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &overtask.RemoteError{Kind: overtask.ErrRequestFailed, Op: op, Err: fmt.Errorf("failed to create HTTP request: %w", err)}
	}
	httpReq.Header.Set("Accept", "application/json")
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return &overtask.RemoteError{Kind: overtask.ErrRequestFailed, Op: op, Err: fmt.Errorf("failed to get JWT token: %w", err)}
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &overtask.RemoteError{Kind: overtask.ErrRemoteUnavailable, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remoteErr := &overtask.RemoteError{Kind: classifyStatus(resp.StatusCode), Op: op, StatusCode: resp.StatusCode}
		remoteErr.Message = readErrorMessage(resp.Body)
		c.logger.Debug("Remote call failed", "op", op, "status", resp.StatusCode, "message", remoteErr.Message)
		return remoteErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &overtask.RemoteError{Kind: overtask.ErrRequestFailed, Op: op, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusNotFound:
		return overtask.ErrNotFound
	case code >= 500:
		return overtask.ErrRemoteUnavailable
	default:
		return overtask.ErrRequestFailed
	}
}

// readErrorMessage extracts the {error, message} body, falling back to raw text
func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var er overtask.ErrorResponse
	if json.Unmarshal(raw, &er) == nil && er.Error != "" {
		if er.Message != "" {
			return er.Error + ": " + er.Message
		}
		return er.Error
	}
	return strings.TrimSpace(string(raw))
}
