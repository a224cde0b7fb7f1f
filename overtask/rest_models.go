// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overtask

// REST/JSON models for the task backend API.
// Used by the remote client and by the reference server.

// CreateUserRequest asks the server to create a user or return the existing one with that name
type CreateUserRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// CreateTaskRequest creates a task on the server. The server assigns id and timestamps.
type CreateTaskRequest struct {
	UserID      string    `json:"userId" validate:"required"`
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description,omitempty" validate:"max=1000"`
	Position    *Position `json:"position,omitempty"`
}

// UpdateTaskRequest is a partial task update; nil fields are left unchanged
type UpdateTaskRequest struct {
	Title       *string   `json:"title,omitempty" validate:"omitnil,min=1,max=200"`
	Description *string   `json:"description,omitempty" validate:"omitnil,max=1000"`
	Status      *Status   `json:"status,omitempty" validate:"omitnil,taskstatus"`
	Position    *Position `json:"position,omitempty"`
}

// CreateChecklistItemRequest appends an item to a task checklist.
// A client-minted ID is kept by the server when it is unique within the task.
type CreateChecklistItemRequest struct {
	ID   string `json:"id,omitempty" validate:"omitempty,max=100"`
	Text string `json:"text" validate:"required,max=500"`
}

// UpdateChecklistItemRequest is a partial checklist item update
type UpdateChecklistItemRequest struct {
	Text   *string `json:"text,omitempty" validate:"omitnil,min=1,max=500"`
	Status *Status `json:"status,omitempty" validate:"omitnil,taskstatus"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Empty reports whether the update changes nothing
func (r UpdateTaskRequest) Empty() bool {
	return r.Title == nil && r.Description == nil && r.Status == nil && r.Position == nil
}

// ApplyTo copies the set fields onto t. Timestamps are the caller's concern.
func (r UpdateTaskRequest) ApplyTo(t *Task) {
	if r.Title != nil {
		t.Title = *r.Title
	}
	if r.Description != nil {
		t.Description = *r.Description
	}
	if r.Status != nil {
		t.Status = *r.Status
	}
	if r.Position != nil {
		p := *r.Position
		t.Position = &p
	}
}

// ApplyTo copies the set fields onto item
func (r UpdateChecklistItemRequest) ApplyTo(item *ChecklistItem) {
	if r.Text != nil {
		item.Text = *r.Text
	}
	if r.Status != nil {
		item.Status = *r.Status
	}
}
