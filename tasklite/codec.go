// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package tasklite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mobiletoly/go-overtask/overtask"
)

// Fixed-width UTC layout so that lexical order equals chronological order
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// rows written by other tools may carry plain RFC 3339
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC(), err
}

const taskColumns = `id, user_id, title, description, status, position_x, position_y, checklist, schema_version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (overtask.Task, error) {
	var (
		t             overtask.Task
		description   sql.NullString
		status        string
		posX, posY    sql.NullFloat64
		checklistJSON string
		schemaVersion int
		createdAt     string
		updatedAt     string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &description, &status, &posX, &posY,
		&checklistJSON, &schemaVersion, &createdAt, &updatedAt); err != nil {
		return overtask.Task{}, err
	}

	schemaErr := func(err error) error {
		return &overtask.SchemaError{Collection: "tasks", ID: t.ID, Err: err}
	}
	if schemaVersion > overtask.TaskSchemaVersion {
		return overtask.Task{}, schemaErr(fmt.Errorf("record schema version %d is not supported", schemaVersion))
	}
	t.Status = overtask.Status(status)
	if !t.Status.Valid() {
		return overtask.Task{}, schemaErr(fmt.Errorf("unknown status %q", status))
	}
	t.Description = description.String
	if posX.Valid && posY.Valid {
		t.Position = &overtask.Position{X: posX.Float64, Y: posY.Float64}
	}
	if err := json.Unmarshal([]byte(checklistJSON), &t.Checklist); err != nil {
		return overtask.Task{}, schemaErr(fmt.Errorf("failed to decode checklist: %w", err))
	}
	if t.Checklist == nil {
		t.Checklist = []overtask.ChecklistItem{}
	}
	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return overtask.Task{}, schemaErr(fmt.Errorf("invalid created_at: %w", err))
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return overtask.Task{}, schemaErr(fmt.Errorf("invalid updated_at: %w", err))
	}
	return t, nil
}

// taskArgs returns the bind arguments in taskColumns order
func taskArgs(t overtask.Task) ([]any, error) {
	checklist := t.Checklist
	if checklist == nil {
		checklist = []overtask.ChecklistItem{}
	}
	checklistJSON, err := json.Marshal(checklist)
	if err != nil {
		return nil, fmt.Errorf("failed to encode checklist: %w", err)
	}
	var description, posX, posY any
	if t.Description != "" {
		description = t.Description
	}
	if t.Position != nil {
		posX, posY = t.Position.X, t.Position.Y
	}
	return []any{
		t.ID, t.UserID, t.Title, description, string(t.Status), posX, posY,
		string(checklistJSON), overtask.TaskSchemaVersion, formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	}, nil
}

func scanUser(row rowScanner) (overtask.User, error) {
	var (
		u         overtask.User
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.Name, &createdAt); err != nil {
		return overtask.User{}, err
	}
	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return overtask.User{}, &overtask.SchemaError{Collection: "users", ID: u.ID, Err: err}
	}
	return u, nil
}
