// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package overtask holds the entity model shared by the offline-first task
// client (local store, sync engine, state facade) and the reference backend.
package overtask

import (
	"slices"
	"time"
)

// Status is the lifecycle state of a task or checklist item.
// Checklist items share the task status domain.
type Status string

// Position is a point on the floor plan where a task is pinned
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// User owns tasks. It is created once per device session at login.
type User struct {
	ID        string    `json:"id" validate:"required,max=100"`
	Name      string    `json:"name" validate:"required,max=100"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChecklistItem belongs to exactly one task. Change tracking happens at the
// parent task level through Task.UpdatedAt.
type ChecklistItem struct {
	ID        string    `json:"id" validate:"required,max=100"`
	Text      string    `json:"text" validate:"required,max=500"`
	Status    Status    `json:"status" validate:"required,taskstatus"`
	CreatedAt time.Time `json:"createdAt"`
}

// Task is the unit of work that is edited locally and synchronized remotely.
type Task struct {
	ID          string          `json:"id" validate:"required,max=100"`
	UserID      string          `json:"userId" validate:"required,max=100"`
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description,omitempty" validate:"max=1000"`
	Status      Status          `json:"status" validate:"required,taskstatus"`
	Position    *Position       `json:"position,omitempty"`
	Checklist   []ChecklistItem `json:"checklist" validate:"dive"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// SyncState is the singleton bookkeeping record written at the end of every
// reconciliation cycle.
type SyncState struct {
	ID       string    `json:"id"`
	LastSync time.Time `json:"lastSync"`
	IsOnline bool      `json:"isOnline"`
}

// Clone returns a deep copy of the task
func (t Task) Clone() Task {
	out := t
	if t.Position != nil {
		p := *t.Position
		out.Position = &p
	}
	if t.Checklist != nil {
		out.Checklist = slices.Clone(t.Checklist)
	} else {
		out.Checklist = []ChecklistItem{}
	}
	return out
}

// ChecklistIndex returns the index of the checklist item with the given id, or -1
func (t Task) ChecklistIndex(itemID string) int {
	return slices.IndexFunc(t.Checklist, func(it ChecklistItem) bool { return it.ID == itemID })
}

// IsLocal reports whether the task still carries a locally-minted identity
func (t Task) IsLocal() bool {
	return IsLocalTaskID(t.ID)
}

// DedupKey identifies tasks with the same content; an empty description
// matches an absent one.
type DedupKey struct {
	Title       string
	Description string
}

// DedupKey is the content key used to detect accidental duplicates
func (t Task) DedupKey() DedupKey {
	return DedupKey{Title: t.Title, Description: t.Description}
}

// Touch returns the next updatedAt for a mutation happening at now.
// The result is strictly greater than prev.
func Touch(prev, now time.Time) time.Time {
	now = now.UTC()
	if !now.After(prev) {
		return prev.Add(time.Millisecond).UTC()
	}
	return now
}
