// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overtask

// Task and checklist status values
const (
	StatusNotStarted         Status = "not-started"
	StatusInProgress         Status = "in-progress"
	StatusBlocked            Status = "blocked"
	StatusFinalCheckAwaiting Status = "final-check-awaiting"
	StatusCompleted          Status = "completed"
)

// Reserved prefixes of locally-minted identities
const (
	LocalTaskPrefix = "task_"
	LocalUserPrefix = "user_"
	LocalItemPrefix = "item_"
)

// SyncStateID is the identity of the SyncState singleton
const SyncStateID = "sync_state"

// TaskSchemaVersion is the current persisted task schema version.
// Version 1 added StatusFinalCheckAwaiting.
const TaskSchemaVersion = 1

// Statuses lists the status domain in workflow order
var Statuses = []Status{
	StatusNotStarted,
	StatusInProgress,
	StatusBlocked,
	StatusFinalCheckAwaiting,
	StatusCompleted,
}

// Valid reports whether s belongs to the status domain
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}
