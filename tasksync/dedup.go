// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package tasksync

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/mobiletoly/go-overtask/overtask"
	"github.com/mobiletoly/go-overtask/tasklite"
)

// DedupReport describes one deduplication pass
type DedupReport struct {
	UserID  string
	Groups  int      // content groups that had more than one member
	Removed []string // ids removed from the local store
}

// DedupResolver collapses tasks of one user that share (title, description)
// but carry different identities. The most recently updated task survives;
// checklist edits made only on the losers are discarded.
type DedupResolver struct {
	store  Store
	logger *slog.Logger
}

func NewDedupResolver(store Store, logger *slog.Logger) *DedupResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &DedupResolver{store: store, logger: logger}
}

// Resolve removes the duplicates among userID's tasks
func (d *DedupResolver) Resolve(ctx context.Context, userID string) (DedupReport, error) {
	report := DedupReport{UserID: userID}
	tasks, err := d.store.FindTasks(ctx, tasklite.TaskQuery{UserID: userID})
	if err != nil {
		return report, fmt.Errorf("failed to load tasks for dedup: %w", err)
	}

	groups, losers := SelectDuplicates(tasks)
	report.Groups = groups
	for _, id := range losers {
		if err := d.store.RemoveTask(ctx, id); err != nil {
			return report, fmt.Errorf("failed to remove duplicate task %s: %w", id, err)
		}
		report.Removed = append(report.Removed, id)
	}
	if len(report.Removed) > 0 {
		d.logger.Info("Removed duplicate tasks", "user_id", userID, "groups", groups, "removed", report.Removed)
	}
	return report, nil
}

// SelectDuplicates groups tasks by DedupKey and returns the number of groups
// with duplicates and the ids to remove. Within a group the winner has the
// greatest updatedAt; ties prefer a server-assigned id, then the smallest id.
func SelectDuplicates(tasks []overtask.Task) (groups int, losers []string) {
	byKey := make(map[overtask.DedupKey][]overtask.Task)
	var order []overtask.DedupKey
	for _, t := range tasks {
		key := t.DedupKey()
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], t)
	}

	for _, key := range order {
		members := byKey[key]
		if len(members) < 2 {
			continue
		}
		groups++
		slices.SortFunc(members, compareAuthority)
		for _, t := range members[1:] {
			losers = append(losers, t.ID)
		}
	}
	return groups, losers
}

// compareAuthority orders the most authoritative task first
func compareAuthority(a, b overtask.Task) int {
	if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
		return c
	}
	if a.IsLocal() != b.IsLocal() {
		if a.IsLocal() {
			return 1
		}
		return -1
	}
	return strings.Compare(a.ID, b.ID)
}
