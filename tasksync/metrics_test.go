// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package tasksync

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.putUser(t, "user_1_aaaaaaaaa", "alice")
	h.putTask(t, "task_1_bbbbbbbbb", "user_1_aaaaaaaaa", "Pour foundation", t0)

	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)
	cfg := h.engineConfig()
	cfg.Metrics = m
	e := NewEngine(h.store, h.remote, nil, nil, cfg)

	_, err := e.RunOnce(ctx)
	require.NoError(t, err)
	_, err = e.RunOnce(ctx)
	require.ErrorIs(t, err, ErrRateLimited)

	require.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues(OutcomeCompleted)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues(OutcomeRateLimited)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.records.WithLabelValues("user", "promoted")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.records.WithLabelValues("task", "promoted")))
	require.Equal(t, float64(t0.Unix()), testutil.ToFloat64(m.lastSync))

	n, err := testutil.GatherAndCount(reg, "overtask_sync_cycle_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
