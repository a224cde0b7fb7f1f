// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package tasksync

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Cycle outcomes reported to MetricsRecorder
const (
	OutcomeCompleted   = "completed"
	OutcomeOffline     = "offline"
	OutcomeFailed      = "failed" // local store unreadable or panic recovered
	OutcomeBusy        = "busy"
	OutcomeRateLimited = "rate_limited"
)

// MetricsRecorder observes every gate decision and completed cycle
type MetricsRecorder interface {
	ObserveCycle(ctx context.Context, report CycleReport)
}

// MetricsRecorderFunc adapts a function to MetricsRecorder
type MetricsRecorderFunc func(ctx context.Context, report CycleReport)

func (f MetricsRecorderFunc) ObserveCycle(ctx context.Context, report CycleReport) {
	f(ctx, report)
}

type noopMetrics struct{}

func (noopMetrics) ObserveCycle(context.Context, CycleReport) {}

// PrometheusMetrics exports cycle outcomes, durations and per-record results
type PrometheusMetrics struct {
	cycles   *prometheus.CounterVec
	duration prometheus.Histogram
	records  *prometheus.CounterVec
	lastSync prometheus.Gauge
}

// NewPrometheusMetrics registers the sync collectors on reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overtask",
			Subsystem: "sync",
			Name:      "cycles_total",
			Help:      "Sync triggers by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "overtask",
			Subsystem: "sync",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of reconciliation cycles that ran",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overtask",
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Records handled by reconciliation cycles",
		}, []string{"kind", "result"}),
		lastSync: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "overtask",
			Subsystem: "sync",
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time of the last cycle that wrote sync state",
		}),
	}
	reg.MustRegister(m.cycles, m.duration, m.records, m.lastSync)
	return m
}

func (m *PrometheusMetrics) ObserveCycle(_ context.Context, r CycleReport) {
	m.cycles.WithLabelValues(r.Outcome).Inc()
	if !r.Ran() {
		return
	}
	m.duration.Observe(r.Duration.Seconds())
	m.lastSync.Set(float64(r.FinishedAt.Unix()))
	m.records.WithLabelValues("user", "reconciled").Add(float64(r.UsersReconciled))
	m.records.WithLabelValues("user", "promoted").Add(float64(r.UsersPromoted))
	m.records.WithLabelValues("user", "failed").Add(float64(r.UserFailures))
	m.records.WithLabelValues("task", "verified").Add(float64(r.TasksVerified))
	m.records.WithLabelValues("task", "promoted").Add(float64(r.TasksPromoted))
	m.records.WithLabelValues("task", "republished").Add(float64(r.TasksRepublished))
	m.records.WithLabelValues("task", "pushed").Add(float64(r.TasksPushed))
	m.records.WithLabelValues("task", "failed").Add(float64(r.TaskFailures))
}
