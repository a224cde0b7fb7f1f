// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package tasksync

import (
	"log/slog"
	"time"

	"github.com/mobiletoly/go-overtask/internal/clock"
)

// Config holds configuration for the sync engine
type Config struct {
	DebounceInterval time.Duration // coalescing window for triggers, e.g. 1s
	MinInterval      time.Duration // minimum time between cycle starts, e.g. 5s
	SyncInterval     time.Duration // periodic trigger while started; 0 disables it
	Clock            clock.Clock
	Logger           *slog.Logger
	Metrics          MetricsRecorder   // optional
	OnCycle          func(CycleReport) // optional; called after every cycle that ran
}

// DefaultConfig returns the engine defaults
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: time.Second,
		MinInterval:      5 * time.Second,
		SyncInterval:     30 * time.Second,
		Clock:            clock.NewReal(),
		Logger:           slog.Default(),
	}
}

func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.DebounceInterval < 0 {
		out.DebounceInterval = 0
	}
	if out.MinInterval < 0 {
		out.MinInterval = 0
	}
	if out.Clock == nil {
		out.Clock = def.Clock
	}
	if out.Logger == nil {
		out.Logger = def.Logger
	}
	if out.Metrics == nil {
		out.Metrics = noopMetrics{}
	}
	return &out
}
