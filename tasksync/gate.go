// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package tasksync

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/mobiletoly/go-overtask/internal/clock"
)

var (
	// ErrCycleRunning is returned when a cycle is requested while another is in flight
	ErrCycleRunning = errors.New("sync cycle already running")
	// ErrRateLimited is returned when a cycle is requested before MinInterval elapsed
	ErrRateLimited = errors.New("sync cycle rate limited")
)

// gate decides whether a cycle may start. Triggers inside the debounce window
// coalesce into the first one; the window is not extended by later triggers.
type gate struct {
	clock    clock.Clock
	debounce time.Duration
	limiter  *rate.Limiter
	running  atomic.Bool

	mu    sync.Mutex
	timer clock.Timer
}

func newGate(c clock.Clock, debounce, minInterval time.Duration) *gate {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &gate{
		clock:    c,
		debounce: debounce,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// schedule arms the debounce timer unless it is already armed
func (g *gate) schedule(fire func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		return
	}
	g.timer = g.clock.AfterFunc(g.debounce, func() {
		g.mu.Lock()
		g.timer = nil
		g.mu.Unlock()
		fire()
	})
}

// pending reports whether a debounced trigger is waiting
func (g *gate) pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.timer != nil
}

func (g *gate) cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// acquire claims the cycle slot. The running flag is checked before the
// limiter so a dropped concurrent request does not consume a token.
func (g *gate) acquire() error {
	if !g.running.CompareAndSwap(false, true) {
		return ErrCycleRunning
	}
	if !g.limiter.AllowN(g.clock.Now(), 1) {
		g.running.Store(false)
		return ErrRateLimited
	}
	return nil
}

func (g *gate) release() {
	g.running.Store(false)
}
