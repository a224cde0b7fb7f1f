// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package tasksync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Connectivity is the online/offline signal the engine reacts to
type Connectivity interface {
	Online() bool
	// Subscribe delivers changes of the online flag, never the current value.
	// The channel holds only the latest value when the subscriber is slow.
	Subscribe() (<-chan bool, func())
}

type broadcaster struct {
	mu     sync.Mutex
	online bool
	next   int
	subs   map[int]chan bool
}

func (b *broadcaster) Online() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online
}

func (b *broadcaster) Subscribe() (<-chan bool, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]chan bool)
	}
	id := b.next
	b.next++
	ch := make(chan bool, 1)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// set records online and reports whether it changed
func (b *broadcaster) set(online bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.online == online {
		return false
	}
	b.online = online
	for _, ch := range b.subs {
		select {
		case ch <- online:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- online
		}
	}
	return true
}

// ManualConnectivity is toggled explicitly, by tests or by a CLI flag
type ManualConnectivity struct {
	broadcaster
}

func NewManualConnectivity(online bool) *ManualConnectivity {
	c := &ManualConnectivity{}
	c.online = online
	return c
}

func (c *ManualConnectivity) Set(online bool) {
	c.set(online)
}

// HealthProbe derives connectivity from the backend health endpoint.
// It starts offline until the first successful Check.
type HealthProbe struct {
	broadcaster
	url      string
	http     *http.Client
	interval time.Duration
	logger   *slog.Logger
}

// NewHealthProbe probes baseURL + "/health". A nil httpClient gets a 3s timeout.
func NewHealthProbe(baseURL string, interval time.Duration, httpClient *http.Client, logger *slog.Logger) *HealthProbe {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 3 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HealthProbe{
		url:      strings.TrimRight(baseURL, "/") + "/health",
		http:     httpClient,
		interval: interval,
		logger:   logger,
	}
}

// Check probes once and updates the online flag
func (p *HealthProbe) Check(ctx context.Context) bool {
	err := p.probe(ctx)
	online := err == nil
	if p.set(online) {
		if online {
			p.logger.Info("Backend reachable", "url", p.url)
		} else {
			p.logger.Warn("Backend unreachable", "url", p.url, "error", err)
		}
	}
	return online
}

func (p *HealthProbe) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

// Run probes every interval until ctx is done
func (p *HealthProbe) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		p.Check(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
