// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package tasksync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManualConnectivity(t *testing.T) {
	c := NewManualConnectivity(false)
	ch, cancel := c.Subscribe()

	c.Set(false)
	select {
	case <-ch:
		t.Fatal("unchanged value must not be delivered")
	default:
	}

	c.Set(true)
	c.Set(false)
	c.Set(true)
	require.True(t, c.Online())
	require.True(t, <-ch, "slow subscriber sees the latest value")

	cancel()
	cancel()
	_, open := <-ch
	require.False(t, open)
	c.Set(false)
}

func TestHealthProbe(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" || !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	p := NewHealthProbe(srv.URL+"/api/", time.Second, nil, quietLogger)
	require.False(t, p.Online())
	ch, cancel := p.Subscribe()
	defer cancel()

	require.False(t, p.Check(ctx))
	healthy.Store(true)
	require.True(t, p.Check(ctx))
	require.True(t, <-ch)

	srv.Close()
	require.False(t, p.Check(ctx))
	require.False(t, <-ch)
}

func TestHealthProbeRunStopsWithContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p := NewHealthProbe(srv.URL, 10*time.Millisecond, nil, quietLogger)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, p.Online, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
