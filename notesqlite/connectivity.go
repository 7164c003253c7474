// Copyright 2026 Mykhailo Kravets
// SPDX-License-Identifier: Apache-2.0

package notesqlite

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Monitor is the single source of truth for "are we online". It only
// detects and notifies; policy (when to sync) lives in the listeners.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	listeners []func(online bool)
	logger    *slog.Logger
}

// NewMonitor creates a monitor with the platform-reported initial state.
// Connectivity state is not persisted across restarts.
func NewMonitor(online bool, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{online: online, logger: logger}
}

// IsOnline reports the current connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnChange registers a listener invoked with the new state on every
// transition. Listeners run synchronously, in subscription order, on the
// goroutine that delivered the platform event.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// SetOnline is the entry point for platform connectivity events. Listeners
// are notified only on an actual transition.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := make([]func(bool), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "online", online)
	for _, fn := range listeners {
		fn(online)
	}
}

// ProbeFunc reports whether the server is currently reachable.
type ProbeFunc func(ctx context.Context) bool

// Run polls probe at the given interval and feeds the result into
// SetOnline, for environments without platform connectivity events.
// It returns when ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, probe ProbeFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetOnline(probe(ctx))
		}
	}
}
