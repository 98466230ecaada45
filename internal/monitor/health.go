// Package monitor runs the background workers of the gateway: the backend
// health probe and the stale device sweep.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/advisor-gateway/internal/backend"
)

// Prober checks the backend once.
type Prober interface {
	CheckHealth(ctx context.Context) backend.HealthResult
}

// StatusListener is notified when the connection status changes.
type StatusListener func(backend.ConnectionStatus)

// HealthMonitor probes the backend periodically and keeps the latest result.
type HealthMonitor struct {
	prober   Prober
	interval time.Duration
	logger   *slog.Logger

	// checkMu serializes probes so listeners see transitions in order.
	checkMu sync.Mutex

	mu        sync.RWMutex
	latest    backend.HealthResult
	hasResult bool
	listeners []StatusListener
}

// NewHealthMonitor creates a monitor probing every interval.
func NewHealthMonitor(prober Prober, interval time.Duration, logger *slog.Logger) *HealthMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthMonitor{prober: prober, interval: interval, logger: logger}
}

// OnChange registers fn to be called on every status transition, including
// the first probe.
func (m *HealthMonitor) OnChange(fn StatusListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Start probes immediately and then every interval until ctx is done.
func (m *HealthMonitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		m.logger.Info("Health monitor started", "interval", m.interval)

		m.Check(ctx)
		for {
			select {
			case <-ticker.C:
				m.Check(ctx)
			case <-ctx.Done():
				m.logger.Info("Health monitor shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Check probes the backend now and records the result.
func (m *HealthMonitor) Check(ctx context.Context) backend.HealthResult {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()
	return m.check(ctx)
}

func (m *HealthMonitor) check(ctx context.Context) backend.HealthResult {
	res := m.prober.CheckHealth(ctx)
	if ctx.Err() != nil {
		return res
	}

	m.mu.Lock()
	prev, had := m.latest.Status, m.hasResult
	m.latest, m.hasResult = res, true
	listeners := append([]StatusListener(nil), m.listeners...)
	m.mu.Unlock()

	if had && prev == res.Status {
		return res
	}
	if res.Status == backend.StatusOffline {
		m.logger.Warn("Backend status changed", "from", prev, "to", res.Status, "latency_ms", res.LatencyMs, "error", res.Error)
	} else {
		m.logger.Info("Backend status changed", "from", prev, "to", res.Status, "latency_ms", res.LatencyMs)
	}
	for _, fn := range listeners {
		fn(res.Status)
	}
	return res
}

// Latest returns the most recent result. Before the first probe completes
// it probes synchronously.
func (m *HealthMonitor) Latest(ctx context.Context) backend.HealthResult {
	if res, ok := m.snapshot(); ok {
		return res
	}

	m.checkMu.Lock()
	defer m.checkMu.Unlock()
	// A probe may have finished while waiting.
	if res, ok := m.snapshot(); ok {
		return res
	}
	return m.check(ctx)
}

func (m *HealthMonitor) snapshot() (backend.HealthResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.hasResult
}
