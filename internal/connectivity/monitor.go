// Package connectivity tracks whether the ledger server is reachable.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/crucial707/keykiosk/internal/metrics"
)

// Prober performs one liveness check. Any error counts as offline.
type Prober interface {
	Health(ctx context.Context) error
}

// Monitor keeps a cached online flag, refreshed on an interval and by ad hoc
// checks. Handlers registered with OnOnline and OnOffline run only when the
// flag actually changes. A monitor starts offline, so the first successful
// probe fires OnOnline.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	online    bool
	lastCheck time.Time
	onOnline  []func()
	onOffline []func()
}

func New(p Prober, interval, timeout time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{prober: p, interval: interval, timeout: timeout, logger: logger}
}

// OnOnline registers fn for offline-to-online transitions.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	m.onOnline = append(m.onOnline, fn)
	m.mu.Unlock()
}

// OnOffline registers fn for online-to-offline transitions.
func (m *Monitor) OnOffline(fn func()) {
	m.mu.Lock()
	m.onOffline = append(m.onOffline, fn)
	m.mu.Unlock()
}

// Online returns the cached state without probing.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// LastCheck is when the server was last probed.
func (m *Monitor) LastCheck() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCheck
}

// Check probes the server now and updates the cached state.
func (m *Monitor) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.prober.Health(ctx)
	if err != nil {
		m.logger.Debug("connectivity probe failed", "error", err)
	}
	m.set(err == nil, true)
	return err == nil
}

// ReportFailure marks the server offline after a failed write.
func (m *Monitor) ReportFailure() {
	m.set(false, false)
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

func (m *Monitor) set(up, probed bool) {
	m.mu.Lock()
	if probed {
		m.lastCheck = time.Now()
	}
	changed := m.online != up
	m.online = up
	var handlers []func()
	if changed && up {
		handlers = append(handlers, m.onOnline...)
	} else if changed {
		handlers = append(handlers, m.onOffline...)
	}
	m.mu.Unlock()

	metrics.SetOnline(up)
	if !changed {
		return
	}
	if up {
		m.logger.Info("server reachable, switching to online mode")
	} else {
		m.logger.Warn("server unreachable, switching to offline mode")
	}
	for _, fn := range handlers {
		fn()
	}
}
