package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/omochice/presence-chat/internal/metrics"
	"github.com/omochice/presence-chat/internal/pkg/logx"
)

const (
	DefaultSweepInterval     = time.Second
	DefaultInactivityTimeout = 30 * time.Second
)

// Monitor periodically marks idle sessions OFFLINE.
type Monitor struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewMonitor creates a Monitor sweeping registry every interval. Zero values
// fall back to the defaults.
func NewMonitor(registry *Registry, interval, timeout time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	return &Monitor{
		registry: registry,
		interval: interval,
		timeout:  timeout,
		logger:   logx.Component("monitor"),
	}
}

// Run sweeps until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info().
		Dur("interval", m.interval).
		Dur("timeout", m.timeout).
		Msg("Inactivity monitor started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Inactivity monitor stopped")
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep runs a single pass against the registry's clock and returns the
// usernames it demoted.
func (m *Monitor) Sweep() (demoted []string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Msg("Recovered from panic in inactivity sweep")
			demoted = nil
		}
	}()

	demoted = m.registry.SweepExpired(m.registry.now(), m.timeout)
	for _, name := range demoted {
		metrics.SessionsDemoted.Inc()
		m.logger.Info().Str("username", name).Msg("Session marked OFFLINE after inactivity")
	}
	return demoted
}
