package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"
)

// Default probe settings for Monitor.
const (
	DefaultProbeInterval = 10 * time.Second
	DefaultProbeTimeout  = 3 * time.Second
)

// DialFunc opens a connection; it matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Monitor probes a TCP address periodically and reports the result as a Signal.
//
// A Monitor starts out online so that callers are not refused before the
// first probe completes.
type Monitor struct {
	state    *Static
	address  string
	interval time.Duration
	timeout  time.Duration
	dial     DialFunc
	logger   *slog.Logger
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithInterval sets the time between probes.
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.interval = d
	}
}

// WithProbeTimeout sets the dial timeout for a single probe.
func WithProbeTimeout(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.timeout = d
	}
}

// WithDialer replaces the function used to open probe connections.
func WithDialer(dial DialFunc) MonitorOption {
	return func(m *Monitor) {
		m.dial = dial
	}
}

// WithLogger sets the logger used to report state transitions.
func WithLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// NewMonitor creates a Monitor that dials address ("host:port") on every probe.
func NewMonitor(address string, opts ...MonitorOption) (*Monitor, error) {
	if address == "" {
		return nil, errors.New("connectivity: probe address is empty")
	}
	if _, _, err := net.SplitHostPort(address); err != nil {
		return nil, err
	}
	m := &Monitor{
		state:    NewStatic(true),
		address:  address,
		interval: DefaultProbeInterval,
		timeout:  DefaultProbeTimeout,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(m)
	}
	if m.dial == nil {
		d := &net.Dialer{}
		m.dial = d.DialContext
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	if m.interval <= 0 {
		m.interval = DefaultProbeInterval
	}
	if m.timeout <= 0 {
		m.timeout = DefaultProbeTimeout
	}
	return m, nil
}

// Online implements Signal.
func (m *Monitor) Online() bool {
	return m.state.Online()
}

// OnChange registers fn to be called after every state change.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.state.OnChange(fn)
}

// Probe dials the configured address once and records the result.
func (m *Monitor) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	conn, err := m.dial(ctx, "tcp", m.address)
	online := err == nil
	if conn != nil {
		_ = conn.Close()
	}

	if prev := m.state.Online(); prev != online {
		if online {
			m.logger.Info("network reachable", "address", m.address)
		} else {
			m.logger.Warn("network unreachable", "address", m.address, "error", err)
		}
	}
	m.state.Set(online)
	return online
}

// Run probes until ctx is done. It probes once immediately.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}
