// Package health tracks connection-lifetime counters and produces
// point-in-time HealthStatus snapshots.
package health

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/feedstream/internal/model"
)

// Monitor holds per-session and lifetime counters.
//
// OnMessage and Snapshot are lock-free so the read path and external
// observers never contend. OnConnect/OnDisconnect take a short mutex to
// open and close the session record.
type Monitor struct {
	now    func() time.Time
	logger *slog.Logger

	// Reads the subscription count at snapshot time.
	subscribed func() int
	// Reads the supervisor state name at snapshot time.
	state func() string

	connected         atomic.Bool
	sessionStart      atomic.Int64 // UnixNano, 0 when no session
	messages          atomic.Int64 // Normalized ticks in the current session
	lastMessage       atomic.Int64 // UnixNano of the last tick, 0 if none this session
	reconnectAttempts atomic.Int64 // Lives across sessions
	sessions          atomic.Int64

	mu      sync.Mutex
	session *model.ConnectionMetrics
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithSubscribedCount sets the source of HealthStatus.SubscribedCount.
func WithSubscribedCount(f func() int) Option {
	return func(m *Monitor) { m.subscribed = f }
}

// WithStateName sets the source of HealthStatus.State.
func WithStateName(f func() string) Option {
	return func(m *Monitor) { m.state = f }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor creates a Monitor.
func NewMonitor(logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		now:        time.Now,
		logger:     logger,
		subscribed: func() int { return 0 },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnConnect starts a new session. Per-session counters are reset;
// reconnectAttempts is the number of attempts consumed before this session
// connected and is recorded on the session.
func (m *Monitor) OnConnect(reconnectAttempts int) {
	now := m.now()

	m.mu.Lock()
	m.session = &model.ConnectionMetrics{
		SessionID:         uuid.New(),
		SessionStart:      now,
		ReconnectAttempts: reconnectAttempts,
	}
	m.mu.Unlock()

	m.messages.Store(0)
	m.lastMessage.Store(0)
	m.sessionStart.Store(now.UnixNano())
	m.reconnectAttempts.Store(int64(reconnectAttempts))
	m.sessions.Add(1)
	m.connected.Store(true)
}

// OnMessage counts one normalized tick.
func (m *Monitor) OnMessage() {
	m.messages.Add(1)
	m.lastMessage.Store(m.now().UnixNano())
}

// OnDisconnect closes the current session and returns its finalized record.
// It returns ok=false when no session is open, so a session is finalized at
// most once.
func (m *Monitor) OnDisconnect(reason string) (model.ConnectionMetrics, bool) {
	m.mu.Lock()
	session := m.session
	m.session = nil
	m.mu.Unlock()

	m.connected.Store(false)
	m.sessionStart.Store(0)

	if session == nil {
		return model.ConnectionMetrics{}, false
	}

	session.SessionEnd = m.now()
	session.MessagesReceived = m.messages.Load()
	if reason != "" {
		session.DisconnectReason = model.StringPtr(reason)
	}

	return *session, true
}

// SetReconnectAttempts records the supervisor's current attempt counter.
func (m *Monitor) SetReconnectAttempts(n int) {
	m.reconnectAttempts.Store(int64(n))
}

// Snapshot returns the current status. It never blocks on I/O and never fails.
func (m *Monitor) Snapshot() model.HealthStatus {
	now := m.now()

	status := model.HealthStatus{
		Connected:         m.connected.Load(),
		MessagesReceived:  m.messages.Load(),
		SubscribedCount:   m.subscribed(),
		ReconnectAttempts: int(m.reconnectAttempts.Load()),
		TotalReconnects:   max(m.sessions.Load()-1, 0),
		AsOf:              now,
	}
	if m.state != nil {
		status.State = m.state()
	}

	if start := m.sessionStart.Load(); start != 0 {
		status.UptimeSeconds = now.Sub(time.Unix(0, start)).Seconds()
	}
	if last := m.lastMessage.Load(); last != 0 {
		age := now.Sub(time.Unix(0, last)).Seconds()
		status.LastMessageAgeSeconds = &age
	}

	return status
}

// LogLoop logs a snapshot every interval until ctx is done.
func (m *Monitor) LogLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := m.Snapshot()
			attrs := []any{
				"connected", s.Connected,
				"state", s.State,
				"uptime_s", s.UptimeSeconds,
				"messages", s.MessagesReceived,
				"subscribed", s.SubscribedCount,
				"reconnect_attempts", s.ReconnectAttempts,
			}
			if s.LastMessageAgeSeconds != nil {
				attrs = append(attrs, "last_message_age_s", *s.LastMessageAgeSeconds)
			}
			m.logger.Info("feed health", attrs...)
		}
	}
}
