package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Market Data
// -----------------------------------------------------------------------------

// Tick is one normalized market update for one instrument.
//
// A Tick is a value: it is never mutated after normalization, only superseded
// by a later tick for the same instrument.
type Tick struct {
	InstrumentKey string // Stable feed identifier, e.g. "NSE_EQ|INE002A01018"

	LastTradedPrice decimal.NullDecimal
	BidPrice        decimal.NullDecimal
	AskPrice        decimal.NullDecimal
	DayHigh         decimal.NullDecimal
	DayLow          decimal.NullDecimal

	Volume       *int64 // Traded volume for the day
	OpenInterest *int64

	ReceivedAt time.Time // Client receive time, strictly increasing within a session
}

// TickKey is the dedup key used by stores.
type TickKey struct {
	InstrumentKey string
	ReceivedAt    int64 // µs since epoch
}

// Key returns the (instrument_key, received_at) dedup key.
func (t Tick) Key() TickKey {
	return TickKey{InstrumentKey: t.InstrumentKey, ReceivedAt: t.ReceivedAt.UnixMicro()}
}

// HasPrice reports whether any price field is set.
func (t Tick) HasPrice() bool {
	return t.LastTradedPrice.Valid || t.BidPrice.Valid || t.AskPrice.Valid ||
		t.DayHigh.Valid || t.DayLow.Valid
}

// HasData reports whether any market field is set.
func (t Tick) HasData() bool {
	return t.HasPrice() || t.Volume != nil || t.OpenInterest != nil
}

// -----------------------------------------------------------------------------
// Connection Lifecycle
// -----------------------------------------------------------------------------

// ConnectionMetrics is one record per connection lifetime. It is created when
// the socket connects and finalized exactly once when it disconnects.
type ConnectionMetrics struct {
	SessionID         uuid.UUID // Idempotency key for stores
	SessionStart      time.Time
	SessionEnd        time.Time
	MessagesReceived  int64   // Normalized ticks, not raw frames
	ReconnectAttempts int     // Attempts consumed before this session connected
	DisconnectReason  *string // nil if the session closed without a reason
}

// Duration returns the session length.
func (m ConnectionMetrics) Duration() time.Duration {
	if m.SessionEnd.IsZero() {
		return 0
	}
	return m.SessionEnd.Sub(m.SessionStart)
}

// HealthStatus is a point-in-time snapshot derived from the health monitor.
// It is never persisted as primary state.
type HealthStatus struct {
	Connected             bool      `json:"connected"`
	State                 string    `json:"state"`
	UptimeSeconds         float64   `json:"uptime_seconds"`
	MessagesReceived      int64     `json:"messages_received"`
	SubscribedCount       int       `json:"subscribed_count"`
	LastMessageAgeSeconds *float64  `json:"last_message_age_seconds"`
	ReconnectAttempts     int       `json:"reconnect_attempts"`
	TotalReconnects       int64     `json:"total_reconnects"`
	AsOf                  time.Time `json:"as_of"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
