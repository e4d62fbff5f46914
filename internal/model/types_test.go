package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TestModelTypes validates that model types can be instantiated correctly.
func TestModelTypes(t *testing.T) {
	t.Run("Tick", func(t *testing.T) {
		now := time.UnixMicro(1705321845000000)
		tick := Tick{
			InstrumentKey:   "NSE_EQ|INE002A01018",
			LastTradedPrice: decimal.NewNullDecimal(decimal.RequireFromString("2874.35")),
			Volume:          Int64Ptr(0),
			ReceivedAt:      now,
		}

		if !tick.LastTradedPrice.Valid {
			t.Error("LastTradedPrice should be set")
		}
		if tick.BidPrice.Valid {
			t.Error("BidPrice should be unset")
		}
		if tick.Volume == nil || *tick.Volume != 0 {
			t.Errorf("Volume = %v, want pointer to 0", tick.Volume)
		}
		if tick.OpenInterest != nil {
			t.Errorf("OpenInterest = %v, want nil", *tick.OpenInterest)
		}
		if !tick.HasPrice() {
			t.Error("HasPrice() = false, want true")
		}
	})

	t.Run("TickKey", func(t *testing.T) {
		now := time.UnixMicro(1705321845000123)
		tick := Tick{InstrumentKey: "A", ReceivedAt: now}
		want := TickKey{InstrumentKey: "A", ReceivedAt: 1705321845000123}
		if tick.Key() != want {
			t.Errorf("Key() = %+v, want %+v", tick.Key(), want)
		}
	})

	t.Run("Tick without prices", func(t *testing.T) {
		tick := Tick{InstrumentKey: "A", OpenInterest: Int64Ptr(10)}
		if tick.HasPrice() {
			t.Error("HasPrice() = true, want false")
		}
		if !tick.HasData() {
			t.Error("HasData() = false, want true")
		}
		if (Tick{InstrumentKey: "A"}).HasData() {
			t.Error("HasData() on empty tick = true, want false")
		}
	})

	t.Run("ConnectionMetrics", func(t *testing.T) {
		start := time.Unix(1705321845, 0)
		m := ConnectionMetrics{
			SessionID:         uuid.New(),
			SessionStart:      start,
			SessionEnd:        start.Add(90 * time.Second),
			MessagesReceived:  42,
			ReconnectAttempts: 3,
			DisconnectReason:  StringPtr("websocket: close 1006"),
		}

		if m.Duration() != 90*time.Second {
			t.Errorf("Duration() = %v, want %v", m.Duration(), 90*time.Second)
		}
		if *m.DisconnectReason != "websocket: close 1006" {
			t.Errorf("DisconnectReason = %q", *m.DisconnectReason)
		}
	})

	t.Run("ConnectionMetrics open session", func(t *testing.T) {
		m := ConnectionMetrics{SessionStart: time.Now()}
		if m.Duration() != 0 {
			t.Errorf("Duration() = %v, want 0 for unfinished session", m.Duration())
		}
	})
}
