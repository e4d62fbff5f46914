// Package model defines shared data types used across the feed streamer.
//
// Conventions:
//   - Prices: shopspring/decimal, parsed from the exact wire text
//   - Optional fields: decimal.NullDecimal / *int64; absent means unset, never zero
//   - Timestamps: time.Time in memory, int64 microseconds since Unix epoch in storage
//   - IDs: string for instrument keys (e.g. "NSE_EQ|INE002A01018"), uuid.UUID for sessions
package model
