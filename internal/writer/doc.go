// Package writer persists ticks and connection records.
//
// Writer is the Sink handed to the connection supervisor. Ticks go through a
// bounded drop-oldest buffer and are flushed to a Store in batches, so a slow
// database never stalls the socket. Connection records bypass the buffer and
// are written synchronously; they are never dropped.
//
// Stores:
//   - TimescaleStore (pgx, ON CONFLICT DO NOTHING)
//   - SQLiteStore (gorm, embedded)
//   - RedisStore (latest tick per instrument, recent sessions)
//   - MultiStore (fan-out)
//   - NopStore
//
// Every store deduplicates ticks on (instrument_key, received_at) and
// connection records on session_id, so retried writes are harmless.
package writer
