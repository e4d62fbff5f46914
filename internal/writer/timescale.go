package writer

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/feedstream/internal/model"
)

// Schema for TimescaleStore. received_at is microseconds since epoch.
const timescaleSchema = `
CREATE TABLE IF NOT EXISTS ticks (
	instrument_key TEXT    NOT NULL,
	received_at    BIGINT  NOT NULL,
	last_price     NUMERIC,
	bid_price      NUMERIC,
	ask_price      NUMERIC,
	day_high       NUMERIC,
	day_low        NUMERIC,
	volume         BIGINT,
	open_interest  BIGINT,
	PRIMARY KEY (instrument_key, received_at)
);

SELECT create_hypertable('ticks', 'received_at',
	chunk_time_interval => 86400000000,
	if_not_exists => TRUE);

CREATE TABLE IF NOT EXISTS connection_metrics (
	session_id         UUID PRIMARY KEY,
	session_start      BIGINT NOT NULL,
	session_end        BIGINT NOT NULL,
	messages_received  BIGINT NOT NULL,
	reconnect_attempts INTEGER NOT NULL,
	disconnect_reason  TEXT
);
`

// TimescaleStore writes to TimescaleDB with pgx batches.
type TimescaleStore struct {
	db *pgxpool.Pool
}

// NewTimescaleStore wraps an open pool. Close closes the pool.
func NewTimescaleStore(db *pgxpool.Pool) *TimescaleStore {
	return &TimescaleStore{db: db}
}

// Migrate creates the tables and the hypertable if missing.
func (s *TimescaleStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, timescaleSchema); err != nil {
		return fmt.Errorf("migrate timescale: %w", err)
	}
	return nil
}

// InsertTicks inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (s *TimescaleStore) InsertTicks(ctx context.Context, ticks []model.Tick) (int, error) {
	if len(ticks) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, t := range ticks {
		r := toTickRow(t)
		batch.Queue(`
			INSERT INTO ticks (instrument_key, received_at, last_price, bid_price, ask_price, day_high, day_low, volume, open_interest)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (instrument_key, received_at) DO NOTHING
		`, r.InstrumentKey, r.ReceivedAt, r.LastPrice, r.BidPrice, r.AskPrice, r.DayHigh, r.DayLow, r.Volume, r.OpenInterest)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range ticks {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		inserted += int(ct.RowsAffected())
	}

	return inserted, nil
}

// InsertConnectionMetrics inserts one record, ignoring a repeated session_id.
func (s *TimescaleStore) InsertConnectionMetrics(ctx context.Context, m model.ConnectionMetrics) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO connection_metrics (session_id, session_start, session_end, messages_received, reconnect_attempts, disconnect_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO NOTHING
	`, m.SessionID, m.SessionStart.UnixMicro(), m.SessionEnd.UnixMicro(), m.MessagesReceived, m.ReconnectAttempts, m.DisconnectReason)
	return err
}

// Close closes the pool.
func (s *TimescaleStore) Close() error {
	s.db.Close()
	return nil
}
