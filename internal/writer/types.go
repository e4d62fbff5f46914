package writer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/feedstream/internal/model"
)

// ErrWriterClosed is returned by WriteTick after Stop.
var ErrWriterClosed = errors.New("writer closed")

// Sink accepts normalized ticks and finalized connection records.
type Sink interface {
	WriteTick(ctx context.Context, tick model.Tick) error
	WriteConnectionMetrics(ctx context.Context, m model.ConnectionMetrics) error
}

// Store is a persistence backend. InsertTicks returns the number of rows
// actually inserted; duplicates are skipped, not errors.
type Store interface {
	InsertTicks(ctx context.Context, ticks []model.Tick) (int, error)
	InsertConnectionMetrics(ctx context.Context, m model.ConnectionMetrics) error
	Close() error
}

// WriterConfig configures a Writer.
type WriterConfig struct {
	// BatchSize is the number of ticks to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// QueueSize bounds the tick buffer. When full the oldest tick is dropped.
	QueueSize int
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     1000,
		FlushInterval: time.Second,
		QueueSize:     100000,
	}
}

// WriterMetrics tracks writer statistics.
type WriterMetrics struct {
	Inserts        int64
	Conflicts      int64
	Errors         int64
	Flushes        int64
	Dropped        int64
	MetricsWritten int64
	QueueDepth     int
}

// PersistenceError is a failed store write.
type PersistenceError struct {
	Op    string // "insert_ticks" or "insert_connection_metrics"
	Count int    // Rows in the failed write
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s (%d rows): %v", e.Op, e.Count, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// tickRow is a tick flattened for SQL stores.
type tickRow struct {
	InstrumentKey string
	ReceivedAt    int64 // Microseconds
	LastPrice     *string
	BidPrice      *string
	AskPrice      *string
	DayHigh       *string
	DayLow        *string
	Volume        *int64
	OpenInterest  *int64
}

func toTickRow(t model.Tick) tickRow {
	return tickRow{
		InstrumentKey: t.InstrumentKey,
		ReceivedAt:    t.ReceivedAt.UnixMicro(),
		LastPrice:     decimalString(t.LastTradedPrice),
		BidPrice:      decimalString(t.BidPrice),
		AskPrice:      decimalString(t.AskPrice),
		DayHigh:       decimalString(t.DayHigh),
		DayLow:        decimalString(t.DayLow),
		Volume:        t.Volume,
		OpenInterest:  t.OpenInterest,
	}
}

func fromTickRow(r tickRow) model.Tick {
	return model.Tick{
		InstrumentKey:   r.InstrumentKey,
		ReceivedAt:      time.UnixMicro(r.ReceivedAt).UTC(),
		LastTradedPrice: parseDecimal(r.LastPrice),
		BidPrice:        parseDecimal(r.BidPrice),
		AskPrice:        parseDecimal(r.AskPrice),
		DayHigh:         parseDecimal(r.DayHigh),
		DayLow:          parseDecimal(r.DayLow),
		Volume:          r.Volume,
		OpenInterest:    r.OpenInterest,
	}
}
