package writer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/feedstream/internal/model"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "feed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()

	full := model.Tick{
		InstrumentKey:   "NSE_EQ|INE002A01018",
		LastTradedPrice: decimal.NewNullDecimal(decimal.RequireFromString("2456.35")),
		BidPrice:        decimal.NewNullDecimal(decimal.RequireFromString("2456.30")),
		AskPrice:        decimal.NewNullDecimal(decimal.RequireFromString("2456.40")),
		DayHigh:         decimal.NewNullDecimal(decimal.RequireFromString("2470")),
		DayLow:          decimal.NewNullDecimal(decimal.RequireFromString("2440.05")),
		Volume:          model.Int64Ptr(1234567),
		OpenInterest:    model.Int64Ptr(42),
		ReceivedAt:      baseTime,
	}
	sparse := model.Tick{
		InstrumentKey:   "NSE_EQ|INE002A01018",
		LastTradedPrice: decimal.NewNullDecimal(decimal.RequireFromString("2456.40")),
		ReceivedAt:      baseTime.Add(time.Microsecond),
	}

	n, err := store.InsertTicks(ctx, []model.Tick{full, sparse})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.Ticks(ctx, full.InstrumentKey)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.True(t, full.ReceivedAt.Equal(got[0].ReceivedAt))
	assert.Equal(t, "2456.35", got[0].LastTradedPrice.Decimal.String())
	assert.Equal(t, "2440.05", got[0].DayLow.Decimal.String())
	assert.Equal(t, int64(1234567), *got[0].Volume)
	assert.Equal(t, int64(42), *got[0].OpenInterest)

	assert.True(t, got[1].LastTradedPrice.Valid)
	assert.False(t, got[1].BidPrice.Valid, "absent stays absent")
	assert.Nil(t, got[1].Volume)
}

func TestSQLiteStore_DedupsTicks(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()

	ticks := []model.Tick{testTick("A", 1), testTick("A", 2)}
	n, err := store.InsertTicks(ctx, ticks)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.InsertTicks(ctx, append(ticks, testTick("A", 3)))
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the new key is inserted")

	got, err := store.Ticks(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestSQLiteStore_LargeBatch(t *testing.T) {
	store := openTestSQLite(t)

	ticks := make([]model.Tick, 1000)
	for i := range ticks {
		ticks[i] = testTick("A", i)
	}
	n, err := store.InsertTicks(context.Background(), ticks)
	require.NoError(t, err)
	assert.Equal(t, 1000, n)
}

func TestSQLiteStore_ConnectionMetricsIdempotent(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()

	rec := model.ConnectionMetrics{
		SessionID:         uuid.New(),
		SessionStart:      baseTime,
		SessionEnd:        baseTime.Add(time.Minute),
		MessagesReceived:  3,
		ReconnectAttempts: 1,
		DisconnectReason:  model.StringPtr("EOF"),
	}
	require.NoError(t, store.InsertConnectionMetrics(ctx, rec))
	require.NoError(t, store.InsertConnectionMetrics(ctx, rec))

	n, err := store.ConnectionMetricsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLiteStore_BehindWriter(t *testing.T) {
	store := openTestSQLite(t)
	w := NewWriter(WriterConfig{BatchSize: 10, FlushInterval: time.Hour, QueueSize: 100}, store, quietLogger())
	require.NoError(t, w.Start(context.Background()))

	for i := 0; i < 25; i++ {
		w.WriteTick(context.Background(), testTick("A", i))
	}
	require.NoError(t, w.Stop(context.Background()))

	got, err := store.Ticks(context.Background(), "A")
	require.NoError(t, err)
	assert.Len(t, got, 25)
	assert.Equal(t, int64(25), w.Stats().Inserts)
}
