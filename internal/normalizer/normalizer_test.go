package normalizer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/feedstream/internal/model"
)

var at = time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func assertDecimal(t *testing.T, want string, got decimal.NullDecimal, field string) {
	t.Helper()
	require.True(t, got.Valid, "%s should be set", field)
	assert.True(t, got.Decimal.Equal(decimal.RequireFromString(want)), "%s = %s, want %s", field, got.Decimal, want)
}

func TestParse_FullFeed(t *testing.T) {
	frame := []byte(`{
		"type": "live_feed",
		"feeds": {
			"NSE_EQ|INE002A01018": {
				"ff": {
					"marketFF": {
						"ltpc": {"ltp": 2874.35, "ltt": "1740887100000", "cp": 2850.1},
						"marketLevel": {"bidAskQuote": [
							{"bq": "10", "bp": 2874.3, "bno": "1", "aq": "5", "ap": 2874.4},
							{"bq": "20", "bp": 2874.2, "aq": "7", "ap": 2874.5}
						]},
						"marketOHLC": {"ohlc": [
							{"interval": "I1", "open": 2870, "high": 2875, "low": 2869, "close": 2874},
							{"interval": "1d", "open": 2851, "high": 2880.55, "low": 2845.0, "close": 2874.35}
						]},
						"eFeedDetails": {"vtt": "1234567", "oi": 0}
					}
				}
			}
		},
		"currentTs": "1740887100123"
	}`)

	ticks, err := Parse(frame, at)
	require.Nil(t, err)
	require.Len(t, ticks, 1)

	tick := ticks[0]
	assert.Equal(t, "NSE_EQ|INE002A01018", tick.InstrumentKey)
	assert.Equal(t, at, tick.ReceivedAt)
	assertDecimal(t, "2874.35", tick.LastTradedPrice, "LastTradedPrice")
	assertDecimal(t, "2874.3", tick.BidPrice, "BidPrice")
	assertDecimal(t, "2874.4", tick.AskPrice, "AskPrice")
	assertDecimal(t, "2880.55", tick.DayHigh, "DayHigh")
	assertDecimal(t, "2845", tick.DayLow, "DayLow")
	require.NotNil(t, tick.Volume)
	assert.Equal(t, int64(1234567), *tick.Volume)
	require.NotNil(t, tick.OpenInterest, "zero open interest must be set, not dropped")
	assert.Equal(t, int64(0), *tick.OpenInterest)
}

func TestParse_MultipleInstrumentsAndModes(t *testing.T) {
	frame := []byte(`{
		"type": "live_feed",
		"feeds": {
			"NSE_EQ|A": {"ltpc": {"ltp": 101.5}},
			"NSE_INDEX|Nifty 50": {"ff": {"indexFF": {"ltpc": {"ltp": 22500.05}}}},
			"NSE_FO|B": {"fullFeed": {"marketFF": {
				"ltpc": {"ltp": "0"},
				"marketLevel": {"bidAskQuote": [{"bidP": 99.5, "askP": 100.5}]},
				"vtt": 42, "oi": "1500"
			}}}
		}
	}`)

	ticks, err := Parse(frame, at)
	require.Nil(t, err)
	require.Len(t, ticks, 3)

	// Document order is preserved.
	assert.Equal(t, "NSE_EQ|A", ticks[0].InstrumentKey)
	assert.Equal(t, "NSE_INDEX|Nifty 50", ticks[1].InstrumentKey)
	assert.Equal(t, "NSE_FO|B", ticks[2].InstrumentKey)

	assertDecimal(t, "101.5", ticks[0].LastTradedPrice, "ltpc ltp")
	assert.False(t, ticks[0].BidPrice.Valid, "ltpc mode has no bid")
	assert.Nil(t, ticks[0].Volume)

	assertDecimal(t, "22500.05", ticks[1].LastTradedPrice, "index ltp")

	assertDecimal(t, "0", ticks[2].LastTradedPrice, "zero ltp")
	assertDecimal(t, "99.5", ticks[2].BidPrice, "bidP")
	assertDecimal(t, "100.5", ticks[2].AskPrice, "askP")
	require.NotNil(t, ticks[2].Volume)
	assert.Equal(t, int64(42), *ticks[2].Volume)
	require.NotNil(t, ticks[2].OpenInterest)
	assert.Equal(t, int64(1500), *ticks[2].OpenInterest)
}

func TestParse_AbsentFieldsAreUnset(t *testing.T) {
	frame := []byte(`{"feeds": {"X|1": {"ff": {"marketFF": {
		"ltpc": {"ltp": null},
		"marketLevel": {"bidAskQuote": []},
		"marketOHLC": {"ohlc": [{"interval": "I1", "high": 5, "low": 4}]},
		"vtt": "n/a",
		"oi": 9
	}}}}}`)

	ticks, err := Parse(frame, at)
	require.Nil(t, err)
	require.Len(t, ticks, 1)

	tick := ticks[0]
	assert.False(t, tick.LastTradedPrice.Valid)
	assert.False(t, tick.BidPrice.Valid)
	assert.False(t, tick.AskPrice.Valid)
	assert.False(t, tick.DayHigh.Valid, "only the 1d bar feeds day high")
	assert.False(t, tick.DayLow.Valid)
	assert.Nil(t, tick.Volume, "unparseable volume is unset, not zero")
	require.NotNil(t, tick.OpenInterest)
	assert.Equal(t, int64(9), *tick.OpenInterest)
}

func TestParse_SkipsTicksWithoutData(t *testing.T) {
	frame := []byte(`{"feeds": {
		"A": {"unknownFeed": {"x": 1}},
		"B": {"ltpc": {"ltp": 10}},
		"C": {"ff": {"marketFF": {"vtt": "n/a"}}}
	}}`)
	ticks, err := Parse(frame, at)
	require.Nil(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, "B", ticks[0].InstrumentKey)

	ticks, err = Parse([]byte(`[{"instrument_key":"A"},{"instrument_key":"B","ltp":1}]`), at)
	require.Nil(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, "B", ticks[0].InstrumentKey)

	ticks, err = Parse([]byte(`{"instrument_key":"A","ltp":null}`), at)
	require.Nil(t, err)
	assert.Empty(t, ticks)
}

func TestParse_FlatShapes(t *testing.T) {
	t.Run("single object", func(t *testing.T) {
		ticks, err := Parse([]byte(`{"instrument_key":"BSE_EQ|1","ltp":"12.3400","bid":12.3,"ask":12.35,"volume":100}`), at)
		require.Nil(t, err)
		require.Len(t, ticks, 1)
		assert.Equal(t, "BSE_EQ|1", ticks[0].InstrumentKey)
		assertDecimal(t, "12.34", ticks[0].LastTradedPrice, "ltp")
		assert.Equal(t, "12.34", ticks[0].LastTradedPrice.Decimal.String())
		assertDecimal(t, "12.3", ticks[0].BidPrice, "bid")
		assertDecimal(t, "12.35", ticks[0].AskPrice, "ask")
		assert.False(t, ticks[0].DayHigh.Valid)
		require.NotNil(t, ticks[0].Volume)
		assert.Equal(t, int64(100), *ticks[0].Volume)
	})

	t.Run("array", func(t *testing.T) {
		ticks, err := Parse([]byte(`[{"instrumentKey":"A","ltp":1},{"ltp":2},{"instrument_key":"B","oi":7}]`), at)
		require.Nil(t, err)
		require.Len(t, ticks, 2, "objects without a key are skipped")
		assert.Equal(t, "A", ticks[0].InstrumentKey)
		assert.Equal(t, "B", ticks[1].InstrumentKey)
		require.NotNil(t, ticks[1].OpenInterest)
		assert.Equal(t, int64(7), *ticks[1].OpenInterest)
	})

	t.Run("integral float volume", func(t *testing.T) {
		ticks, err := Parse([]byte(`{"instrument_key":"A","volume":1.5e3}`), at)
		require.Nil(t, err)
		require.NotNil(t, ticks[0].Volume)
		assert.Equal(t, int64(1500), *ticks[0].Volume)
	})

	t.Run("fractional volume is unset", func(t *testing.T) {
		ticks, err := Parse([]byte(`{"instrument_key":"A","ltp":1,"volume":1.5}`), at)
		require.Nil(t, err)
		require.Len(t, ticks, 1)
		assert.Nil(t, ticks[0].Volume)
	})

	t.Run("volume outside int64 is unset", func(t *testing.T) {
		for _, v := range []string{`1e30`, `"1e30"`, `"-9223372036854775809"`} {
			ticks, err := Parse([]byte(`{"instrument_key":"A","ltp":1,"volume":`+v+`}`), at)
			require.Nil(t, err, v)
			require.Len(t, ticks, 1, v)
			assert.Nil(t, ticks[0].Volume, v)
		}
	})
}

func TestParse_ControlFrames(t *testing.T) {
	for _, frame := range []string{
		`{"type":"market_info","marketInfo":{"segmentStatus":{"NSE_EQ":"NORMAL_OPEN"}}}`,
		`{"feeds":{}}`,
		`{}`,
		`[]`,
	} {
		ticks, err := Parse([]byte(frame), at)
		assert.Nil(t, err, frame)
		assert.Empty(t, ticks, frame)
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
	}{
		{"empty", nil},
		{"truncated json", []byte(`{"feeds":{"A":{"ltpc":{"ltp":1`)},
		{"binary", []byte{0x0a, 0x08, 0xff, 0x00, 0x12}},
		{"bare number", []byte(`42`)},
		{"bare string", []byte(`"hello"`)},
		{"null", []byte(`null`)},
		{"feeds not object", []byte(`{"feeds":[1,2]}`)},
		{"array of scalars", []byte(`[{"instrument_key":"A"},3]`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticks, err := Parse(tt.frame, at)
			require.NotNil(t, err)
			assert.Nil(t, ticks)
			assert.Equal(t, len(tt.frame), err.Size)
			assert.Contains(t, err.Error(), "malformed frame")
		})
	}
}

func TestNormalizer_DropsMalformed(t *testing.T) {
	n := New(nil)
	n.now = func() time.Time { return at }

	ticks, ok := n.Normalize([]byte("not json at all"))
	assert.False(t, ok)
	assert.Nil(t, ticks)

	ticks, ok = n.Normalize([]byte(`{"feeds":{"A":{"ltpc":{"ltp":1}}}}`))
	require.True(t, ok)
	require.Len(t, ticks, 1)
	assert.Equal(t, at, ticks[0].ReceivedAt, "Normalize stamps with the injected clock")
}

func TestNormalizer_NeverPanics(t *testing.T) {
	n := New(nil)
	inputs := [][]byte{
		[]byte(`{"feeds":{"A":{"ff":{"marketFF":{"marketOHLC":{"ohlc":"x"}}}}}}`),
		[]byte(`{"feeds":{"A":{"ff":{"marketFF":{"marketLevel":{"bidAskQuote":"x"}}}}}}`),
		[]byte(`{"feeds":{"A":1,"B":"x","C":null}}`),
		[]byte(`{"instrument_key":5}`),
		[]byte(`{"instrument_key":"A","ltp":{"nested":true}}`),
		[]byte(`{"feeds":{"A":{"ltpc":{"ltp":"1e400000"}}}}`),
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { n.NormalizeAt(in, at) }, string(in))
	}
}

func TestParse_TicksAreIndependentValues(t *testing.T) {
	frame := []byte(`{"feeds":{"A":{"ltpc":{"ltp":1}},"B":{"ltpc":{"ltp":2}}}}`)
	ticks, err := Parse(frame, at)
	require.Nil(t, err)

	again, err := Parse(frame, at)
	require.Nil(t, err)

	ticks[0].InstrumentKey = "mutated"
	assert.Equal(t, "A", again[0].InstrumentKey)
	assert.IsType(t, model.Tick{}, again[1])
}
