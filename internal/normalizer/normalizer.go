package normalizer

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/rickgao/feedstream/internal/model"
)

// MalformedFrameError describes a frame that could not be parsed.
type MalformedFrameError struct {
	Reason  string
	Size    int
	Snippet string // First bytes of the frame, for logs
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame (%d bytes): %s", e.Size, e.Reason)
}

const snippetLen = 64

func malformed(frame []byte, reason string) *MalformedFrameError {
	snippet := frame
	if len(snippet) > snippetLen {
		snippet = snippet[:snippetLen]
	}
	return &MalformedFrameError{
		Reason:  reason,
		Size:    len(frame),
		Snippet: strings.ToValidUTF8(string(snippet), "?"),
	}
}

// Normalizer maps feed frames to ticks. It holds no per-stream state and is
// safe for concurrent use.
type Normalizer struct {
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Normalizer that stamps ticks with the wall clock.
func New(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger, now: time.Now}
}

// Normalize parses frame and stamps every tick with the current time.
// It returns ok=false for malformed frames, which are logged and dropped.
func (n *Normalizer) Normalize(frame []byte) ([]model.Tick, bool) {
	return n.NormalizeAt(frame, n.now())
}

// NormalizeAt is Normalize with an explicit receive time.
func (n *Normalizer) NormalizeAt(frame []byte, receivedAt time.Time) ([]model.Tick, bool) {
	ticks, err := Parse(frame, receivedAt)
	if err != nil {
		n.logger.Warn("dropping malformed frame",
			"error", err,
			"snippet", err.Snippet,
		)
		return nil, false
	}
	return ticks, true
}

// Parse converts one frame into zero or more ticks, one per instrument.
// A frame that is valid JSON but carries no market data yields no ticks and
// no error.
func Parse(frame []byte, receivedAt time.Time) ([]model.Tick, *MalformedFrameError) {
	if len(frame) == 0 {
		return nil, malformed(frame, "empty frame")
	}
	if !gjson.ValidBytes(frame) {
		return nil, malformed(frame, "invalid json")
	}

	root := gjson.ParseBytes(frame)

	switch {
	case root.IsArray():
		var ticks []model.Tick
		var bad *MalformedFrameError
		root.ForEach(func(_, item gjson.Result) bool {
			if !item.IsObject() {
				bad = malformed(frame, "array element is not an object")
				return false
			}
			if key := flatKey(item); key != "" {
				ticks = appendTick(ticks, flatTick(key, item, receivedAt))
			}
			return true
		})
		if bad != nil {
			return nil, bad
		}
		return ticks, nil

	case root.IsObject():
		if feeds := root.Get("feeds"); feeds.Exists() {
			if !feeds.IsObject() {
				return nil, malformed(frame, "feeds is not an object")
			}
			ticks := make([]model.Tick, 0, 4)
			feeds.ForEach(func(key, feed gjson.Result) bool {
				if key.Str == "" || !feed.IsObject() {
					return true
				}
				ticks = appendTick(ticks, feedTick(key.Str, feed, receivedAt))
				return true
			})
			return ticks, nil
		}
		if key := flatKey(root); key != "" {
			return appendTick(nil, flatTick(key, root, receivedAt)), nil
		}
		// Control or informational frame.
		return nil, nil

	default:
		return nil, malformed(frame, "unexpected top-level "+root.Type.String())
	}
}

// appendTick drops ticks that carry no market field.
func appendTick(ticks []model.Tick, tick model.Tick) []model.Tick {
	if !tick.HasData() {
		return ticks
	}
	return append(ticks, tick)
}

// feedTick reads one entry of the "feeds" map.
func feedTick(key string, feed gjson.Result, receivedAt time.Time) model.Tick {
	tick := model.Tick{InstrumentKey: key, ReceivedAt: receivedAt}

	body := feed
	if full := feed.Get("fullFeed"); full.IsObject() {
		body = full
	} else if ff := feed.Get("ff"); ff.IsObject() {
		body = ff
	}

	market := body.Get("marketFF")
	if !market.IsObject() {
		market = body.Get("indexFF")
	}

	ltpc := feed.Get("ltpc")
	if !ltpc.IsObject() && market.IsObject() {
		ltpc = market.Get("ltpc")
	}
	tick.LastTradedPrice = decimalOf(ltpc.Get("ltp"))

	if !market.IsObject() {
		return tick
	}

	quote := market.Get("marketLevel.bidAskQuote.0")
	tick.BidPrice = decimalOf(first(quote, "bp", "bidP"))
	tick.AskPrice = decimalOf(first(quote, "ap", "askP"))

	market.Get("marketOHLC.ohlc").ForEach(func(_, bar gjson.Result) bool {
		if bar.Get("interval").Str != "1d" {
			return true
		}
		tick.DayHigh = decimalOf(bar.Get("high"))
		tick.DayLow = decimalOf(bar.Get("low"))
		return false
	})

	tick.Volume = intOf(first(market, "vtt", "eFeedDetails.vtt"))
	tick.OpenInterest = intOf(first(market, "oi", "eFeedDetails.oi"))

	return tick
}

// flatTick reads a flat {"instrument_key": ..., "ltp": ...} object.
func flatTick(key string, obj gjson.Result, receivedAt time.Time) model.Tick {
	return model.Tick{
		InstrumentKey:   key,
		LastTradedPrice: decimalOf(first(obj, "ltp", "last_price", "last_traded_price")),
		BidPrice:        decimalOf(first(obj, "bid", "bid_price")),
		AskPrice:        decimalOf(first(obj, "ask", "ask_price")),
		DayHigh:         decimalOf(first(obj, "high", "day_high")),
		DayLow:          decimalOf(first(obj, "low", "day_low")),
		Volume:          intOf(first(obj, "volume", "vtt")),
		OpenInterest:    intOf(first(obj, "oi", "open_interest")),
		ReceivedAt:      receivedAt,
	}
}

func flatKey(obj gjson.Result) string {
	v := first(obj, "instrument_key", "instrumentKey")
	if v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.Str)
}

// first returns the first path that exists and is not null.
func first(obj gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := obj.Get(p); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// decimalOf parses the raw JSON token so no precision is lost through float64.
func decimalOf(v gjson.Result) decimal.NullDecimal {
	var text string
	switch v.Type {
	case gjson.Number:
		text = v.Raw
	case gjson.String:
		text = strings.TrimSpace(v.Str)
	default:
		return decimal.NullDecimal{}
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// intOf accepts integral numbers and numeric strings (int64 fields are often
// string-encoded in JSON feeds).
func intOf(v gjson.Result) *int64 {
	var text string
	switch v.Type {
	case gjson.Number:
		text = v.Raw
	case gjson.String:
		text = strings.TrimSpace(v.Str)
	default:
		return nil
	}

	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return &n
	}

	d, err := decimal.NewFromString(text)
	if err != nil || !d.IsInteger() {
		return nil
	}
	bi := d.BigInt()
	if !bi.IsInt64() {
		return nil
	}
	n := bi.Int64()
	return &n
}
