package subscription

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Codec encodes control frames for a specific feed. Encoding an empty key
// set yields a nil frame and no error; callers must not send it.
type Codec interface {
	EncodeSubscribe(keys []string) ([]byte, error)
	EncodeUnsubscribe(keys []string) ([]byte, error)
}

// ModeEncoder is implemented by codecs whose feed can switch the mode of
// already subscribed keys.
type ModeEncoder interface {
	EncodeModeChange(mode string, keys []string) ([]byte, error)
}

// Feed modes understood by JSONCodec.
const (
	ModeLTPC = "ltpc"
	ModeFull = "full"
)

// Control frame methods.
const (
	MethodSubscribe   = "sub"
	MethodUnsubscribe = "unsub"
	MethodChangeMode  = "change_mode"
)

// Request is the JSON control frame sent to the feed.
type Request struct {
	GUID   string      `json:"guid"`
	Method string      `json:"method"`
	Data   RequestData `json:"data"`
}

// RequestData carries the instrument keys of a control frame.
type RequestData struct {
	Mode           string   `json:"mode,omitempty"`
	InstrumentKeys []string `json:"instrumentKeys"`
}

var _ ModeEncoder = (*JSONCodec)(nil)

// JSONCodec produces {"guid":..., "method":"sub"|"unsub", "data":{...}} frames.
type JSONCodec struct {
	Mode string // Sent with subscribe frames; empty omits it

	newGUID func() string
}

// NewJSONCodec creates a codec that subscribes in the given mode.
func NewJSONCodec(mode string) *JSONCodec {
	return &JSONCodec{Mode: mode}
}

// EncodeSubscribe encodes a "sub" frame.
func (c *JSONCodec) EncodeSubscribe(keys []string) ([]byte, error) {
	return c.encode(MethodSubscribe, c.Mode, keys)
}

// EncodeUnsubscribe encodes an "unsub" frame.
func (c *JSONCodec) EncodeUnsubscribe(keys []string) ([]byte, error) {
	return c.encode(MethodUnsubscribe, "", keys)
}

// EncodeModeChange encodes a "change_mode" frame switching keys to mode.
func (c *JSONCodec) EncodeModeChange(mode string, keys []string) ([]byte, error) {
	if mode == "" {
		return nil, fmt.Errorf("change_mode requires a mode")
	}
	return c.encode(MethodChangeMode, mode, keys)
}

func (c *JSONCodec) encode(method, mode string, keys []string) ([]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	req := Request{
		GUID:   c.guid(),
		Method: method,
		Data: RequestData{
			Mode:           mode,
			InstrumentKeys: sorted,
		},
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", method, err)
	}
	return data, nil
}

func (c *JSONCodec) guid() string {
	if c.newGUID != nil {
		return c.newGUID()
	}
	return uuid.NewString()
}

// DecodeRequest parses a control frame produced by JSONCodec.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("decode control frame: %w", err)
	}
	return req, nil
}
