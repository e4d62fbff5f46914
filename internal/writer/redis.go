package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/feedstream/internal/model"
)

// RedisConfig configures RedisStore.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string        // Default "feedstream"
	MaxSessions int64         // Length of the recent-sessions list
	SessionTTL  time.Duration // Lifetime of the per-session dedup marker
}

// RedisStore keeps the latest tick per instrument as a hash and a capped
// list of recent connection records. It is a cache, not an archive.
type RedisStore struct {
	client      *redis.Client
	prefix      string
	maxSessions int64
	sessionTTL  time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return newRedisStore(client, cfg), nil
}

func newRedisStore(client *redis.Client, cfg RedisConfig) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "feedstream"
	}
	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = 1000
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisStore{
		client:      client,
		prefix:      prefix,
		maxSessions: maxSessions,
		sessionTTL:  ttl,
	}
}

func (s *RedisStore) tickKey(instrumentKey string) string {
	return s.prefix + ":tick:" + instrumentKey
}

func (s *RedisStore) sessionKey(m model.ConnectionMetrics) string {
	return s.prefix + ":session:" + m.SessionID.String()
}

func (s *RedisStore) sessionsKey() string {
	return s.prefix + ":sessions"
}

// tickFields renders the set fields of t as hash fields.
func tickFields(t model.Tick) map[string]any {
	fields := map[string]any{
		"received_at": strconv.FormatInt(t.ReceivedAt.UnixMicro(), 10),
	}
	r := toTickRow(t)
	for name, v := range map[string]*string{
		"last_price": r.LastPrice,
		"bid_price":  r.BidPrice,
		"ask_price":  r.AskPrice,
		"day_high":   r.DayHigh,
		"day_low":    r.DayLow,
	} {
		if v != nil {
			fields[name] = *v
		}
	}
	if r.Volume != nil {
		fields["volume"] = strconv.FormatInt(*r.Volume, 10)
	}
	if r.OpenInterest != nil {
		fields["open_interest"] = strconv.FormatInt(*r.OpenInterest, 10)
	}
	return fields
}

// latest keeps the newest tick per instrument within a batch.
func latest(ticks []model.Tick) map[string]model.Tick {
	out := make(map[string]model.Tick, len(ticks))
	for _, t := range ticks {
		if prev, ok := out[t.InstrumentKey]; ok && prev.ReceivedAt.After(t.ReceivedAt) {
			continue
		}
		out[t.InstrumentKey] = t
	}
	return out
}

// InsertTicks overwrites the latest-tick hash of each instrument. Fields
// absent from a tick are removed so the hash always mirrors one tick.
func (s *RedisStore) InsertTicks(ctx context.Context, ticks []model.Tick) (int, error) {
	if len(ticks) == 0 {
		return 0, nil
	}

	newest := latest(ticks)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, t := range newest {
			pipe.Del(ctx, s.tickKey(key))
			pipe.HSet(ctx, s.tickKey(key), tickFields(t))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis write ticks: %w", err)
	}
	return len(ticks), nil
}

type redisSession struct {
	SessionID         string  `json:"session_id"`
	SessionStart      int64   `json:"session_start"`
	SessionEnd        int64   `json:"session_end"`
	MessagesReceived  int64   `json:"messages_received"`
	ReconnectAttempts int     `json:"reconnect_attempts"`
	DisconnectReason  *string `json:"disconnect_reason,omitempty"`
}

func encodeSession(m model.ConnectionMetrics) ([]byte, error) {
	return json.Marshal(redisSession{
		SessionID:         m.SessionID.String(),
		SessionStart:      m.SessionStart.UnixMicro(),
		SessionEnd:        m.SessionEnd.UnixMicro(),
		MessagesReceived:  m.MessagesReceived,
		ReconnectAttempts: m.ReconnectAttempts,
		DisconnectReason:  m.DisconnectReason,
	})
}

// InsertConnectionMetrics pushes the record onto the recent-sessions list.
// A per-session marker makes repeated writes of one session a no-op.
func (s *RedisStore) InsertConnectionMetrics(ctx context.Context, m model.ConnectionMetrics) error {
	data, err := encodeSession(m)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	fresh, err := s.client.SetNX(ctx, s.sessionKey(m), data, s.sessionTTL).Result()
	if err != nil {
		return fmt.Errorf("redis mark session: %w", err)
	}
	if !fresh {
		return nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.sessionsKey(), data)
		pipe.LTrim(ctx, s.sessionsKey(), 0, s.maxSessions-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis push session: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
