package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultFeedMethod         = "GET"
	DefaultFeedMode           = "ltpc"
	DefaultFeedTimeout        = 30 * time.Second
	DefaultAccountType        = "broker"
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultJitter             = 0.2
	DefaultStableAfter        = 30 * time.Second
	DefaultMaxAuthAttempts    = 5
	DefaultPingInterval       = 30 * time.Second
	DefaultPingTimeout        = 90 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultBufferSize         = 10000
	DefaultStorageDriver      = DriverNone
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultSQLitePath         = "feedstream.db"
	DefaultRedisKeyPrefix     = "feedstream"
	DefaultRedisMaxSessions   = 1000
	DefaultRedisSessionTTL    = 7 * 24 * time.Hour
	DefaultBatchSize          = 1000
	DefaultFlushInterval      = 1 * time.Second
	DefaultQueueSize          = 100000
	DefaultHealthLogInterval  = 60 * time.Second
	DefaultUnhealthyAfter     = 2 * time.Minute
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

func (c *StreamerConfig) applyDefaults() {
	// Feed defaults
	if c.Feed.Method == "" {
		c.Feed.Method = DefaultFeedMethod
	}
	if c.Feed.Mode == "" {
		c.Feed.Mode = DefaultFeedMode
	}
	if c.Feed.Timeout == 0 {
		c.Feed.Timeout = DefaultFeedTimeout
	}
	if c.Credentials.AccountType == "" {
		c.Credentials.AccountType = DefaultAccountType
	}

	// Connection defaults
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.ReconnectMaxDelay == 0 {
		c.Connection.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connection.Jitter == 0 {
		c.Connection.Jitter = DefaultJitter
	}
	if c.Connection.StableAfter == 0 {
		c.Connection.StableAfter = DefaultStableAfter
	}
	if c.Connection.MaxAuthAttempts == 0 {
		c.Connection.MaxAuthAttempts = DefaultMaxAuthAttempts
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.PingTimeout == 0 {
		c.Connection.PingTimeout = DefaultPingTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultBufferSize
	}

	// Storage defaults
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	applyDBDefaults(&c.Storage.Timescale)
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = DefaultSQLitePath
	}
	if c.Storage.Redis.KeyPrefix == "" {
		c.Storage.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if c.Storage.Redis.MaxSessions == 0 {
		c.Storage.Redis.MaxSessions = DefaultRedisMaxSessions
	}
	if c.Storage.Redis.SessionTTL == 0 {
		c.Storage.Redis.SessionTTL = DefaultRedisSessionTTL
	}

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.QueueSize == 0 {
		c.Writers.QueueSize = DefaultQueueSize
	}

	// Health defaults
	if c.Health.LogInterval == 0 {
		c.Health.LogInterval = DefaultHealthLogInterval
	}
	if c.Health.UnhealthyAfter == 0 {
		c.Health.UnhealthyAfter = DefaultUnhealthyAfter
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
