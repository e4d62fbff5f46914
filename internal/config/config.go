package config

import "time"

// StreamerConfig is the root configuration for a streamer instance.
type StreamerConfig struct {
	Instance      InstanceConfig      `yaml:"instance"`
	Feed          FeedConfig          `yaml:"feed"`
	Credentials   CredentialsConfig   `yaml:"credentials"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Connection    ConnectionConfig    `yaml:"connection"`
	Storage       StorageConfig       `yaml:"storage"`
	Writers       WritersConfig       `yaml:"writers"`
	Health        HealthConfig        `yaml:"health"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// InstanceConfig identifies this streamer.
type InstanceConfig struct {
	ID string `yaml:"id"`
	AZ string `yaml:"az"`
}

// FeedConfig holds the authorization endpoint and stream settings.
type FeedConfig struct {
	AuthorizeURL string        `yaml:"authorize_url"`
	Method       string        `yaml:"method"` // GET or POST
	Mode         string        `yaml:"mode"`   // ltpc or full
	Timeout      time.Duration `yaml:"timeout"`
}

// CredentialsConfig selects where the bearer token comes from. The first
// non-empty source wins: token, then token_file, then token_service_url.
type CredentialsConfig struct {
	Token           string `yaml:"token"`
	TokenFile       string `yaml:"token_file"`
	TokenServiceURL string `yaml:"token_service_url"`
	AccountType     string `yaml:"account_type"`
}

// SubscriptionsConfig holds the instruments subscribed at startup.
type SubscriptionsConfig struct {
	InstrumentKeys []string `yaml:"instrument_keys"`
}

// ConnectionConfig holds WebSocket supervisor settings.
type ConnectionConfig struct {
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	Jitter             float64       `yaml:"jitter"`
	StableAfter        time.Duration `yaml:"stable_after"`      // negative resets backoff on every connect
	MaxAuthAttempts    int           `yaml:"max_auth_attempts"` // negative retries forever
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
}

// Storage drivers.
const (
	DriverTimescale = "timescale"
	DriverSQLite    = "sqlite"
	DriverNone      = "none"
)

// StorageConfig selects the primary tick store and an optional Redis cache.
type StorageConfig struct {
	Driver    string       `yaml:"driver"`
	Timescale DBConfig     `yaml:"timescale"`
	SQLite    SQLiteConfig `yaml:"sqlite"`
	Redis     RedisConfig  `yaml:"redis"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// SQLiteConfig holds the embedded store location.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig holds the latest-tick cache. Empty Addr disables it.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	KeyPrefix   string        `yaml:"key_prefix"`
	MaxSessions int64         `yaml:"max_sessions"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
}

// Enabled reports whether a Redis cache is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	QueueSize     int           `yaml:"queue_size"`
}

// HealthConfig holds health reporting settings.
type HealthConfig struct {
	LogInterval time.Duration `yaml:"log_interval"`
	// UnhealthyAfter is how long the stream may be disconnected before
	// /health reports 503.
	UnhealthyAfter time.Duration `yaml:"unhealthy_after"`
}

// MetricsConfig holds the ops HTTP server settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig holds log handler settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
