package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *StreamerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Feed.validate(); err != nil {
		return err
	}

	if c.Credentials.Token == "" && c.Credentials.TokenFile == "" && c.Credentials.TokenServiceURL == "" {
		return errors.New("credentials: one of token, token_file or token_service_url is required")
	}

	for i, key := range c.Subscriptions.InstrumentKeys {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("subscriptions.instrument_keys[%d] is empty", i)
		}
	}

	if err := c.Connection.validate(); err != nil {
		return err
	}

	switch c.Storage.Driver {
	case DriverTimescale:
		if err := c.Storage.Timescale.validate("storage.timescale"); err != nil {
			return err
		}
	case DriverSQLite:
		if c.Storage.SQLite.Path == "" {
			return errors.New("storage.sqlite.path is required")
		}
	case DriverNone:
	default:
		return fmt.Errorf("storage.driver must be one of timescale, sqlite, none, got %q", c.Storage.Driver)
	}
	if c.Storage.Redis.Enabled() && c.Storage.Redis.MaxSessions < 1 {
		return errors.New("storage.redis.max_sessions must be >= 1")
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}
	if c.Writers.QueueSize < 1 {
		return errors.New("writers.queue_size must be >= 1")
	}
	if c.Writers.FlushInterval <= 0 {
		return errors.New("writers.flush_interval must be > 0")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (f *FeedConfig) validate() error {
	if f.AuthorizeURL == "" {
		return errors.New("feed.authorize_url is required")
	}
	u, err := url.Parse(f.AuthorizeURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("feed.authorize_url must be an http(s) URL, got %q", f.AuthorizeURL)
	}
	if f.Method != "GET" && f.Method != "POST" {
		return fmt.Errorf("feed.method must be GET or POST, got %q", f.Method)
	}
	if f.Mode != "ltpc" && f.Mode != "full" {
		return fmt.Errorf("feed.mode must be ltpc or full, got %q", f.Mode)
	}
	if f.Timeout <= 0 {
		return errors.New("feed.timeout must be > 0")
	}
	return nil
}

func (c *ConnectionConfig) validate() error {
	if c.ReconnectBaseDelay <= 0 {
		return errors.New("connection.reconnect_base_delay must be > 0")
	}
	if c.ReconnectMaxDelay < c.ReconnectBaseDelay {
		return fmt.Errorf("connection.reconnect_max_delay (%s) cannot be less than reconnect_base_delay (%s)",
			c.ReconnectMaxDelay, c.ReconnectBaseDelay)
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("connection.jitter must be between 0 and 1, got %g", c.Jitter)
	}
	if c.PingInterval <= 0 {
		return errors.New("connection.ping_interval must be > 0")
	}
	if c.PingTimeout > 0 && c.PingTimeout < c.PingInterval {
		return fmt.Errorf("connection.ping_timeout (%s) cannot be less than ping_interval (%s)",
			c.PingTimeout, c.PingInterval)
	}
	if c.BufferSize < 1 {
		return errors.New("connection.buffer_size must be >= 1")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
