package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/rickgao/feedstream/internal/auth"
	"github.com/rickgao/feedstream/internal/config"
	"github.com/rickgao/feedstream/internal/connection"
	"github.com/rickgao/feedstream/internal/database"
	"github.com/rickgao/feedstream/internal/version"
	"github.com/rickgao/feedstream/internal/writer"
)

// newLogger builds the process logger from the logging section.
func newLogger(cfg config.LoggingConfig, out io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// tokenProvider picks the first configured credential source.
func tokenProvider(cfg config.CredentialsConfig, logger *slog.Logger) auth.TokenProvider {
	switch {
	case cfg.Token != "":
		return auth.StaticToken(cfg.Token)
	case cfg.TokenFile != "":
		return auth.FileToken{Path: cfg.TokenFile}
	default:
		return auth.NewServiceToken(cfg.TokenServiceURL, cfg.AccountType, logger)
	}
}

// supervisorConfig maps the connection section onto the supervisor.
func supervisorConfig(cfg config.ConnectionConfig) connection.SupervisorConfig {
	sc := connection.DefaultSupervisorConfig()
	sc.ReconnectBaseDelay = cfg.ReconnectBaseDelay
	sc.ReconnectMaxDelay = cfg.ReconnectMaxDelay
	sc.Jitter = cfg.Jitter
	sc.StableAfter = max(cfg.StableAfter, 0)
	sc.MaxAuthAttempts = max(cfg.MaxAuthAttempts, 0)

	sc.Client.PingInterval = cfg.PingInterval
	sc.Client.PingTimeout = cfg.PingTimeout
	sc.Client.WriteTimeout = cfg.WriteTimeout
	sc.Client.HandshakeTimeout = cfg.HandshakeTimeout
	sc.Client.BufferSize = cfg.BufferSize
	sc.Client.Header = http.Header{"User-Agent": {version.UserAgent()}}
	return sc
}

// openStore opens the primary store for the configured driver and fans out
// to Redis when a cache address is set.
func openStore(ctx context.Context, cfg *config.StreamerConfig, logger *slog.Logger) (writer.Store, error) {
	var primary writer.Store

	switch cfg.Storage.Driver {
	case config.DriverTimescale:
		pool, err := database.Connect(ctx, cfg.Storage.Timescale, "feedstream-"+cfg.Instance.ID, logger)
		if err != nil {
			return nil, fmt.Errorf("connect timescale: %w", err)
		}
		ts := writer.NewTimescaleStore(pool)
		if err := ts.Migrate(ctx); err != nil {
			ts.Close()
			return nil, fmt.Errorf("migrate timescale: %w", err)
		}
		primary = ts
	case config.DriverSQLite:
		s, err := writer.OpenSQLite(cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("sqlite store opened", "path", cfg.Storage.SQLite.Path)
		primary = s
	default:
		logger.Warn("storage driver is none, ticks will not be persisted")
		primary = writer.NopStore{}
	}

	if !cfg.Storage.Redis.Enabled() {
		return primary, nil
	}

	rc := cfg.Storage.Redis
	cache, err := writer.NewRedisStore(ctx, writer.RedisConfig{
		Addr:        rc.Addr,
		Password:    rc.Password,
		DB:          rc.DB,
		KeyPrefix:   rc.KeyPrefix,
		MaxSessions: rc.MaxSessions,
		SessionTTL:  rc.SessionTTL,
	})
	if err != nil {
		primary.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("redis cache enabled", "addr", rc.Addr, "prefix", rc.KeyPrefix)

	return writer.NewMultiStore(logger, primary, cache), nil
}
