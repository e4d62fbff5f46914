// streamtest connects to the feed and prints normalized ticks to the console.
// Nothing is persisted.
// Usage: go run ./cmd/streamtest --config configs/streamer.local.yaml [--keys "NSE_EQ|INE002A01018,..."]
//
// Credentials come from the config file, usually via ${FEED_ACCESS_TOKEN}.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rickgao/feedstream/internal/api"
	"github.com/rickgao/feedstream/internal/auth"
	"github.com/rickgao/feedstream/internal/config"
	"github.com/rickgao/feedstream/internal/connection"
	"github.com/rickgao/feedstream/internal/model"
	"github.com/rickgao/feedstream/internal/subscription"
)

func main() {
	configPath := flag.String("config", "configs/streamer.example.yaml", "path to config file")
	keys := flag.String("keys", "", "comma-separated instrument keys (overrides config)")
	verbose := flag.Bool("verbose", false, "print full tick JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	instruments := cfg.Subscriptions.InstrumentKeys
	if *keys != "" {
		instruments = splitKeys(*keys)
	}
	if len(instruments) == 0 {
		logger.Error("no instruments to subscribe; set subscriptions.instrument_keys or --keys")
		os.Exit(1)
	}

	var tokens auth.TokenProvider
	switch {
	case cfg.Credentials.Token != "":
		tokens = auth.StaticToken(cfg.Credentials.Token)
	case cfg.Credentials.TokenFile != "":
		tokens = auth.FileToken{Path: cfg.Credentials.TokenFile}
	case cfg.Credentials.TokenServiceURL != "":
		tokens = auth.NewServiceToken(cfg.Credentials.TokenServiceURL, cfg.Credentials.AccountType, logger)
	default:
		logger.Error("credentials required", "hint", "set credentials.token to ${FEED_ACCESS_TOKEN}")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	negotiator := api.NewNegotiator(cfg.Feed.AuthorizeURL, tokens,
		api.WithMethod(cfg.Feed.Method),
		api.WithTimeout(cfg.Feed.Timeout),
		api.WithLogger(logger),
	)

	supCfg := connection.DefaultSupervisorConfig()
	supCfg.ReconnectBaseDelay = cfg.Connection.ReconnectBaseDelay
	supCfg.ReconnectMaxDelay = cfg.Connection.ReconnectMaxDelay
	supCfg.MaxAuthAttempts = max(cfg.Connection.MaxAuthAttempts, 0)

	printer := &consoleSink{out: os.Stdout, verbose: *verbose}
	sup := connection.NewSupervisor(supCfg, negotiator, subscription.NewManager(instruments...), printer, logger,
		connection.WithCodec(subscription.NewJSONCodec(cfg.Feed.Mode)),
	)

	logger.Info("starting supervisor", "instruments", len(instruments), "mode", cfg.Feed.Mode)
	if err := sup.Start(ctx); err != nil {
		logger.Error("failed to start supervisor", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				status := sup.Snapshot()
				logger.Info("stats",
					"state", status.State,
					"connected", status.Connected,
					"ticks_printed", printer.count.Load(),
					"session_messages", status.MessagesReceived,
					"reconnect_attempts", status.ReconnectAttempts,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	select {
	case <-ctx.Done():
	case <-sup.Done():
		logger.Error("supervisor terminated", "error", sup.Err())
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	sup.Stop(shutdownCtx)

	logger.Info("shutdown complete", "ticks_printed", printer.count.Load())
}

func splitKeys(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// consoleSink prints ticks instead of storing them.
type consoleSink struct {
	out     io.Writer
	verbose bool
	count   atomic.Int64
}

func (c *consoleSink) WriteTick(_ context.Context, t model.Tick) error {
	c.count.Add(1)

	if c.verbose {
		data, _ := json.MarshalIndent(t, "", "  ")
		fmt.Fprintf(c.out, "[TICK] %s\n", data)
		return nil
	}

	fmt.Fprintf(c.out, "[TICK] key=%s ltp=%s bid=%s ask=%s high=%s low=%s vol=%s oi=%s at=%s\n",
		t.InstrumentKey,
		price(t.LastTradedPrice.Valid, t.LastTradedPrice.Decimal.String()),
		price(t.BidPrice.Valid, t.BidPrice.Decimal.String()),
		price(t.AskPrice.Valid, t.AskPrice.Decimal.String()),
		price(t.DayHigh.Valid, t.DayHigh.Decimal.String()),
		price(t.DayLow.Valid, t.DayLow.Decimal.String()),
		count(t.Volume),
		count(t.OpenInterest),
		t.ReceivedAt.Format(time.RFC3339Nano),
	)
	return nil
}

func (c *consoleSink) WriteConnectionMetrics(_ context.Context, m model.ConnectionMetrics) error {
	reason := "-"
	if m.DisconnectReason != nil {
		reason = *m.DisconnectReason
	}
	fmt.Fprintf(c.out, "[SESSION] id=%s duration=%s messages=%d attempts=%d reason=%q\n",
		m.SessionID, m.Duration().Round(time.Millisecond), m.MessagesReceived, m.ReconnectAttempts, reason)
	return nil
}

func price(valid bool, s string) string {
	if !valid {
		return "-"
	}
	return s
}

func count(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}
