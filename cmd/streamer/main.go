// streamer connects to the market-data feed, keeps the configured
// instruments subscribed across reconnects, and persists normalized ticks.
// Usage: go run ./cmd/streamer --config configs/streamer.example.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/feedstream/internal/api"
	"github.com/rickgao/feedstream/internal/config"
	"github.com/rickgao/feedstream/internal/connection"
	"github.com/rickgao/feedstream/internal/metrics"
	"github.com/rickgao/feedstream/internal/normalizer"
	"github.com/rickgao/feedstream/internal/subscription"
	"github.com/rickgao/feedstream/internal/version"
	"github.com/rickgao/feedstream/internal/writer"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "configs/streamer.example.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "config", *configPath)
		os.Exit(1)
	}

	// Set up structured logging
	logger := newLogger(cfg.Logging, os.Stdout).With("instance_id", cfg.Instance.ID)
	slog.SetDefault(logger)

	logger.Info("starting streamer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("streamer exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("streamer stopped")
}

func run(ctx context.Context, cfg *config.StreamerConfig, logger *slog.Logger) error {
	logger.Info("configuration loaded",
		"authorize_url", cfg.Feed.AuthorizeURL,
		"mode", cfg.Feed.Mode,
		"storage", cfg.Storage.Driver,
		"instruments", len(cfg.Subscriptions.InstrumentKeys),
	)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	feedMetrics := metrics.New(reg)

	// Writer outlives the signal context so Stop can drain it.
	w := writer.NewWriter(writer.WriterConfig{
		BatchSize:     cfg.Writers.BatchSize,
		FlushInterval: cfg.Writers.FlushInterval,
		QueueSize:     cfg.Writers.QueueSize,
	}, store, logger)
	metrics.RegisterWriter(reg, w.Stats)
	if err := w.Start(context.WithoutCancel(ctx)); err != nil {
		store.Close()
		return fmt.Errorf("start writer: %w", err)
	}

	negotiator := api.NewNegotiator(
		cfg.Feed.AuthorizeURL,
		tokenProvider(cfg.Credentials, logger),
		api.WithMethod(cfg.Feed.Method),
		api.WithTimeout(cfg.Feed.Timeout),
		api.WithLogger(logger),
	)

	obs := newOpsObserver(feedMetrics, time.Now)
	sup := connection.NewSupervisor(
		supervisorConfig(cfg.Connection),
		negotiator,
		subscription.NewManager(cfg.Subscriptions.InstrumentKeys...),
		w,
		logger,
		connection.WithObserver(obs),
		connection.WithCodec(subscription.NewJSONCodec(cfg.Feed.Mode)),
		connection.WithNormalizer(normalizer.New(logger)),
	)

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: newOpsHandler(opsServerConfig{
			InstanceID:     cfg.Instance.ID,
			MetricsPath:    cfg.Metrics.Path,
			UnhealthyAfter: cfg.Health.UnhealthyAfter,
		}, sup, obs, reg, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := sup.Start(ctx); err != nil {
		w.Stop(ctx)
		store.Close()
		return fmt.Errorf("start supervisor: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting ops server", "port", cfg.Metrics.Port)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		sup.Monitor().LogLoop(gctx, cfg.Health.LogInterval)
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-sup.Done():
			if err := sup.Err(); err != nil {
				return fmt.Errorf("supervisor terminated: %w", err)
			}
			return errors.New("supervisor terminated")
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer shutdownCancel()

		// Supervisor first so its final session record reaches the writer,
		// then the writer so queued ticks reach the store.
		if err := sup.Stop(shutdownCtx); err != nil {
			logger.Warn("supervisor stop", "error", err)
		}
		if err := w.Stop(shutdownCtx); err != nil {
			logger.Warn("writer stop", "error", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ops server shutdown", "error", err)
		}
		if err := store.Close(); err != nil {
			logger.Warn("store close", "error", err)
		}
		return nil
	})

	logger.Info("streamer running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	return g.Wait()
}
