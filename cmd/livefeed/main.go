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

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/alphaorbit/livefeed/internal/api"
	"github.com/alphaorbit/livefeed/internal/auth"
	"github.com/alphaorbit/livefeed/internal/config"
	"github.com/alphaorbit/livefeed/internal/connection"
	"github.com/alphaorbit/livefeed/internal/database"
	"github.com/alphaorbit/livefeed/internal/dispatch"
	"github.com/alphaorbit/livefeed/internal/metrics"
	"github.com/alphaorbit/livefeed/internal/poller"
	"github.com/alphaorbit/livefeed/internal/version"
	"github.com/alphaorbit/livefeed/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/livefeed.local.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting livefeed",
		version.Attr(),
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
		"ws_url", cfg.API.WSURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("livefeed failed", "error", err)
		os.Exit(1)
	}
	logger.Info("livefeed stopped")
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	m := metrics.New()
	tokens := auth.NewSource(cfg.API.AccessToken, cfg.API.AccessTokenFile)

	// Optional archive
	var (
		pool *pgxpool.Pool
		wr   *writer.Writer
	)
	if cfg.Writers.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		var err error
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}

		wr = writer.New(writer.WriterConfig{
			BatchSize:     cfg.Writers.BatchSize,
			FlushInterval: cfg.Writers.FlushInterval,
			BufferSize:    cfg.Writers.BufferSize,
		}, pool, logger.With("component", "writer"))
		m.WatchWriter(wr.Stats)
		if err := wr.Start(ctx); err != nil {
			return fmt.Errorf("start writer: %w", err)
		}
		logger.Info("database connected")
	}

	// Channels
	dialer := connection.WebSocketDialer(transportConfig(cfg.Channels), tokens)
	registry := connection.NewRegistry(
		registryConfig(cfg),
		dialer,
		logger.With("component", "registry"),
		connection.WithRecorder(m),
		connection.WithDispatcher(dispatch.New(logger.With("component", "dispatch"), m)),
	)

	handler := newFeedHandler(wr, logger)

	if cfg.Feeds.Tokens {
		if err := registry.Open(connection.TokenFeed(), handler); err != nil {
			return fmt.Errorf("open token feed: %w", err)
		}
	}

	// Per-token feeds
	var lister poller.TokenLister
	if cfg.Feeds.Discover {
		lister = api.NewClient(
			cfg.API.RestURL,
			tokens,
			api.WithLogger(logger.With("component", "api")),
			api.WithTimeout(cfg.API.Timeout),
			api.WithRetries(cfg.API.MaxRetries, time.Second),
		)
	}
	pollCfg := poller.DefaultConfig()
	pollCfg.StaticIDs = cfg.Feeds.TokenIDs
	pollCfg.PageSize = cfg.Feeds.DiscoverPageSize
	pollCfg.Interval = 0
	if cfg.Feeds.Discover {
		pollCfg.Interval = cfg.Feeds.DiscoverInterval
	}
	watcher := &poller.FeedWatcher{
		Registry: registry,
		Handler:  handler,
		BotLogs:  cfg.Feeds.BotLogs,
		Prices:   cfg.Feeds.Prices,
	}
	discovery := poller.New(pollCfg, lister, watcher, logger.With("component", "poller"))
	if err := discovery.Start(ctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	// Health and metrics
	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           newHTTPHandler(cfg.Metrics.Path, registry, discovery, pool, m),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Stop producers before consumers
		discovery.Stop(shutdownCtx)
		if err := registry.CloseAll(shutdownCtx); err != nil {
			logger.Warn("registry close incomplete", "error", err)
		}
		if wr != nil {
			wr.Stop(shutdownCtx)
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	logger.Info("livefeed running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	return g.Wait()
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func transportConfig(c config.ChannelsConfig) connection.TransportConfig {
	return connection.TransportConfig{
		ConnectTimeout: c.ConnectTimeout,
		PingInterval:   c.PingInterval,
		PingTimeout:    c.PingTimeout,
		WriteTimeout:   c.WriteTimeout,
		ReadLimit:      c.ReadLimit,
		BufferSize:     c.BufferSize,
	}
}

func registryConfig(cfg *config.Config) connection.RegistryConfig {
	return connection.RegistryConfig{
		BaseURL:        cfg.API.WSURL,
		Policy:         reconnectPolicy(cfg.Channels),
		ConnectTimeout: cfg.Channels.ConnectTimeout,
		InboxSize:      cfg.Channels.InboxSize,
	}
}

// reconnectPolicy maps channels.reconnect_mode to a policy. Fixed delay
// with unbounded retries is the default.
func reconnectPolicy(c config.ChannelsConfig) connection.ReconnectPolicy {
	if c.ReconnectMode == config.ReconnectBackoff {
		return connection.ExponentialBackoff{
			Base:        c.ReconnectBaseDelay,
			Max:         c.ReconnectMaxDelay,
			MaxAttempts: c.MaxAttempts,
			Jitter:      c.ReconnectJitter,
		}
	}
	return connection.FixedDelay{Wait: c.ReconnectDelay}
}
