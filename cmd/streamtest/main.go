// streamtest opens one live feed and prints decoded messages to the console.
// Usage: go run ./cmd/streamtest --config configs/livefeed.example.yaml --feed prices --token 42
//
// Optional environment variables (see config):
//
//	LIVEFEED_ACCESS_TOKEN - Bearer token sent on the handshake
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alphaorbit/livefeed/internal/api"
	"github.com/alphaorbit/livefeed/internal/auth"
	"github.com/alphaorbit/livefeed/internal/config"
	"github.com/alphaorbit/livefeed/internal/connection"
	"github.com/alphaorbit/livefeed/internal/dispatch"
	"github.com/alphaorbit/livefeed/internal/model"
	"github.com/alphaorbit/livefeed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/livefeed.example.yaml", "path to config file")
	feed := flag.String("feed", "tokens", "feed to open: tokens, logs or prices")
	tokenID := flag.String("token", "", "token id for the logs and prices feeds")
	history := flag.Bool("history", false, "print the REST bot log history before streaming (logs feed only)")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	logger.Info("starting streamtest", version.Attr(), "feed", *feed, "token", *tokenID)

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	spec, err := feedSpec(*feed, *tokenID)
	if err != nil {
		logger.Error("invalid feed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokens := auth.NewSource(cfg.API.AccessToken, cfg.API.AccessTokenFile)

	if *history && spec.Kind == model.KindBotLog {
		client := api.NewClient(cfg.API.RestURL, tokens, api.WithLogger(logger))
		logs, err := client.BotLogHistory(ctx, spec.ResourceID)
		if err != nil {
			logger.Warn("failed to load bot log history", "error", err)
		}
		for _, l := range logs {
			printBotLog("[HISTORY]", l)
		}
	}

	dispatcher := dispatch.New(logger, nil)
	registry := connection.NewRegistry(
		connection.RegistryConfig{
			BaseURL:        cfg.API.WSURL,
			Policy:         connection.FixedDelay{Wait: cfg.Channels.ReconnectDelay},
			ConnectTimeout: cfg.Channels.ConnectTimeout,
			InboxSize:      cfg.Channels.InboxSize,
		},
		connection.WebSocketDialer(connection.TransportConfig{
			ConnectTimeout: cfg.Channels.ConnectTimeout,
			PingInterval:   cfg.Channels.PingInterval,
			PingTimeout:    cfg.Channels.PingTimeout,
			WriteTimeout:   cfg.Channels.WriteTimeout,
			ReadLimit:      cfg.Channels.ReadLimit,
			BufferSize:     cfg.Channels.BufferSize,
		}, tokens),
		logger,
		connection.WithDispatcher(dispatcher),
		connection.WithObserver(func(c connection.StateChange) {
			fmt.Printf("[STATE] %s %s -> %s\n", c.ChannelID, c.From, c.To)
		}),
	)

	if err := registry.Open(spec, dispatch.HandlerFunc(func(msg model.InboundMessage) {
		printMessage(msg, *verbose)
	})); err != nil {
		logger.Error("failed to open feed", "error", err)
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
				status, _ := registry.Status(spec.ID)
				dispatchStats := dispatcher.Stats()
				logger.Info("stats",
					"channel", spec.ID,
					"state", status.State,
					"attempt", status.Attempt,
					"frames", dispatchStats.FramesReceived,
					"dispatched", dispatchStats.Dispatched,
					"decode_errors", dispatchStats.DecodeErrors,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop", "channel", spec.ID)

	// Wait for shutdown
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	registry.CloseAll(shutdownCtx)

	logger.Info("shutdown complete")
}

func feedSpec(feed, tokenID string) (connection.ChannelSpec, error) {
	var spec connection.ChannelSpec
	switch feed {
	case "tokens":
		return connection.TokenFeed(), nil
	case "logs":
		spec = connection.BotLogFeed(tokenID)
	case "prices":
		spec = connection.PriceFeed(tokenID)
	default:
		return spec, fmt.Errorf("unknown feed %q", feed)
	}
	if tokenID == "" {
		return spec, fmt.Errorf("feed %q requires --token", feed)
	}
	return spec, nil
}

func printMessage(msg model.InboundMessage, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(msg, "", "  ")
		fmt.Printf("[%s] %s\n", msg.Kind, data)
		return
	}

	switch p := msg.Payload.(type) {
	case model.TokenCreated:
		fmt.Printf("[TOKEN] id=%s name=%q symbol=%s tweet=%s\n",
			p.ID, p.Name, p.Symbol, p.TweetSource)
	case model.BotLog:
		printBotLog("[LOG]", p)
	case model.PriceUpdate:
		fmt.Printf("[PRICE] token=%s price=%s mcap=%s vol_sol=%s holders=%s\n",
			msg.ResourceID, p.Price, p.MarketCap, p.VolumeSOL, p.HolderCount)
	}
}

func printBotLog(prefix string, l model.BotLog) {
	if l.IsError() {
		prefix += "[ERROR]"
	}
	fmt.Printf("%s tag=%s stage=%s wallet=%s msg=%q\n",
		prefix, l.InfoTag, l.Stage, l.ShortWallet(), l.Message)
}
