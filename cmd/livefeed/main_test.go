package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alphaorbit/livefeed/internal/config"
	"github.com/alphaorbit/livefeed/internal/connection"
	"github.com/alphaorbit/livefeed/internal/dispatch"
	"github.com/alphaorbit/livefeed/internal/metrics"
	"github.com/alphaorbit/livefeed/internal/model"
	"github.com/alphaorbit/livefeed/internal/poller"
)

type staticRegistry struct {
	statuses []connection.ChannelStatus
}

func (r *staticRegistry) Open(connection.ChannelSpec, dispatch.Handler) error { return nil }
func (r *staticRegistry) Close(string)                                        {}
func (r *staticRegistry) CloseAll(context.Context) error                      { return nil }
func (r *staticRegistry) Status(id string) (connection.ChannelStatus, bool) {
	for _, s := range r.statuses {
		if s.ID == id {
			return s, true
		}
	}
	return connection.ChannelStatus{}, false
}
func (r *staticRegistry) Statuses() []connection.ChannelStatus { return r.statuses }
func (r *staticRegistry) Stats() connection.RegistryStats {
	stats := connection.RegistryStats{Channels: len(r.statuses)}
	for _, s := range r.statuses {
		if s.State == connection.StateOpen {
			stats.Open++
		}
	}
	return stats
}

func TestReconnectPolicy(t *testing.T) {
	fixed := reconnectPolicy(config.ChannelsConfig{
		ReconnectMode:  config.ReconnectFixed,
		ReconnectDelay: 5 * time.Second,
	})
	if got := fixed.Delay(3); got != 5*time.Second {
		t.Errorf("fixed Delay(3) = %v, want 5s", got)
	}
	if fixed.Exhausted(1000) {
		t.Error("fixed policy should never be exhausted")
	}

	backoff := reconnectPolicy(config.ChannelsConfig{
		ReconnectMode:      config.ReconnectBackoff,
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  10 * time.Second,
		MaxAttempts:        3,
	})
	if got := backoff.Delay(2); got != 4*time.Second {
		t.Errorf("backoff Delay(2) = %v, want 4s", got)
	}
	if !backoff.Exhausted(3) {
		t.Error("backoff policy should be exhausted after 3 attempts")
	}
}

func TestHTTPHandler(t *testing.T) {
	reg := &staticRegistry{statuses: []connection.ChannelStatus{
		{ID: "price:1", Kind: model.KindPriceUpdate, State: connection.StateOpen},
		{ID: "tokens", Kind: model.KindTokenCreated, State: connection.StateReconnectScheduled,
			Attempt: 2, LastError: errors.New("dial: connection refused")},
	}}
	discovery := poller.New(poller.DefaultConfig(), nil, nil, nil)
	h := newHTTPHandler("/metrics", reg, discovery, nil, metrics.New())

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
		if rec.Code != 200 {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Status != "healthy" {
			t.Errorf("status = %q, want healthy", body.Status)
		}
	})

	t.Run("channels", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/debug/channels", nil))
		var body struct {
			Count    int           `json:"count"`
			Channels []channelView `json:"channels"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Count != 2 {
			t.Fatalf("count = %d, want 2", body.Count)
		}
		if body.Channels[1].State != "reconnect_scheduled" {
			t.Errorf("state = %q, want reconnect_scheduled", body.Channels[1].State)
		}
		if body.Channels[1].LastError != "dial: connection refused" {
			t.Errorf("last_error = %q", body.Channels[1].LastError)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
		if !strings.Contains(rec.Body.String(), "go_goroutines") {
			t.Error("metrics endpoint did not serve the registry")
		}
	})
}

func TestHealthDegradedWhenNothingOpen(t *testing.T) {
	reg := &staticRegistry{statuses: []connection.ChannelStatus{
		{ID: "tokens", Kind: model.KindTokenCreated, State: connection.StateConnecting},
	}}
	h := newHTTPHandler("/metrics", reg, poller.New(poller.DefaultConfig(), nil, nil, nil), nil, metrics.New())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if !strings.Contains(rec.Body.String(), `"status":"degraded"`) {
		t.Errorf("body = %s, want degraded", rec.Body.String())
	}
}

func TestFeedHandlerWithoutWriter(t *testing.T) {
	h := newFeedHandler(nil, slog.New(slog.NewTextHandler(&strings.Builder{}, nil)))
	// Must not panic without a sink
	h.HandleMessage(model.InboundMessage{
		Kind:    model.KindBotLog,
		Payload: model.BotLog{InfoTag: model.InfoTagError, Message: "sell failed"},
	})
}

func TestNewLogger(t *testing.T) {
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"})
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !logger.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn should be enabled at warn level")
	}
}
