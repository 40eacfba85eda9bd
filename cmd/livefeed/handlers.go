package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alphaorbit/livefeed/internal/connection"
	"github.com/alphaorbit/livefeed/internal/dispatch"
	"github.com/alphaorbit/livefeed/internal/metrics"
	"github.com/alphaorbit/livefeed/internal/model"
	"github.com/alphaorbit/livefeed/internal/poller"
	"github.com/alphaorbit/livefeed/internal/writer"
)

// feedHandler logs notable messages and forwards everything to the archive.
type feedHandler struct {
	sink   dispatch.Handler // nil when the writer is disabled
	logger *slog.Logger
}

func newFeedHandler(wr *writer.Writer, logger *slog.Logger) *feedHandler {
	h := &feedHandler{logger: logger}
	if wr != nil {
		h.sink = wr.Sink()
	}
	return h
}

func (h *feedHandler) HandleMessage(msg model.InboundMessage) {
	switch p := msg.Payload.(type) {
	case model.TokenCreated:
		h.logger.Info("token created",
			"token_id", p.ID,
			"name", p.Name,
			"symbol", p.Symbol,
		)
	case model.BotLog:
		if p.IsError() {
			h.logger.Error("bot error",
				"token_id", msg.ResourceID,
				"symbol", p.Symbol,
				"stage", p.Stage,
				"wallet", p.ShortWallet(),
				"message", p.Message,
			)
		} else {
			h.logger.Debug("bot log",
				"token_id", msg.ResourceID,
				"tag", p.InfoTag,
				"message", p.Message,
			)
		}
	case model.PriceUpdate:
		h.logger.Debug("price update",
			"token_id", msg.ResourceID,
			"price", p.Price,
			"market_cap", p.MarketCap,
		)
	}

	if h.sink != nil {
		h.sink.HandleMessage(msg)
	}
}

// channelView is the JSON form of connection.ChannelStatus.
type channelView struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	URL            string    `json:"url"`
	State          string    `json:"state"`
	Attempt        int       `json:"attempt"`
	LastError      string    `json:"last_error,omitempty"`
	Since          time.Time `json:"since"`
	FramesReceived int64     `json:"frames_received"`
	Queued         int       `json:"queued"`
}

// newHTTPHandler serves /health, /debug/channels and the metrics path.
func newHTTPHandler(metricsPath string, registry connection.Registry, discovery *poller.Poller, pool *pgxpool.Pool, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// Check database
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["postgres"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["postgres"] = "connected"
			}
		}

		// Check channels
		stats := registry.Stats()
		health.Components["channels"] = map[string]int{
			"total":        stats.Channels,
			"open":         stats.Open,
			"reconnecting": stats.Reconnecting,
			"failed":       stats.Failed,
		}
		if stats.Channels > 0 && stats.Open == 0 && health.Status == "healthy" {
			health.Status = "degraded"
		}

		health.Components["discovery"] = discovery.Stats()

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/channels", func(w http.ResponseWriter, r *http.Request) {
		statuses := registry.Statuses()
		views := make([]channelView, 0, len(statuses))
		for _, s := range statuses {
			v := channelView{
				ID:             s.ID,
				Kind:           string(s.Kind),
				URL:            s.URL,
				State:          s.State.String(),
				Attempt:        s.Attempt,
				Since:          s.Since,
				FramesReceived: s.FramesReceived,
				Queued:         s.Queued,
			}
			if s.LastError != nil {
				v.LastError = s.LastError.Error()
			}
			views = append(views, v)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":    len(views),
			"channels": views,
		})
	})

	mux.Handle(metricsPath, m.Handler())

	return mux
}
