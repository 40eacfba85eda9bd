package poller

import (
	"errors"
	"fmt"

	"github.com/alphaorbit/livefeed/internal/connection"
	"github.com/alphaorbit/livefeed/internal/dispatch"
)

// FeedWatcher opens the per-token channels on a registry.
type FeedWatcher struct {
	Registry connection.Registry
	Handler  dispatch.Handler
	BotLogs  bool
	Prices   bool
}

func (w *FeedWatcher) specs(tokenID string) []connection.ChannelSpec {
	var specs []connection.ChannelSpec
	if w.BotLogs {
		specs = append(specs, connection.BotLogFeed(tokenID))
	}
	if w.Prices {
		specs = append(specs, connection.PriceFeed(tokenID))
	}
	return specs
}

// Watch opens every enabled feed for tokenID. A channel that is already
// open counts as watched.
func (w *FeedWatcher) Watch(tokenID string) error {
	for _, spec := range w.specs(tokenID) {
		err := w.Registry.Open(spec, w.Handler)
		var already *connection.AlreadyOpenError
		if err != nil && !errors.As(err, &already) {
			return fmt.Errorf("open %s: %w", spec.ID, err)
		}
	}
	return nil
}

// Failed reports whether any feed of tokenID exhausted its reconnect
// policy. Watch reopens such feeds.
func (w *FeedWatcher) Failed(tokenID string) bool {
	for _, spec := range w.specs(tokenID) {
		if st, ok := w.Registry.Status(spec.ID); ok && st.State == connection.StateFailed {
			return true
		}
	}
	return false
}

// Unwatch closes every feed of tokenID.
func (w *FeedWatcher) Unwatch(tokenID string) {
	for _, spec := range w.specs(tokenID) {
		w.Registry.Close(spec.ID)
	}
}
