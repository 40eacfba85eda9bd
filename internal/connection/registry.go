package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/alphaorbit/livefeed/internal/dispatch"
	"github.com/alphaorbit/livefeed/internal/model"
)

// Registry owns every channel of one consumer and all of their transports.
type Registry interface {
	// Open creates a channel and starts connecting it. It returns an
	// *AlreadyOpenError if the id is active in any non-terminal state.
	Open(spec ChannelSpec, h dispatch.Handler) error

	// Close moves the channel to Disconnected, cancelling any pending
	// retry and releasing its transport. Unknown ids are ignored.
	Close(id string)

	// CloseAll closes every channel and waits for their goroutines.
	CloseAll(ctx context.Context) error

	// Status returns one channel's status.
	Status(id string) (ChannelStatus, bool)

	// Statuses returns the status of every channel, sorted by id.
	Statuses() []ChannelStatus

	// Stats returns aggregate counts.
	Stats() RegistryStats
}

// Recorder receives lifecycle counters. *metrics.Metrics implements it.
type Recorder interface {
	StateChanged(kind model.Kind, from, to State)
	TransportCreated(kind model.Kind)
	RetryScheduled(kind model.Kind, delay time.Duration)
}

// RegistryOption configures optional registry behaviour.
type RegistryOption func(*registry)

// WithClock replaces the wall clock used for reconnect timers.
func WithClock(c clock.Clock) RegistryOption {
	return func(r *registry) { r.clock = c }
}

// WithObserver registers a callback for every state change. It runs with
// the registry lock held and must not call back into the registry.
func WithObserver(fn func(StateChange)) RegistryOption {
	return func(r *registry) { r.observer = fn }
}

// WithRecorder attaches lifecycle metrics.
func WithRecorder(rec Recorder) RegistryOption {
	return func(r *registry) { r.recorder = rec }
}

// WithDispatcher replaces the default frame dispatcher.
func WithDispatcher(d dispatch.Dispatcher) RegistryOption {
	return func(r *registry) { r.dispatcher = d }
}

// registry implements the Registry interface.
type registry struct {
	cfg        RegistryConfig
	policy     ReconnectPolicy
	dialer     Dialer
	logger     *slog.Logger
	clock      clock.Clock
	observer   func(StateChange)
	recorder   Recorder
	dispatcher dispatch.Dispatcher

	// mu serialises every state transition of every channel.
	mu       sync.Mutex
	channels map[string]*channel
	epoch    uint64

	wg sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig, dialer Dialer, logger *slog.Logger, opts ...RegistryOption) Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultRegistryConfig().InboxSize
	}

	r := &registry{
		cfg:      cfg,
		policy:   cfg.Policy,
		dialer:   dialer,
		logger:   logger,
		clock:    clock.New(),
		channels: make(map[string]*channel),
	}
	if r.policy == nil {
		r.policy = FixedDelay{Wait: DefaultReconnectDelay}
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.dispatcher == nil {
		r.dispatcher = dispatch.New(logger, nil)
	}

	return r
}

// Open creates and starts a channel.
func (r *registry) Open(spec ChannelSpec, h dispatch.Handler) error {
	if h == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrInvalidSpec, spec.ID)
	}
	url, err := spec.Endpoint(r.cfg.BaseURL)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.channels[spec.ID]; ok {
		if existing.state != StateFailed {
			return &AlreadyOpenError{ChannelID: spec.ID, State: existing.state}
		}
		r.shutdown(existing)
		delete(r.channels, spec.ID)
	}

	ch := r.newChannel(spec, url, h)
	r.bump(ch)
	r.channels[spec.ID] = ch

	r.wg.Add(1)
	go r.deliver(ch)

	ch.logger.Info("opening channel", "url", url)
	r.startConnecting(ch)

	return nil
}

// Close disconnects one channel. Safe to call repeatedly.
func (r *registry) Close(id string) {
	r.mu.Lock()
	ch, ok := r.channels[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.shutdown(ch)
	delete(r.channels, id)
	r.mu.Unlock()

	ch.logger.Info("channel closed")
}

// CloseAll disconnects every channel and waits until no channel
// goroutine remains or ctx is done.
func (r *registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	n := len(r.channels)
	for id, ch := range r.channels {
		r.shutdown(ch)
		delete(r.channels, id)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("wait for channel goroutines: %w", ctx.Err())
	}

	r.logger.Info("all channels closed", "channels", n)
	return nil
}

// Status returns the status of one channel.
func (r *registry) Status(id string) (ChannelStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[id]
	if !ok {
		return ChannelStatus{ID: id, State: StateDisconnected}, false
	}
	return ch.status(), true
}

// Statuses returns every channel's status sorted by id.
func (r *registry) Statuses() []ChannelStatus {
	r.mu.Lock()
	out := make([]ChannelStatus, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch.status())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats returns aggregate counts.
func (r *registry) Stats() RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := RegistryStats{Channels: len(r.channels)}
	for _, ch := range r.channels {
		switch ch.state {
		case StateOpen:
			stats.Open++
		case StateConnecting, StateReconnectScheduled, StateClosed:
			stats.Reconnecting++
		case StateFailed:
			stats.Failed++
		}
	}
	return stats
}
