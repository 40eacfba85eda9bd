package connection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/alphaorbit/livefeed/internal/dispatch"
)

// channel is one logical stream and its connection state machine.
// Every field below inbox is guarded by the registry mutex.
type channel struct {
	spec    ChannelSpec
	url     string
	route   dispatch.Route
	handler dispatch.Handler
	logger  *slog.Logger

	// inbox orders frames for the delivery goroutine.
	inbox  *dispatch.GrowableBuffer[dispatch.Frame]
	ctx    context.Context
	cancel context.CancelFunc

	state   State
	attempt int
	epoch   uint64
	lastErr error
	since   time.Time

	transport Transport
	stop      chan struct{} // Closed to stop the current transport's pump
	retry     *clock.Timer

	framesIn   int64
	transports int64
}

func (r *registry) newChannel(spec ChannelSpec, url string, h dispatch.Handler) *channel {
	ctx, cancel := context.WithCancel(context.Background())
	return &channel{
		spec: spec,
		url:  url,
		route: dispatch.Route{
			ChannelID:  spec.ID,
			ResourceID: spec.ResourceID,
			Kind:       spec.Kind,
		},
		handler: h,
		logger:  r.logger.With("channel", spec.ID, "kind", spec.Kind),
		inbox:   dispatch.NewGrowableBuffer[dispatch.Frame](r.cfg.InboxSize),
		ctx:     ctx,
		cancel:  cancel,
		state:   StateDisconnected,
		since:   r.clock.Now(),
	}
}

// current reports whether a callback captured at epoch still belongs to
// the live channel. Must be called with r.mu held.
func (r *registry) current(ch *channel, epoch uint64) bool {
	return r.channels[ch.spec.ID] == ch && ch.epoch == epoch
}

// bump invalidates every outstanding callback of ch. Must be called with r.mu held.
func (r *registry) bump(ch *channel) uint64 {
	r.epoch++
	ch.epoch = r.epoch
	return ch.epoch
}

// transition moves ch to a new state. Must be called with r.mu held.
func (r *registry) transition(ch *channel, to State) {
	from := ch.state
	if from == to {
		return
	}
	ch.state = to
	ch.since = r.clock.Now()

	ch.logger.Debug("state change", "from", from, "to", to, "attempt", ch.attempt, "epoch", ch.epoch)

	if r.recorder != nil {
		r.recorder.StateChanged(ch.spec.Kind, from, to)
	}
	if r.observer != nil {
		r.observer(StateChange{
			ChannelID: ch.spec.ID,
			Kind:      ch.spec.Kind,
			From:      from,
			To:        to,
			Attempt:   ch.attempt,
			Epoch:     ch.epoch,
			Err:       ch.lastErr,
			At:        ch.since,
		})
	}
}

// teardown stops the pump, cancels a pending retry and closes the
// transport. Must be called with r.mu held.
func (r *registry) teardown(ch *channel) {
	if ch.retry != nil {
		ch.retry.Stop()
		ch.retry = nil
	}
	if ch.stop != nil {
		close(ch.stop)
		ch.stop = nil
	}
	if ch.transport != nil {
		ch.transport.Close()
		ch.transport = nil
	}
	r.bump(ch)
}

// startConnecting creates a fresh transport and launches its connect
// attempt. Must be called with r.mu held.
func (r *registry) startConnecting(ch *channel) {
	r.teardown(ch)
	epoch := ch.epoch

	t := r.dialer.NewTransport(ch.url, ch.logger)
	ch.transport = t
	ch.transports++
	if r.recorder != nil {
		r.recorder.TransportCreated(ch.spec.Kind)
	}
	r.transition(ch, StateConnecting)

	r.wg.Add(1)
	go r.connect(ch, t, epoch)
}

// connect runs one connect attempt outside the lock and applies its
// result only if the attempt is still current.
func (r *registry) connect(ch *channel, t Transport, epoch uint64) {
	defer r.wg.Done()

	ctx := ch.ctx
	if r.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ConnectTimeout)
		defer cancel()
	}

	err := t.Connect(ctx)

	r.mu.Lock()
	if !r.current(ch, epoch) || ch.state != StateConnecting {
		r.mu.Unlock()
		ch.logger.Debug("discarding stale connect result", "transport", t.ID(), "error", err)
		t.Close()
		return
	}

	if err != nil {
		r.transportDown(ch, &TransportError{ChannelID: ch.spec.ID, Op: "connect", Err: err})
		r.mu.Unlock()
		return
	}

	ch.attempt = 0
	ch.stop = make(chan struct{})
	r.transition(ch, StateOpen)
	ch.logger.Info("channel open", "url", ch.url, "transport", t.ID())

	r.wg.Add(1)
	go r.pump(ch, t, epoch, ch.stop)
	r.mu.Unlock()
}

// pump moves frames from one transport into the channel inbox until the
// transport fails or is superseded.
func (r *registry) pump(ch *channel, t Transport, epoch uint64, stop <-chan struct{}) {
	defer r.wg.Done()

	frames := t.Frames()
	errs := t.Errors()

	for {
		select {
		case <-stop:
			return

		case f := <-frames:
			r.onFrame(ch, epoch, f)

		case err := <-errs:
			// Frames read before the failure still belong to this epoch.
		drain:
			for {
				select {
				case f := <-frames:
					r.onFrame(ch, epoch, f)
				default:
					break drain
				}
			}

			r.mu.Lock()
			if !r.current(ch, epoch) {
				r.mu.Unlock()
				return
			}
			r.transportDown(ch, &TransportError{ChannelID: ch.spec.ID, Op: "read", Err: err})
			r.mu.Unlock()
			return
		}
	}
}

func (r *registry) onFrame(ch *channel, epoch uint64, f dispatch.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.current(ch, epoch) || ch.state != StateOpen {
		return
	}
	ch.framesIn++
	ch.inbox.Send(f)
}

// transportDown records a transport failure and either schedules a retry
// or, when the policy is exhausted, parks the channel in Failed.
// Must be called with r.mu held.
func (r *registry) transportDown(ch *channel, err error) {
	ch.lastErr = err
	r.teardown(ch)

	if ch.state == StateOpen {
		r.transition(ch, StateClosed)
	}

	if r.policy.Exhausted(ch.attempt) {
		ch.logger.Error("reconnect attempts exhausted", "attempt", ch.attempt, "error", err)
		r.transition(ch, StateFailed)
		return
	}

	delay := r.policy.Delay(ch.attempt)
	epoch := ch.epoch
	ch.retry = r.clock.AfterFunc(delay, func() {
		r.retryFired(ch, epoch)
	})
	r.transition(ch, StateReconnectScheduled)
	if r.recorder != nil {
		r.recorder.RetryScheduled(ch.spec.Kind, delay)
	}

	ch.logger.Warn("transport down, reconnect scheduled",
		"error", err,
		"attempt", ch.attempt,
		"delay", delay,
	)
}

func (r *registry) retryFired(ch *channel, epoch uint64) {
	r.mu.Lock()
	if !r.current(ch, epoch) || ch.state != StateReconnectScheduled {
		r.mu.Unlock()
		return
	}
	ch.retry = nil
	ch.attempt++
	r.startConnecting(ch)
	r.mu.Unlock()
}

// shutdown moves ch to Disconnected and releases everything it owns.
// Must be called with r.mu held.
func (r *registry) shutdown(ch *channel) {
	r.teardown(ch)
	ch.cancel()
	r.transition(ch, StateDisconnected)

	ch.inbox.Close()
	if n := ch.inbox.Discard(); n > 0 {
		ch.logger.Debug("discarded undelivered frames", "count", n)
	}
}

// deliver invokes the channel handler for each queued frame, one at a time.
func (r *registry) deliver(ch *channel) {
	defer r.wg.Done()

	for {
		f, ok := ch.inbox.Receive()
		if !ok {
			return
		}
		if ch.ctx.Err() != nil {
			continue
		}
		r.handle(ch, f)
	}
}

func (r *registry) handle(ch *channel, f dispatch.Frame) {
	defer func() {
		if p := recover(); p != nil {
			ch.logger.Error("handler panic", "panic", fmt.Sprint(p))
		}
	}()

	// Decode failures are logged and counted by the dispatcher.
	_ = r.dispatcher.Dispatch(ch.route, f, ch.handler)
}

func (ch *channel) status() ChannelStatus {
	return ChannelStatus{
		ID:             ch.spec.ID,
		Kind:           ch.spec.Kind,
		ResourceID:     ch.spec.ResourceID,
		URL:            ch.url,
		State:          ch.state,
		Attempt:        ch.attempt,
		Epoch:          ch.epoch,
		LastError:      ch.lastErr,
		Since:          ch.since,
		FramesReceived: ch.framesIn,
		Transports:     ch.transports,
		Queued:         ch.inbox.Len(),
	}
}
