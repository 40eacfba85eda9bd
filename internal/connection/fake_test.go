package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/alphaorbit/livefeed/internal/dispatch"
)

var errRefused = errors.New("connection refused")

// fakeTransport is an in-memory Transport driven by the test.
type fakeTransport struct {
	id     uuid.UUID
	url    string
	dialer *fakeDialer

	connectErr error
	gate       chan struct{} // When set, Connect blocks until it is closed
	frames     chan dispatch.Frame
	errs       chan error

	mu        sync.Mutex
	connected bool
	closed    bool
}

func (f *fakeTransport) ID() uuid.UUID { return f.id }

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.gate != nil {
		<-f.gate
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrAlreadyClosed
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	wasClosed := f.closed
	f.closed = true
	f.connected = false
	f.mu.Unlock()

	if !wasClosed {
		f.dialer.released(f.url)
	}
	return nil
}

func (f *fakeTransport) Frames() <-chan dispatch.Frame { return f.frames }
func (f *fakeTransport) Errors() <-chan error          { return f.errs }

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// push delivers a text frame as if read from the socket.
func (f *fakeTransport) push(data string) {
	f.frames <- dispatch.Frame{Data: []byte(data), ReceivedAt: time.Now(), TransportID: f.id}
}

// drop simulates the server closing the connection.
func (f *fakeTransport) drop(err error) {
	select {
	case f.errs <- err:
	default:
	}
}

// fakeDialer counts transports and tracks how many are live per URL.
type fakeDialer struct {
	mu sync.Mutex

	// connectErrs[n] is the Connect result of the n-th transport (0-based)
	// for a URL; missing entries succeed.
	connectErrs map[string][]error
	gates       map[string]chan struct{}

	created    map[string][]*fakeTransport
	live       map[string]int
	violations int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		connectErrs: make(map[string][]error),
		gates:       make(map[string]chan struct{}),
		created:     make(map[string][]*fakeTransport),
		live:        make(map[string]int),
	}
}

func (d *fakeDialer) failNext(url string, errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectErrs[url] = append(d.connectErrs[url], errs...)
}

// holdNext makes the next transport for url block in Connect until the
// returned channel is closed, then succeed regardless of cancellation.
func (d *fakeDialer) holdNext(url string) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	gate := make(chan struct{})
	d.gates[url] = gate
	return gate
}

func (d *fakeDialer) NewTransport(url string, _ *slog.Logger) Transport {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.created[url])
	var connectErr error
	if n < len(d.connectErrs[url]) {
		connectErr = d.connectErrs[url][n]
	}

	t := &fakeTransport{
		id:         uuid.New(),
		url:        url,
		dialer:     d,
		connectErr: connectErr,
		gate:       d.gates[url],
		frames:     make(chan dispatch.Frame, 16),
		errs:       make(chan error, 1),
	}
	delete(d.gates, url)
	d.created[url] = append(d.created[url], t)
	d.live[url]++
	if d.live[url] > 1 {
		d.violations++
	}
	return t
}

func (d *fakeDialer) released(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live[url]--
}

func (d *fakeDialer) count(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.created[url])
}

func (d *fakeDialer) latest(url string) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	ts := d.created[url]
	if len(ts) == 0 {
		return nil
	}
	return ts[len(ts)-1]
}

func (d *fakeDialer) liveCount(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live[url]
}

func (d *fakeDialer) violationCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.violations
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitState(t *testing.T, r Registry, id string, want State) ChannelStatus {
	t.Helper()
	var st ChannelStatus
	waitFor(t, id+" to reach "+want.String(), func() bool {
		st, _ = r.Status(id)
		return st.State == want
	})
	return st
}
