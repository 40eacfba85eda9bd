package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alphaorbit/livefeed/internal/auth"
	"github.com/alphaorbit/livefeed/internal/dispatch"
)

// Transport is a single streaming connection. A channel creates a new
// Transport for every connect attempt and never reuses one.
type Transport interface {
	// ID identifies this transport in logs and inbound messages.
	ID() uuid.UUID

	// Connect establishes the connection.
	Connect(ctx context.Context) error

	// Close releases the connection. Safe to call more than once.
	Close() error

	// Frames returns inbound frames in arrival order.
	Frames() <-chan dispatch.Frame

	// Errors delivers at most one terminal error per transport.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// Dialer creates transports. It is the only way the registry obtains one,
// which lets tests count connect attempts.
type Dialer interface {
	NewTransport(url string, logger *slog.Logger) Transport
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(url string, logger *slog.Logger) Transport

// NewTransport calls f.
func (f DialerFunc) NewTransport(url string, logger *slog.Logger) Transport {
	return f(url, logger)
}

// WebSocketDialer returns a Dialer producing gorilla/websocket transports.
// tokens may be nil for unauthenticated feeds.
func WebSocketDialer(cfg TransportConfig, tokens auth.TokenSource) Dialer {
	return DialerFunc(func(url string, logger *slog.Logger) Transport {
		return NewWebSocketTransport(url, cfg, tokens, logger)
	})
}

// wsTransport implements Transport over a WebSocket.
type wsTransport struct {
	id     uuid.UUID
	url    string
	cfg    TransportConfig
	tokens auth.TokenSource
	logger *slog.Logger

	conn *websocket.Conn

	frames chan dispatch.Frame
	errors chan error
	done   chan struct{}

	writeMu sync.Mutex

	mu         sync.RWMutex
	connected  bool
	lastPingAt time.Time
	closed     bool
}

// NewWebSocketTransport creates an unconnected WebSocket transport.
func NewWebSocketTransport(url string, cfg TransportConfig, tokens auth.TokenSource, logger *slog.Logger) Transport {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()

	return &wsTransport{
		id:     id,
		url:    url,
		cfg:    cfg,
		tokens: tokens,
		logger: logger.With("transport", id),
		frames: make(chan dispatch.Frame, cfg.BufferSize),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}
}

func (t *wsTransport) ID() uuid.UUID {
	return t.id
}

// Connect dials the endpoint and starts the read and heartbeat loops.
func (t *wsTransport) Connect(ctx context.Context) error {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return ErrAlreadyClosed
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	if err := auth.SetBearer(ctx, header, t.tokens); err != nil {
		return fmt.Errorf("access token: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.ConnectTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, t.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", t.url, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", t.url, err)
	}
	if t.cfg.ReadLimit > 0 {
		conn.SetReadLimit(t.cfg.ReadLimit)
	}

	t.mu.Lock()
	if t.closed {
		// Close raced with the handshake.
		t.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	t.conn = conn
	t.connected = true
	t.lastPingAt = time.Now()
	t.mu.Unlock()

	conn.SetPingHandler(func(data string) error {
		t.touch()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	conn.SetPongHandler(func(string) error {
		t.touch()
		return nil
	})

	go t.readLoop(conn)
	if t.cfg.PingInterval > 0 {
		go t.heartbeatLoop(conn)
	}

	t.logger.Debug("websocket connected", "url", t.url)

	return nil
}

func (t *wsTransport) touch() {
	t.mu.Lock()
	t.lastPingAt = time.Now()
	t.mu.Unlock()
}

// Close stops the loops and returns immediately. The close handshake
// and socket release finish in the background.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	conn := t.conn
	t.mu.Unlock()

	close(t.done)

	if conn == nil {
		return nil
	}

	go func() {
		t.writeMu.Lock()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		t.writeMu.Unlock()

		if err := conn.Close(); err != nil {
			t.logger.Debug("close websocket", "error", err)
		}
	}()

	return nil
}

// writeDeadline bounds one control write. Zero WriteTimeout means no deadline.
func (t *wsTransport) writeDeadline() time.Time {
	if t.cfg.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(t.cfg.WriteTimeout)
}

func (t *wsTransport) Frames() <-chan dispatch.Frame {
	return t.frames
}

func (t *wsTransport) Errors() <-chan error {
	return t.errors
}

func (t *wsTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

func (t *wsTransport) fail(err error) {
	select {
	case t.errors <- err:
	default:
	}
}

// readLoop forwards frames until the connection fails or Close is called.
// Frames are never dropped: a slow consumer applies backpressure to the socket.
func (t *wsTransport) readLoop(conn *websocket.Conn) {
	defer func() {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
	}()

	for {
		_, data, err := conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-t.done:
			default:
				t.fail(err)
			}
			return
		}

		select {
		case t.frames <- dispatch.Frame{Data: data, ReceivedAt: receivedAt, TransportID: t.id}:
		case <-t.done:
			return
		}
	}
}

// heartbeatLoop pings the server and reports a stale connection when
// neither a ping nor a pong arrives within PingTimeout.
func (t *wsTransport) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), t.writeDeadline())
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Debug("failed to send ping", "error", err)
			}

			t.mu.RLock()
			lastPing := t.lastPingAt
			t.mu.RUnlock()

			if t.cfg.PingTimeout > 0 && time.Since(lastPing) > t.cfg.PingTimeout {
				t.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", t.cfg.PingTimeout,
				)
				t.fail(ErrStaleConnection)
				return
			}
		}
	}
}
