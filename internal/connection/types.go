package connection

import (
	"errors"
	"fmt"
	"time"

	"github.com/alphaorbit/livefeed/internal/model"
)

// Errors
var (
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrInvalidSpec     = errors.New("invalid channel spec")
)

// AlreadyOpenError is returned by Open when the channel id is still active.
type AlreadyOpenError struct {
	ChannelID string
	State     State
}

func (e *AlreadyOpenError) Error() string {
	return fmt.Sprintf("channel %s already open (state %s)", e.ChannelID, e.State)
}

// TransportError records a connect or read failure. It drives the channel
// to ReconnectScheduled and is never returned to consumers.
type TransportError struct {
	ChannelID string
	Op        string // "connect" or "read"
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("channel %s %s: %v", e.ChannelID, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// State is a channel's position in its connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateReconnectScheduled
	// StateFailed is terminal; it is only reached when the reconnect
	// policy has a maximum attempt count.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateReconnectScheduled:
		return "reconnect_scheduled"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StateChange describes one transition of one channel.
type StateChange struct {
	ChannelID string
	Kind      model.Kind
	From      State
	To        State
	Attempt   int
	Epoch     uint64
	Err       error // Last transport error, if any
	At        time.Time
}

// ChannelStatus is a point-in-time view of one channel.
type ChannelStatus struct {
	ID             string
	Kind           model.Kind
	ResourceID     string
	URL            string
	State          State
	Attempt        int
	Epoch          uint64
	LastError      error
	Since          time.Time // When State was entered
	FramesReceived int64
	Transports     int64 // Transports created since Open
	Queued         int   // Frames waiting for the handler
}

// RegistryStats provides statistics about the registry.
type RegistryStats struct {
	Channels     int
	Open         int
	Reconnecting int // Connecting or ReconnectScheduled
	Failed       int
}

// TransportConfig configures a WebSocket transport.
type TransportConfig struct {
	ConnectTimeout time.Duration // Handshake timeout
	PingInterval   time.Duration // Client keepalive ping interval
	PingTimeout    time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout   time.Duration // Deadline for ping and close frames (0 = none)
	ReadLimit      int64         // Max inbound frame size in bytes (0 = unlimited)
	BufferSize     int           // Frame channel buffer size
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		PingTimeout:    90 * time.Second,
		WriteTimeout:   5 * time.Second,
		ReadLimit:      1 << 20,
		BufferSize:     256,
	}
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	BaseURL        string          // e.g. wss://api.dev.alhpaorbit.com
	Policy         ReconnectPolicy // nil = FixedDelay(DefaultReconnectDelay)
	ConnectTimeout time.Duration   // Bound on one connect attempt (0 = no bound beyond the transport's own)
	InboxSize      int             // Initial per-channel inbox capacity
}

// DefaultRegistryConfig returns sensible defaults.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Policy:         FixedDelay{Wait: DefaultReconnectDelay},
		ConnectTimeout: 10 * time.Second,
		InboxSize:      64,
	}
}
