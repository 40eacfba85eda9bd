package config

import "time"

// Reconnect modes.
const (
	ReconnectFixed   = "fixed"
	ReconnectBackoff = "backoff"
)

// Default values for optional configuration fields.
const (
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultRestURL            = "https://api.dev.alhpaorbit.com/api"
	DefaultWSURL              = "wss://api.dev.alhpaorbit.com"
	DefaultAPITimeout         = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultReconnectMode      = ReconnectFixed
	DefaultReconnectDelay     = 5 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultConnectTimeout     = 10 * time.Second
	DefaultReadLimit          = 1 << 20
	DefaultPingInterval       = 30 * time.Second
	DefaultPingTimeout        = 90 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultInboxSize          = 64
	DefaultChannelBufferSize  = 256
	DefaultDiscoverInterval   = 1 * time.Minute
	DefaultDiscoverPageSize   = 50
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultBatchSize          = 500
	DefaultFlushInterval      = 1 * time.Second
	DefaultBufferSize         = 10000
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
)

func (c *Config) applyDefaults() {
	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Channel defaults
	ch := &c.Channels
	if ch.ReconnectMode == "" {
		ch.ReconnectMode = DefaultReconnectMode
	}
	if ch.ReconnectDelay == 0 {
		ch.ReconnectDelay = DefaultReconnectDelay
	}
	if ch.ReconnectBaseDelay == 0 {
		ch.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if ch.ReconnectMaxDelay == 0 {
		ch.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if ch.ConnectTimeout == 0 {
		ch.ConnectTimeout = DefaultConnectTimeout
	}
	if ch.ReadLimit == 0 {
		ch.ReadLimit = DefaultReadLimit
	}
	if ch.PingInterval == 0 {
		ch.PingInterval = DefaultPingInterval
	}
	if ch.PingTimeout == 0 {
		ch.PingTimeout = DefaultPingTimeout
	}
	if ch.WriteTimeout == 0 {
		ch.WriteTimeout = DefaultWriteTimeout
	}
	if ch.InboxSize == 0 {
		ch.InboxSize = DefaultInboxSize
	}
	if ch.BufferSize == 0 {
		ch.BufferSize = DefaultChannelBufferSize
	}

	// Feed defaults
	if c.Feeds.DiscoverInterval == 0 {
		c.Feeds.DiscoverInterval = DefaultDiscoverInterval
	}
	if c.Feeds.DiscoverPageSize == 0 {
		c.Feeds.DiscoverPageSize = DefaultDiscoverPageSize
	}

	// Database defaults
	db := &c.Database
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
