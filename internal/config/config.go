package config

import "time"

// Config is the root configuration for a livefeed instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Log      LogConfig      `yaml:"log"`
	API      APIConfig      `yaml:"api"`
	Channels ChannelsConfig `yaml:"channels"`
	Feeds    FeedsConfig    `yaml:"feeds"`
	Database DBConfig       `yaml:"database"`
	Writers  WritersConfig  `yaml:"writers"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this instance in logs.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// APIConfig holds backend endpoints and credentials.
type APIConfig struct {
	RestURL         string        `yaml:"rest_url"`
	WSURL           string        `yaml:"ws_url"`
	AccessToken     string        `yaml:"access_token"`      // Bearer token, usually ${LIVEFEED_ACCESS_TOKEN}
	AccessTokenFile string        `yaml:"access_token_file"` // Takes precedence over access_token
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
}

// ChannelsConfig holds per-channel transport and reconnect settings.
type ChannelsConfig struct {
	ReconnectMode      string        `yaml:"reconnect_mode"` // fixed or backoff
	ReconnectDelay     time.Duration `yaml:"reconnect_delay"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	ReconnectJitter    bool          `yaml:"reconnect_jitter"`
	MaxAttempts        int           `yaml:"max_attempts"` // 0 = retry forever; backoff mode only
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	ReadLimit          int64         `yaml:"read_limit"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	InboxSize          int           `yaml:"inbox_size"`
	BufferSize         int           `yaml:"buffer_size"`
}

// FeedsConfig selects which channels to open.
type FeedsConfig struct {
	Tokens           bool          `yaml:"tokens"`    // Global new-token feed
	BotLogs          bool          `yaml:"bot_logs"`  // logs:{id} for every watched token
	Prices           bool          `yaml:"prices"`    // price:{id} for every watched token
	TokenIDs         []string      `yaml:"token_ids"` // Always watched
	Discover         bool          `yaml:"discover"`  // Watch tokens listed by the REST API
	DiscoverInterval time.Duration `yaml:"discover_interval"`
	DiscoverPageSize int           `yaml:"discover_page_size"`
}

// DBConfig holds the Postgres connection for the optional writer.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// MetricsConfig holds the health and Prometheus endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
