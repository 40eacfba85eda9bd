package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if err := validateURL("api.ws_url", c.API.WSURL, "ws", "wss"); err != nil {
		return err
	}
	if c.Feeds.Discover {
		if err := validateURL("api.rest_url", c.API.RestURL, "http", "https"); err != nil {
			return err
		}
	}

	if err := c.Channels.validate(); err != nil {
		return err
	}
	if err := c.Feeds.validate(); err != nil {
		return err
	}

	if c.Writers.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
		if c.Writers.BatchSize < 1 {
			return errors.New("writers.batch_size must be >= 1")
		}
		if c.Writers.BufferSize < 1 {
			return errors.New("writers.buffer_size must be >= 1")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (ch *ChannelsConfig) validate() error {
	switch ch.ReconnectMode {
	case ReconnectFixed:
		if ch.ReconnectDelay <= 0 {
			return errors.New("channels.reconnect_delay must be > 0")
		}
		if ch.MaxAttempts != 0 {
			return errors.New("channels.max_attempts requires reconnect_mode backoff")
		}
	case ReconnectBackoff:
		if ch.ReconnectBaseDelay <= 0 {
			return errors.New("channels.reconnect_base_delay must be > 0")
		}
		if ch.ReconnectMaxDelay < ch.ReconnectBaseDelay {
			return fmt.Errorf("channels.reconnect_max_delay (%s) cannot be less than reconnect_base_delay (%s)",
				ch.ReconnectMaxDelay, ch.ReconnectBaseDelay)
		}
		if ch.MaxAttempts < 0 {
			return errors.New("channels.max_attempts must be >= 0")
		}
	default:
		return fmt.Errorf("channels.reconnect_mode must be fixed or backoff, got %q", ch.ReconnectMode)
	}

	if ch.ReadLimit < 0 {
		return errors.New("channels.read_limit must be >= 0")
	}
	if ch.PingInterval > 0 && ch.PingTimeout < ch.PingInterval {
		return fmt.Errorf("channels.ping_timeout (%s) cannot be less than ping_interval (%s)",
			ch.PingTimeout, ch.PingInterval)
	}
	if ch.InboxSize < 1 {
		return errors.New("channels.inbox_size must be >= 1")
	}
	return nil
}

func (f *FeedsConfig) validate() error {
	perToken := f.BotLogs || f.Prices
	if !f.Tokens && !perToken {
		return errors.New("feeds: enable at least one of tokens, bot_logs, prices")
	}
	if perToken && len(f.TokenIDs) == 0 && !f.Discover {
		return errors.New("feeds: bot_logs and prices need token_ids or discover")
	}
	for i, id := range f.TokenIDs {
		if id == "" {
			return fmt.Errorf("feeds.token_ids[%d] is empty", i)
		}
	}
	if f.Discover {
		if f.DiscoverInterval <= 0 {
			return errors.New("feeds.discover_interval must be > 0")
		}
		if f.DiscoverPageSize < 1 {
			return errors.New("feeds.discover_page_size must be >= 1")
		}
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be an absolute %v url, got %q", field, schemes, raw)
}
