package connection

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/alphaorbit/livefeed/internal/model"
)

// Endpoint templates on the trading-bot backend. "{id}" is replaced by
// the channel's resource id.
const (
	TokenFeedPath  = "/ws/token/"
	BotLogFeedPath = "/ws/bot-log/{id}/"
	PriceFeedPath  = "/ws/token-price/{id}/"

	resourceSlot = "{id}"
)

// ChannelSpec declares one logical stream.
type ChannelSpec struct {
	ID               string     // Registry key
	Kind             model.Kind // Purpose; decides how every frame is decoded
	EndpointTemplate string     // Path (joined to the registry base URL) or absolute ws(s):// URL
	ResourceID       string     // Value for "{id}"; empty for global feeds
}

// TokenFeed is the global new-token feed.
func TokenFeed() ChannelSpec {
	return ChannelSpec{
		ID:               "tokens",
		Kind:             model.KindTokenCreated,
		EndpointTemplate: TokenFeedPath,
	}
}

// BotLogFeed is the bot log feed of one token.
func BotLogFeed(tokenID string) ChannelSpec {
	return ChannelSpec{
		ID:               "logs:" + tokenID,
		Kind:             model.KindBotLog,
		EndpointTemplate: BotLogFeedPath,
		ResourceID:       tokenID,
	}
}

// PriceFeed is the price feed of one token.
func PriceFeed(tokenID string) ChannelSpec {
	return ChannelSpec{
		ID:               "price:" + tokenID,
		Kind:             model.KindPriceUpdate,
		EndpointTemplate: PriceFeedPath,
		ResourceID:       tokenID,
	}
}

// Validate checks that the spec can be opened.
func (s ChannelSpec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidSpec)
	}
	if !s.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, s.Kind)
	}
	if s.EndpointTemplate == "" {
		return fmt.Errorf("%w: empty endpoint template", ErrInvalidSpec)
	}
	if strings.Contains(s.EndpointTemplate, resourceSlot) && s.ResourceID == "" {
		return fmt.Errorf("%w: template %q needs a resource id", ErrInvalidSpec, s.EndpointTemplate)
	}
	return nil
}

// Endpoint expands the template and resolves it against base.
func (s ChannelSpec) Endpoint(base string) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}

	path := strings.ReplaceAll(s.EndpointTemplate, resourceSlot, url.PathEscape(s.ResourceID))
	if strings.HasPrefix(path, "ws://") || strings.HasPrefix(path, "wss://") {
		return path, nil
	}
	if base == "" {
		return "", fmt.Errorf("%w: relative template %q without base url", ErrInvalidSpec, path)
	}

	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/"), nil
}
