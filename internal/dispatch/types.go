package dispatch

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alphaorbit/livefeed/internal/model"
)

// Frame is one raw message read from a transport.
type Frame struct {
	Data        []byte    // Raw text frame
	ReceivedAt  time.Time // Local timestamp when the read returned
	TransportID uuid.UUID // Transport that produced the frame
}

// Route describes where a frame came from and how to decode it.
type Route struct {
	ChannelID  string
	ResourceID string
	Kind       model.Kind
}

// Handler receives decoded messages for one channel.
type Handler interface {
	HandleMessage(msg model.InboundMessage)
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(model.InboundMessage)

func (f HandlerFunc) HandleMessage(msg model.InboundMessage) {
	f(msg)
}

// DecodeError reports a frame that could not be decoded. It never affects
// the channel's connection state.
type DecodeError struct {
	ChannelID string
	Kind      model.Kind
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s frame on %s: %v", e.Kind, e.ChannelID, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Wire types for JSON parsing

// tokenCreatedWire is the wire format on the /ws/token/ feed.
type tokenCreatedWire struct {
	ID          model.TokenID `json:"id"`
	Name        string        `json:"name"`
	Symbol      string        `json:"symbol"`
	Logo        string        `json:"logo"`
	TweetSource string        `json:"tweet_source"`
}

// botLogWire is the wire format on the /ws/bot-log/{id}/ feed.
type botLogWire struct {
	InfoTag       string `json:"info_tag"`
	LogMessage    string `json:"log_message"`
	WalletAddress string `json:"wallet_address"`
	Symbol        string `json:"symbol"`
	Stage         string `json:"stage"`
}

// priceUpdateWire is the wire format on the /ws/token-price/{id}/ feed.
// Every number arrives string-encoded, e.g. "0.0042".
type priceUpdateWire struct {
	TokenPrice   wireDecimal `json:"token_price"`
	VolumeSOL    wireDecimal `json:"volume_sol"`
	HolderCount  wireDecimal `json:"holder_count"`
	VolumeDollar wireDecimal `json:"volume_dollar"`
	MarketCap    wireDecimal `json:"market_cap"`
	AllTimeHigh  wireDecimal `json:"all_time_high"`
	AllTimeLow   wireDecimal `json:"all_time_low"`
	AveragePrice wireDecimal `json:"average_price"`
}

// wireDecimal accepts a quoted or bare number. Empty or non-numeric
// values decode as zero and are flagged instead of failing the frame.
type wireDecimal struct {
	value decimal.Decimal
	bad   bool
}

func (w *wireDecimal) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		w.value, w.bad = decimal.Zero, true
		return nil
	}
	w.value, w.bad = d, false
	return nil
}

// unparsed returns the wire names of fields that were present but not numeric.
func (p *priceUpdateWire) unparsed() []string {
	fields := []struct {
		name string
		v    wireDecimal
	}{
		{"token_price", p.TokenPrice},
		{"volume_sol", p.VolumeSOL},
		{"holder_count", p.HolderCount},
		{"volume_dollar", p.VolumeDollar},
		{"market_cap", p.MarketCap},
		{"all_time_high", p.AllTimeHigh},
		{"all_time_low", p.AllTimeLow},
		{"average_price", p.AveragePrice},
	}
	var names []string
	for _, f := range fields {
		if f.v.bad {
			names = append(names, f.name)
		}
	}
	return names
}
