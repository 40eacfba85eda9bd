package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alphaorbit/livefeed/internal/model"
)

// ErrUnknownKind is wrapped by DecodeError when a channel declares a kind
// the dispatcher has no decoder for.
var ErrUnknownKind = errors.New("unknown message kind")

// ErrNotObject is wrapped by DecodeError when a frame is valid JSON but not an object.
var ErrNotObject = errors.New("frame is not a JSON object")

// Recorder receives dispatch counters. *metrics.Metrics implements it.
type Recorder interface {
	FrameReceived(kind model.Kind)
	DecodeFailed(kind model.Kind)
}

// Stats contains runtime statistics.
type Stats struct {
	FramesReceived int64
	Dispatched     int64
	DecodeErrors   int64
}

// Dispatcher decodes frames and hands them to channel handlers.
type Dispatcher interface {
	// Decode parses one frame for the given route without invoking a handler.
	Decode(route Route, frame Frame) (model.InboundMessage, error)

	// Dispatch decodes a frame and, on success, invokes h exactly once.
	// A *DecodeError is returned and logged for malformed frames.
	Dispatch(route Route, frame Frame, h Handler) error

	// Stats returns current dispatch statistics.
	Stats() Stats
}

// dispatcher implements the Dispatcher interface.
type dispatcher struct {
	logger   *slog.Logger
	recorder Recorder

	mu           sync.Mutex
	received     int64
	dispatched   int64
	decodeErrors int64
}

// New creates a Dispatcher. recorder may be nil.
func New(logger *slog.Logger, recorder Recorder) Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &dispatcher{
		logger:   logger,
		recorder: recorder,
	}
}

// Decode parses one frame according to route.Kind.
func (d *dispatcher) Decode(route Route, frame Frame) (model.InboundMessage, error) {
	payload, err := decodePayload(route.Kind, frame.Data)
	if err != nil {
		return model.InboundMessage{}, &DecodeError{
			ChannelID: route.ChannelID,
			Kind:      route.Kind,
			Err:       err,
		}
	}

	return model.InboundMessage{
		ChannelID:   route.ChannelID,
		ResourceID:  route.ResourceID,
		Kind:        route.Kind,
		Payload:     payload,
		TransportID: frame.TransportID,
		ReceivedAt:  frame.ReceivedAt,
	}, nil
}

// Dispatch decodes and delivers a single frame.
func (d *dispatcher) Dispatch(route Route, frame Frame, h Handler) error {
	d.mu.Lock()
	d.received++
	d.mu.Unlock()
	if d.recorder != nil {
		d.recorder.FrameReceived(route.Kind)
	}

	msg, err := d.Decode(route, frame)
	if err != nil {
		d.mu.Lock()
		d.decodeErrors++
		d.mu.Unlock()
		if d.recorder != nil {
			d.recorder.DecodeFailed(route.Kind)
		}

		d.logger.Warn("failed to decode frame",
			"channel", route.ChannelID,
			"kind", route.Kind,
			"bytes", len(frame.Data),
			"error", err,
		)
		return err
	}

	if p, ok := msg.Payload.(model.PriceUpdate); ok && len(p.Unparsed) > 0 {
		d.logger.Debug("price fields not numeric",
			"channel", route.ChannelID,
			"fields", p.Unparsed,
		)
	}

	if h != nil {
		h.HandleMessage(msg)
	}

	d.mu.Lock()
	d.dispatched++
	d.mu.Unlock()
	return nil
}

// Stats returns current statistics.
func (d *dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		FramesReceived: d.received,
		Dispatched:     d.dispatched,
		DecodeErrors:   d.decodeErrors,
	}
}

// decodePayload parses data into the payload type for kind.
func decodePayload(kind model.Kind, data []byte) (any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if !json.Valid(trimmed) {
			return nil, fmt.Errorf("invalid json")
		}
		return nil, ErrNotObject
	}

	switch kind {
	case model.KindTokenCreated:
		var wire tokenCreatedWire
		if err := json.Unmarshal(trimmed, &wire); err != nil {
			return nil, err
		}
		return model.TokenCreated{
			ID:          wire.ID,
			Name:        wire.Name,
			Symbol:      wire.Symbol,
			Logo:        wire.Logo,
			TweetSource: wire.TweetSource,
		}, nil

	case model.KindBotLog:
		var wire botLogWire
		if err := json.Unmarshal(trimmed, &wire); err != nil {
			return nil, err
		}
		return model.BotLog{
			InfoTag:       wire.InfoTag,
			Message:       wire.LogMessage,
			WalletAddress: wire.WalletAddress,
			Symbol:        wire.Symbol,
			Stage:         wire.Stage,
		}, nil

	case model.KindPriceUpdate:
		var wire priceUpdateWire
		if err := json.Unmarshal(trimmed, &wire); err != nil {
			return nil, err
		}
		return model.PriceUpdate{
			Price:        wire.TokenPrice.value,
			VolumeSOL:    wire.VolumeSOL.value,
			VolumeUSD:    wire.VolumeDollar.value,
			HolderCount:  wire.HolderCount.value,
			MarketCap:    wire.MarketCap.value,
			AllTimeHigh:  wire.AllTimeHigh.value,
			AllTimeLow:   wire.AllTimeLow.value,
			AveragePrice: wire.AveragePrice.value,
			Unparsed:     wire.unparsed(),
		}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}
