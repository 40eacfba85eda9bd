package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind identifies the purpose a channel was opened for.
type Kind string

const (
	KindTokenCreated Kind = "token-created"
	KindBotLog       Kind = "bot-log"
	KindPriceUpdate  Kind = "price-update"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindTokenCreated, KindBotLog, KindPriceUpdate:
		return true
	}
	return false
}

// InboundMessage is one decoded frame.
type InboundMessage struct {
	ChannelID   string    // Registry key, e.g. "price:TOKEN123"
	ResourceID  string    // Substituted endpoint id ("" for global feeds)
	Kind        Kind      // Declared at open time, never inferred from the frame
	Payload     any       // TokenCreated, BotLog or PriceUpdate
	TransportID uuid.UUID // Transport the frame arrived on
	ReceivedAt  time.Time // Local receive timestamp
}

// TokenID is a backend token identifier. The backend sends it either as a
// JSON number or a string; both decode to the same decimal text.
type TokenID string

// UnmarshalJSON accepts a JSON string or number.
func (id *TokenID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = TokenID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("token id: %w", err)
	}
	*id = TokenID(n.String())
	return nil
}

// String returns the id as plain text.
func (id TokenID) String() string {
	return string(id)
}

// TokenCreated announces a newly listed token.
type TokenCreated struct {
	ID          TokenID
	Name        string
	Symbol      string
	Logo        string // Image URL, may be empty
	TweetSource string // Tweet the token was discovered from, may be empty
}

// InfoTagError marks a bot log entry that should be surfaced as an error notification.
const InfoTagError = "error"

// BotLog is one entry from a token's trading bot.
type BotLog struct {
	InfoTag       string // "info", "success", "error", ...
	Message       string
	WalletAddress string // Base58, may be empty
	Symbol        string
	Stage         string
}

// IsError reports whether the backend flagged this entry as an error.
func (l BotLog) IsError() bool {
	return l.InfoTag == InfoTagError
}

// Wallet parses WalletAddress as a Solana public key.
func (l BotLog) Wallet() (solana.PublicKey, error) {
	if l.WalletAddress == "" {
		return solana.PublicKey{}, fmt.Errorf("no wallet address")
	}
	pk, err := solana.PublicKeyFromBase58(l.WalletAddress)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("parse wallet %q: %w", l.WalletAddress, err)
	}
	return pk, nil
}

// ShortWallet returns the wallet in "abcdef...wxyz" form, or "" if the
// address is missing or not a valid public key.
func (l BotLog) ShortWallet() string {
	pk, err := l.Wallet()
	if err != nil {
		return ""
	}
	s := pk.String()
	if len(s) <= 10 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

// PriceUpdate is a price/volume snapshot for one token.
type PriceUpdate struct {
	Price        decimal.Decimal // Token price in SOL
	VolumeSOL    decimal.Decimal
	VolumeUSD    decimal.Decimal
	HolderCount  decimal.Decimal
	MarketCap    decimal.Decimal
	AllTimeHigh  decimal.Decimal
	AllTimeLow   decimal.Decimal
	AveragePrice decimal.Decimal

	// Unparsed lists wire fields that were present but empty or not
	// numeric. They read as zero above.
	Unparsed []string
}
