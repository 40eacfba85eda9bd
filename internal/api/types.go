package api

import (
	"github.com/shopspring/decimal"

	"github.com/alphaorbit/livefeed/internal/model"
)

// Token is a token record as listed by /token/.
type Token struct {
	ID              model.TokenID       `json:"id"`
	Name            string              `json:"name"`
	Symbol          string              `json:"symbol"`
	Description     string              `json:"description"`
	Logo            string              `json:"logo"`
	MintAddress     string              `json:"mint_address"`
	TweetSource     string              `json:"tweet_source"`
	IsApproved      bool                `json:"is_approved"`
	Profit          decimal.NullDecimal `json:"profit"`
	WalletCount     int                 `json:"wallet_count"`
	AmountPerWallet decimal.NullDecimal `json:"amount_per_wallet"`
	CreatedAt       string              `json:"created_at"`
}

// TokenPage is one page of the /token/ listing.
type TokenPage struct {
	Results     []Token `json:"results"`
	Count       int     `json:"count"`
	TotalPages  int     `json:"total_pages"`
	CurrentPage int     `json:"current_page"`
}

// HasMore reports whether pages after this one exist.
func (p TokenPage) HasMore() bool {
	return p.CurrentPage < p.TotalPages
}

// tokenDetailResponse wraps /token/{id}.
type tokenDetailResponse struct {
	Success bool   `json:"success"`
	Data    Token  `json:"data"`
	Message string `json:"message"`
}
