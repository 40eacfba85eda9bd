package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/alphaorbit/livefeed/internal/model"
)

// ListTokens fetches one page of tokens. page is 1-based.
func (c *Client) ListTokens(ctx context.Context, page, pageSize int) (*TokenPage, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		query.Set("page_size", strconv.Itoa(pageSize))
	}

	var resp TokenPage
	if err := c.get(ctx, "/token/", query, &resp); err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return &resp, nil
}

// GetToken fetches a single token.
func (c *Client) GetToken(ctx context.Context, id string) (*Token, error) {
	var resp tokenDetailResponse
	if err := c.get(ctx, "/token/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get token %s: %w", id, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("get token %s: %s", id, resp.Message)
	}
	return &resp.Data, nil
}

// BotLogHistory fetches the stored bot log of a token, oldest first. It
// backfills what the live bot-log feed delivered before the channel opened.
func (c *Client) BotLogHistory(ctx context.Context, tokenID string) ([]model.BotLog, error) {
	var wire []struct {
		InfoTag       string `json:"info_tag"`
		LogMessage    string `json:"log_message"`
		WalletAddress string `json:"wallet_address"`
		Symbol        string `json:"symbol"`
		Stage         string `json:"stage"`
	}
	if err := c.get(ctx, "/bot-control/log/"+url.PathEscape(tokenID), nil, &wire); err != nil {
		return nil, fmt.Errorf("bot log history %s: %w", tokenID, err)
	}

	logs := make([]model.BotLog, len(wire))
	for i, w := range wire {
		logs[i] = model.BotLog{
			InfoTag:       w.InfoTag,
			Message:       w.LogMessage,
			WalletAddress: w.WalletAddress,
			Symbol:        w.Symbol,
			Stage:         w.Stage,
		}
	}
	return logs, nil
}
