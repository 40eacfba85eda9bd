package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer runs a statement. *pgxpool.Pool implements it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema creates the archive tables. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS tokens (
		token_id     TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		symbol       TEXT NOT NULL,
		logo         TEXT NOT NULL DEFAULT '',
		tweet_source TEXT NOT NULL DEFAULT '',
		received_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bot_logs (
		id             BIGSERIAL PRIMARY KEY,
		token_id       TEXT NOT NULL,
		info_tag       TEXT NOT NULL,
		message        TEXT NOT NULL,
		wallet_address TEXT NOT NULL DEFAULT '',
		symbol         TEXT NOT NULL DEFAULT '',
		stage          TEXT NOT NULL DEFAULT '',
		is_error       BOOLEAN NOT NULL,
		transport_id   UUID NOT NULL,
		received_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS bot_logs_token_time ON bot_logs (token_id, received_at)`,
	`CREATE TABLE IF NOT EXISTS price_updates (
		id            BIGSERIAL PRIMARY KEY,
		token_id      TEXT NOT NULL,
		token_price   NUMERIC NOT NULL,
		volume_sol    NUMERIC NOT NULL,
		volume_usd    NUMERIC NOT NULL,
		holder_count  NUMERIC NOT NULL,
		market_cap    NUMERIC NOT NULL,
		all_time_high NUMERIC NOT NULL,
		all_time_low  NUMERIC NOT NULL,
		average_price NUMERIC NOT NULL,
		received_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS price_updates_token_time ON price_updates (token_id, received_at)`,
}

// EnsureSchema creates any missing tables and indexes.
func EnsureSchema(ctx context.Context, db Execer) error {
	for i, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
