// Package writer archives decoded feed messages into Postgres.
//
// A Writer is attached to channels as a dispatch.Handler (see Sink) and
// batches rows into three append-only tables:
//   - tokens: keyed by token id, duplicates are ignored
//   - bot_logs: one row per bot log line
//   - price_updates: one row per price snapshot
//
// Prices are stored as NUMERIC so decimals round-trip exactly.
package writer
