// Package database provides the PostgreSQL connection pool and schema for
// the optional feed archive.
//
// Tables:
//   - tokens: one row per token seen on the new-token feed
//   - bot_logs: append-only bot log lines per token
//   - price_updates: append-only price snapshots per token
package database
