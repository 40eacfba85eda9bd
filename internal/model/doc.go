// Package model defines the shared data types carried by live channels.
//
// Every frame decoded by the dispatcher becomes an InboundMessage whose
// Payload is one of:
//   - TokenCreated (global new-token feed)
//   - BotLog (per-token bot log feed)
//   - PriceUpdate (per-token price feed)
//
// Conventions:
//   - Prices and volumes: shopspring decimal, parsed from the backend's string encoding
//   - Wallets: Solana base58 public keys
//   - Timestamps: time.Time in local receive time
package model
