// Package api provides the REST client for the trading-bot backend.
//
// REST endpoints live under https://api.dev.alhpaorbit.com/api and take an
// optional bearer token. The live feeds themselves are WebSocket endpoints
// handled by package connection; this client is used to discover which
// tokens to watch and to backfill bot logs.
package api
