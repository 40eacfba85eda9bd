// Package poller implements token discovery.
//
// The discovery poller:
//   - Lists tokens from the REST API on a fixed interval (one page per cycle)
//   - Opens bot-log and price channels for newly listed tokens
//   - Closes channels for tokens that dropped off the listing
//   - Always keeps statically configured tokens watched
package poller
