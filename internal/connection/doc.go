// Package connection implements the Live Data Channel core.
//
// The Registry:
//   - Owns every channel of one consumer scope, keyed by channel id
//   - Runs one connection state machine per channel
//     (Disconnected → Connecting → Open → Closed → ReconnectScheduled → Connecting ...)
//   - Keeps at most one live transport per channel id
//   - Reconnects dropped channels according to a ReconnectPolicy (fixed 5s by default)
//   - Discards events from superseded transports using a per-channel epoch
//   - Delivers decoded frames to each channel's handler in arrival order
package connection
