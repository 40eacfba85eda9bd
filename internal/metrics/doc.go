// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Channel state transitions and currently open channels per kind
//   - Transports created and reconnects scheduled
//   - Frames received and decode failures per kind
//   - Writer inserts, conflicts and errors
package metrics
