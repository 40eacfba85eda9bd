// Package dispatch implements the Message Dispatcher.
//
// The Dispatcher:
//   - Decodes one raw frame according to the kind its channel was opened for
//   - Isolates malformed frames as DecodeError (logged, counted, never fatal)
//   - Invokes the channel's single Handler with the decoded InboundMessage
//
// GrowableBuffer is the ordered per-channel inbox that keeps delivery for a
// channel sequential while transports and timers run on their own goroutines.
package dispatch
