package connection

import (
	"math/rand/v2"
	"time"
)

// DefaultReconnectDelay is the fixed wait between reconnect attempts.
const DefaultReconnectDelay = 5 * time.Second

// ReconnectPolicy decides how long a dropped channel waits before retrying.
type ReconnectPolicy interface {
	// Delay returns the wait before the next retry, given how many
	// retries have already fired since the channel was last Open.
	Delay(attempt int) time.Duration

	// Exhausted reports whether no further retry should be scheduled.
	Exhausted(attempt int) bool
}

// FixedDelay waits the same amount before every retry and never gives up.
type FixedDelay struct {
	Wait time.Duration
}

// Delay implements ReconnectPolicy.
func (p FixedDelay) Delay(int) time.Duration {
	return p.Wait
}

// Exhausted implements ReconnectPolicy.
func (p FixedDelay) Exhausted(int) bool {
	return false
}

// ExponentialBackoff doubles the wait after every retry up to Max.
// MaxAttempts > 0 makes the channel fail after that many retries.
type ExponentialBackoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
	Jitter      bool // Randomise each delay to 50-150% of its nominal value
}

// Delay implements ReconnectPolicy.
func (p ExponentialBackoff) Delay(attempt int) time.Duration {
	wait := p.Base
	for i := 0; i < attempt && (p.Max <= 0 || wait < p.Max); i++ {
		wait *= 2
	}
	if p.Max > 0 && wait > p.Max {
		wait = p.Max
	}

	if p.Jitter && wait > 0 {
		// backoff * (0.5 to 1.5)
		wait = wait/2 + time.Duration(rand.Int64N(int64(wait)))
	}
	return wait
}

// Exhausted implements ReconnectPolicy.
func (p ExponentialBackoff) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}
