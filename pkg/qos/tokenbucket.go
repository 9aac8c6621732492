// Package qos implements a four-class priority queue shaper: one
// token-bucket-governed FIFO per priority, scanned high-to-low on
// dequeue. Grounded on the rate-limiting shape of the ARIA SDK's QoS
// shaper, reimplemented over Go's monotonic clock.
package qos

import "time"

// TokenBucket refills continuously at maxRatePPS, capped at burst.
// Refill accounting uses the monotonic clock (time.Now() under Go
// already carries a monotonic reading alongside wall time).
type TokenBucket struct {
	maxRatePPS float64
	burst      float64
	tokens     float64
	last       time.Time
	now        func() time.Time
}

// NewTokenBucket builds a bucket starting full.
func NewTokenBucket(maxRatePPS, burst float64) *TokenBucket {
	return &TokenBucket{
		maxRatePPS: maxRatePPS,
		burst:      burst,
		tokens:     burst,
		last:       time.Now(),
		now:        time.Now,
	}
}

func (b *TokenBucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.maxRatePPS
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
		b.last = now
	}
}

// TryTake consumes one token if available, reporting success.
func (b *TokenBucket) TryTake() bool {
	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// SetRate updates the refill rate and burst cap in place, used by the
// adaptive bandwidth-scaling shaper.
func (b *TokenBucket) SetRate(maxRatePPS, burst float64) {
	b.refill()
	b.maxRatePPS = maxRatePPS
	b.burst = burst
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
}

// SetClock overrides the time source. Intended for tests.
func (b *TokenBucket) SetClock(now func() time.Time) {
	b.now = now
	b.last = now()
}
