package qos

import (
	"context"
	"time"

	"github.com/aria-sdk/telemetry/pkg/envelope"
)

// pollTick bounds how often dequeue_wait rechecks the queues; it must
// not exceed 10ms.
const pollTick = 10 * time.Millisecond

// ClassConfig configures one priority class's queue depth and rate.
type ClassConfig struct {
	MaxRatePPS  float64
	Burst       float64
	MaxQueueLen int
}

type class struct {
	queue  []envelope.Envelope
	bucket *TokenBucket
	cfg    ClassConfig
}

// Shaper is a four-class priority queue with per-class token-bucket
// rate limiting. Not safe for concurrent use without external
// synchronization; a pipeline owns exactly one Shaper.
type Shaper struct {
	classes [envelope.NumPriorities]*class
	sleep   func(context.Context, time.Duration) error
	dropped [envelope.NumPriorities]uint64
}

// NewShaper builds a Shaper with one ClassConfig per priority, indexed
// P0..P3.
func NewShaper(cfgs [envelope.NumPriorities]ClassConfig) *Shaper {
	s := &Shaper{sleep: sleepCtx}
	for i, cfg := range cfgs {
		s.classes[i] = &class{
			bucket: NewTokenBucket(cfg.MaxRatePPS, cfg.Burst),
			cfg:    cfg,
		}
	}
	return s
}

// Enqueue appends env to its priority's queue. Returns false (a
// rejection signal) if that queue is at capacity; the envelope is
// dropped and counted in statistics, never blocking the caller.
func (s *Shaper) Enqueue(env envelope.Envelope) bool {
	c := s.classes[env.Priority]
	if len(c.queue) >= c.cfg.MaxQueueLen {
		s.dropped[env.Priority]++
		return false
	}
	c.queue = append(c.queue, env)
	return true
}

// Dequeue scans priorities P0..P3 and returns the first envelope whose
// queue is non-empty and whose token bucket currently holds a token.
// Never blocks; returns (env, false) when nothing is eligible.
func (s *Shaper) Dequeue() (envelope.Envelope, bool) {
	for _, c := range s.classes {
		if len(c.queue) == 0 {
			continue
		}
		if c.bucket.TryTake() {
			env := c.queue[0]
			c.queue = c.queue[1:]
			return env, true
		}
	}
	return envelope.Envelope{}, false
}

// DequeueWait polls Dequeue on a fixed tick until a message becomes
// available, the timeout elapses, or ctx is canceled.
func (s *Shaper) DequeueWait(ctx context.Context, timeout time.Duration) (envelope.Envelope, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if env, ok := s.Dequeue(); ok {
			return env, true
		}
		if !time.Now().Before(deadline) {
			return envelope.Envelope{}, false
		}
		remaining := time.Until(deadline)
		tick := pollTick
		if remaining < tick {
			tick = remaining
		}
		if err := s.sleep(ctx, tick); err != nil {
			return envelope.Envelope{}, false
		}
	}
}

// Dropped reports the number of envelopes dropped for a given priority
// due to queue capacity.
func (s *Shaper) Dropped(p envelope.Priority) uint64 {
	return s.dropped[p]
}

// QueueLen reports the current depth of a priority's queue.
func (s *Shaper) QueueLen(p envelope.Priority) int {
	return len(s.classes[p].queue)
}

// Rescale multiplies every per-class rate by the adaptive bandwidth
// scale factor s, leaving burst capacity unchanged: given observed
// downstream bandwidth B (bits/sec) and average packet size S (bytes),
// the caller computes s = B / (8*S*sum(base_rate)) and calls Rescale
// with it. s is clamped into [0.1, 2.0] before application.
func (s *Shaper) Rescale(scale float64) {
	if scale < 0.1 {
		scale = 0.1
	}
	if scale > 2.0 {
		scale = 2.0
	}
	for _, c := range s.classes {
		c.bucket.SetRate(c.cfg.MaxRatePPS*scale, c.cfg.Burst)
	}
}

// AdaptiveScale computes the clamped scale factor for observed
// downstream bandwidth bitsPerSec and average packet size bytes, given
// the sum of configured base rates across all classes.
func AdaptiveScale(bitsPerSec, avgPacketSizeBytes float64, cfgs [envelope.NumPriorities]ClassConfig) float64 {
	var sumBaseRate float64
	for _, cfg := range cfgs {
		sumBaseRate += cfg.MaxRatePPS
	}
	if sumBaseRate <= 0 || avgPacketSizeBytes <= 0 {
		return 1.0
	}
	s := bitsPerSec / (8 * avgPacketSizeBytes * sumBaseRate)
	if s < 0.1 {
		s = 0.1
	}
	if s > 2.0 {
		s = 2.0
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
