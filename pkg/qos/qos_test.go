package qos

import (
	"context"
	"testing"
	"time"

	"github.com/aria-sdk/telemetry/pkg/envelope"
)

func defaultCfgs() [envelope.NumPriorities]ClassConfig {
	return [envelope.NumPriorities]ClassConfig{
		{MaxRatePPS: 1000, Burst: 1000, MaxQueueLen: 10},
		{MaxRatePPS: 1000, Burst: 1000, MaxQueueLen: 10},
		{MaxRatePPS: 1000, Burst: 1000, MaxQueueLen: 10},
		{MaxRatePPS: 1000, Burst: 1000, MaxQueueLen: 10},
	}
}

func env(p envelope.Priority) envelope.Envelope {
	return envelope.New("t", []byte("x"), p, "robot-1", 1)
}

func TestEnqueueDropsAtCapacity(t *testing.T) {
	cfgs := defaultCfgs()
	cfgs[0].MaxQueueLen = 1
	s := NewShaper(cfgs)

	if !s.Enqueue(env(envelope.P0)) {
		t.Fatal("first enqueue should succeed")
	}
	if s.Enqueue(env(envelope.P0)) {
		t.Fatal("second enqueue should be rejected at capacity")
	}
	if s.Dropped(envelope.P0) != 1 {
		t.Fatalf("expected 1 drop, got %d", s.Dropped(envelope.P0))
	}
}

func TestDequeuePriorityOvertake(t *testing.T) {
	s := NewShaper(defaultCfgs())
	s.Enqueue(env(envelope.P3))
	s.Enqueue(env(envelope.P0))
	s.Enqueue(env(envelope.P1))

	got, ok := s.Dequeue()
	if !ok || got.Priority != envelope.P0 {
		t.Fatalf("expected P0 first, got %v ok=%v", got.Priority, ok)
	}
	got, ok = s.Dequeue()
	if !ok || got.Priority != envelope.P1 {
		t.Fatalf("expected P1 second, got %v", got.Priority)
	}
	got, ok = s.Dequeue()
	if !ok || got.Priority != envelope.P3 {
		t.Fatalf("expected P3 third, got %v", got.Priority)
	}
}

func TestDequeueEmptyReturnsFalse(t *testing.T) {
	s := NewShaper(defaultCfgs())
	if _, ok := s.Dequeue(); ok {
		t.Fatal("expected no message available")
	}
}

func TestTokenBucketRateLimiting(t *testing.T) {
	cur := time.Unix(0, 0)
	cfgs := defaultCfgs()
	cfgs[0] = ClassConfig{MaxRatePPS: 1, Burst: 1, MaxQueueLen: 10}
	s := NewShaper(cfgs)
	s.classes[envelope.P0].bucket.SetClock(func() time.Time { return cur })

	s.Enqueue(env(envelope.P0))
	s.Enqueue(env(envelope.P0))

	if _, ok := s.Dequeue(); !ok {
		t.Fatal("expected first token available immediately (bucket starts full)")
	}
	if _, ok := s.Dequeue(); ok {
		t.Fatal("expected second dequeue to be rate-limited")
	}

	cur = cur.Add(time.Second)
	if _, ok := s.Dequeue(); !ok {
		t.Fatal("expected token to have refilled after 1s at 1pps")
	}
}

func TestDequeueWaitReturnsOnceAvailable(t *testing.T) {
	s := NewShaper(defaultCfgs())
	done := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Enqueue(env(envelope.P2))
		close(done)
	}()

	env, ok := s.DequeueWait(context.Background(), 200*time.Millisecond)
	<-done
	if !ok || env.Priority != envelope.P2 {
		t.Fatalf("expected P2 envelope, got ok=%v priority=%v", ok, env.Priority)
	}
}

func TestDequeueWaitTimesOut(t *testing.T) {
	s := NewShaper(defaultCfgs())
	start := time.Now()
	_, ok := s.DequeueWait(context.Background(), 30*time.Millisecond)
	if ok {
		t.Fatal("expected timeout with no message")
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Fatal("returned too early for the requested timeout")
	}
}

func TestDequeueWaitRespectsContextCancellation(t *testing.T) {
	s := NewShaper(defaultCfgs())
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, ok := s.DequeueWait(ctx, time.Second)
	if ok {
		t.Fatal("expected cancellation to abort the wait")
	}
}

func TestAdaptiveScaleClampedRange(t *testing.T) {
	cfgs := defaultCfgs()
	if s := AdaptiveScale(1, 1000, cfgs); s != 0.1 {
		t.Fatalf("expected clamp to 0.1, got %v", s)
	}
	if s := AdaptiveScale(1e12, 1, cfgs); s != 2.0 {
		t.Fatalf("expected clamp to 2.0, got %v", s)
	}
}

func TestRescaleAppliesToAllClasses(t *testing.T) {
	s := NewShaper(defaultCfgs())
	s.Rescale(0.5)
	for _, c := range s.classes {
		if c.bucket.maxRatePPS != 500 {
			t.Fatalf("expected rescaled rate 500, got %v", c.bucket.maxRatePPS)
		}
	}
}
