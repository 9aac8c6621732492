// Package ccem implements channel conditioning and error management:
// transmit pacing, receive-side de-jitter/reorder buffering, and clock
// drift compensation. Grounded on the smoothing/reordering shape of the
// ARIA SDK's CCEM layer, reimplemented as synchronous Go state machines.
package ccem

import (
	"context"
	"time"
)

// TxPacer smooths bursts from upstream stages by enforcing a minimum
// inter-emission interval.
type TxPacer struct {
	interval time.Duration
	last     time.Time
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// NewTxPacer builds a TxPacer targeting the given inter-packet interval.
func NewTxPacer(interval time.Duration) *TxPacer {
	return &TxPacer{
		interval: interval,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Pace blocks until at least interval has elapsed since the previous
// call, or returns immediately if it already has. Honors ctx
// cancellation.
func (p *TxPacer) Pace(ctx context.Context) error {
	now := p.now()
	if !p.last.IsZero() {
		elapsed := now.Sub(p.last)
		if elapsed < p.interval {
			if err := p.sleep(ctx, p.interval-elapsed); err != nil {
				return err
			}
			now = p.now()
		}
	}
	p.last = now
	return nil
}

// SetClock overrides the time source. Intended for tests.
func (p *TxPacer) SetClock(now func() time.Time) {
	p.now = now
}

// SetSleeper overrides the sleep function. Intended for tests.
func (p *TxPacer) SetSleeper(sleep func(context.Context, time.Duration) error) {
	p.sleep = sleep
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
