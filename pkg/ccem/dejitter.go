package ccem

import (
	"sort"
	"time"

	"github.com/aria-sdk/telemetry/pkg/envelope"
)

type jitterEntry struct {
	env     envelope.Envelope
	seq     uint64
	arrival time.Time
}

// RxDeJitter reassembles a permuted stream of (envelope, sequence)
// arrivals into strictly ascending sequence order, declaring a gap
// (and recording observed loss) when a sequence arrives too far ahead
// of what is buffered, or when buffered entries age past maxWait.
type RxDeJitter struct {
	bufferSize   uint64
	maxWait      time.Duration
	nextExpected uint64
	buf          map[uint64]jitterEntry
	now          func() time.Time

	gaps uint64
}

// NewRxDeJitter builds a reorder buffer. bufferSize bounds how far
// ahead of next_expected_seq a late arrival may sit before a gap is
// declared; maxWait bounds how long an entry may sit buffered before
// a flush advances past it.
func NewRxDeJitter(bufferSize uint64, maxWait time.Duration) *RxDeJitter {
	return &RxDeJitter{
		bufferSize: bufferSize,
		maxWait:    maxWait,
		buf:        make(map[uint64]jitterEntry),
		now:        time.Now,
	}
}

// Arrive records one arrival and returns, in ascending sequence order,
// every envelope the buffer can now release.
func (d *RxDeJitter) Arrive(env envelope.Envelope, seq uint64) []envelope.Envelope {
	now := d.now()
	d.buf[seq] = jitterEntry{env: env, seq: seq, arrival: now}

	var out []envelope.Envelope
	out = append(out, d.drainInOrder()...)

	if len(d.buf) > 0 {
		if gap, ok := d.maxSeqAhead(); ok && gap > d.nextExpected+d.bufferSize {
			d.gaps++
			d.nextExpected = gap
			out = append(out, d.drainInOrder()...)
		}
	}

	out = append(out, d.flushExpired(now)...)
	return out
}

func (d *RxDeJitter) maxSeqAhead() (uint64, bool) {
	var max uint64
	found := false
	for seq := range d.buf {
		if !found || seq > max {
			max = seq
			found = true
		}
	}
	return max, found
}

func (d *RxDeJitter) drainInOrder() []envelope.Envelope {
	var out []envelope.Envelope
	for {
		e, ok := d.buf[d.nextExpected]
		if !ok {
			break
		}
		out = append(out, e.env)
		delete(d.buf, d.nextExpected)
		d.nextExpected++
	}
	return out
}

// flushExpired advances nextExpected past any buffered entry older
// than maxWait, skipping gaps, and returns everything released in
// ascending sequence order.
func (d *RxDeJitter) flushExpired(now time.Time) []envelope.Envelope {
	if len(d.buf) == 0 {
		return nil
	}
	var oldest time.Time
	first := true
	for _, e := range d.buf {
		if first || e.arrival.Before(oldest) {
			oldest = e.arrival
			first = false
		}
	}
	if first || now.Sub(oldest) <= d.maxWait {
		return nil
	}

	seqs := make([]uint64, 0, len(d.buf))
	for seq := range d.buf {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	var out []envelope.Envelope
	for _, seq := range seqs {
		if seq < d.nextExpected {
			continue
		}
		if seq > d.nextExpected {
			d.gaps++
			d.nextExpected = seq
		}
		out = append(out, d.buf[seq].env)
		delete(d.buf, seq)
		d.nextExpected++
	}
	return out
}

// SetClock overrides the time source. Intended for tests.
func (d *RxDeJitter) SetClock(now func() time.Time) {
	d.now = now
}

// GapsObserved returns the number of declared sequence gaps so far.
func (d *RxDeJitter) GapsObserved() uint64 {
	return d.gaps
}
