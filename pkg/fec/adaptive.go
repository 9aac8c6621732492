package fec

import "math"

// Adaptive tracks a recent packet-loss rate and re-derives m whenever the
// loss estimate moves the target parity count, clamped into [mMin, mMax].
// Shards produced under a previous Codec must finish decoding under that
// Codec's own parameters -- callers should keep the old *Codec around
// until every in-flight block using it has been decoded, then discard it.
type Adaptive struct {
	k, mMin, mMax int
	current       *Codec
	currentM      int
}

// NewAdaptive builds an adaptive FEC manager starting at mMin parity
// shards.
func NewAdaptive(k, mMin, mMax int) (*Adaptive, error) {
	if k < 1 || mMin < 0 || mMax < mMin {
		return nil, errBadParameters
	}
	c, err := New(k, mMin)
	if err != nil {
		return nil, err
	}
	return &Adaptive{k: k, mMin: mMin, mMax: mMax, current: c, currentM: mMin}, nil
}

// Current returns the Codec in effect right now.
func (a *Adaptive) Current() *Codec { return a.current }

// Observe updates the loss-rate estimate p (0..1) and, if the derived
// target m differs from the current one, swaps in a fresh Codec. The
// formula: m = ceil(p*k / (1-p)), clamped.
func (a *Adaptive) Observe(p float64) (changed bool, err error) {
	if p < 0 {
		p = 0
	}
	if p >= 1 {
		p = 0.999999
	}

	target := int(math.Ceil(p * float64(a.k) / (1 - p)))
	if target < a.mMin {
		target = a.mMin
	}
	if target > a.mMax {
		target = a.mMax
	}

	if target == a.currentM {
		return false, nil
	}

	c, err := New(a.k, target)
	if err != nil {
		return false, err
	}
	a.current = c
	a.currentM = target
	return true, nil
}
