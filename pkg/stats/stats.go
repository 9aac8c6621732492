// Package stats holds the cross-stage counters a pipeline instance
// shares between its stages. These are the only state
// shared across stages, so every counter is updated atomically.
// Logged periodically to CSV for offline analysis.
package stats

import "sync/atomic"

// Counters aggregates the observability counters a telemetry pipeline
// accumulates across its stages. All fields are updated with
// sync/atomic and may be read concurrently with writers.
type Counters struct {
	EnvelopesSent     uint64
	EnvelopesReceived uint64

	BytesSent     uint64
	BytesReceived uint64

	CompressionErrors uint64
	FecRecovered      uint64
	FecUnrecoverable  uint64
	CryptoAuthFailed  uint64
	CryptoDecryptFailed uint64

	FragmentOverlaps   uint64
	InconsistentTotals uint64
	ReassemblyTimeouts uint64

	QoSDropped [4]uint64

	DeJitterGaps uint64

	TransportDisconnects uint64
	FrameTooLarge        uint64
	BadFrames            uint64
}

func (c *Counters) IncEnvelopesSent(n uint64)     { atomic.AddUint64(&c.EnvelopesSent, n) }
func (c *Counters) IncEnvelopesReceived(n uint64) { atomic.AddUint64(&c.EnvelopesReceived, n) }
func (c *Counters) IncBytesSent(n uint64)         { atomic.AddUint64(&c.BytesSent, n) }
func (c *Counters) IncBytesReceived(n uint64)     { atomic.AddUint64(&c.BytesReceived, n) }

func (c *Counters) IncCompressionErrors() { atomic.AddUint64(&c.CompressionErrors, 1) }
func (c *Counters) IncFecRecovered()      { atomic.AddUint64(&c.FecRecovered, 1) }
func (c *Counters) IncFecUnrecoverable()  { atomic.AddUint64(&c.FecUnrecoverable, 1) }
func (c *Counters) IncCryptoAuthFailed()  { atomic.AddUint64(&c.CryptoAuthFailed, 1) }
func (c *Counters) IncCryptoDecryptFailed() {
	atomic.AddUint64(&c.CryptoDecryptFailed, 1)
}

func (c *Counters) IncFragmentOverlaps()   { atomic.AddUint64(&c.FragmentOverlaps, 1) }
func (c *Counters) IncInconsistentTotals() { atomic.AddUint64(&c.InconsistentTotals, 1) }
func (c *Counters) IncReassemblyTimeouts() { atomic.AddUint64(&c.ReassemblyTimeouts, 1) }

func (c *Counters) IncQoSDropped(priority int) {
	if priority < 0 || priority >= len(c.QoSDropped) {
		return
	}
	atomic.AddUint64(&c.QoSDropped[priority], 1)
}

func (c *Counters) IncDeJitterGaps() { atomic.AddUint64(&c.DeJitterGaps, 1) }

func (c *Counters) IncTransportDisconnects() { atomic.AddUint64(&c.TransportDisconnects, 1) }
func (c *Counters) IncFrameTooLarge()        { atomic.AddUint64(&c.FrameTooLarge, 1) }
func (c *Counters) IncBadFrames()            { atomic.AddUint64(&c.BadFrames, 1) }

// Snapshot is a point-in-time, non-atomic copy of Counters suitable for
// logging or serialization.
type Snapshot struct {
	EnvelopesSent, EnvelopesReceived     uint64
	BytesSent, BytesReceived             uint64
	CompressionErrors                    uint64
	FecRecovered, FecUnrecoverable       uint64
	CryptoAuthFailed, CryptoDecryptFailed uint64
	FragmentOverlaps, InconsistentTotals, ReassemblyTimeouts uint64
	QoSDropped   [4]uint64
	DeJitterGaps uint64
	TransportDisconnects, FrameTooLarge, BadFrames uint64
}

// Snapshot takes a consistent-enough read of every counter for
// reporting purposes.
func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{
		EnvelopesSent:        atomic.LoadUint64(&c.EnvelopesSent),
		EnvelopesReceived:    atomic.LoadUint64(&c.EnvelopesReceived),
		BytesSent:            atomic.LoadUint64(&c.BytesSent),
		BytesReceived:        atomic.LoadUint64(&c.BytesReceived),
		CompressionErrors:    atomic.LoadUint64(&c.CompressionErrors),
		FecRecovered:         atomic.LoadUint64(&c.FecRecovered),
		FecUnrecoverable:     atomic.LoadUint64(&c.FecUnrecoverable),
		CryptoAuthFailed:     atomic.LoadUint64(&c.CryptoAuthFailed),
		CryptoDecryptFailed:  atomic.LoadUint64(&c.CryptoDecryptFailed),
		FragmentOverlaps:     atomic.LoadUint64(&c.FragmentOverlaps),
		InconsistentTotals:   atomic.LoadUint64(&c.InconsistentTotals),
		ReassemblyTimeouts:   atomic.LoadUint64(&c.ReassemblyTimeouts),
		DeJitterGaps:         atomic.LoadUint64(&c.DeJitterGaps),
		TransportDisconnects: atomic.LoadUint64(&c.TransportDisconnects),
		FrameTooLarge:        atomic.LoadUint64(&c.FrameTooLarge),
		BadFrames:            atomic.LoadUint64(&c.BadFrames),
	}
	for i := range c.QoSDropped {
		s.QoSDropped[i] = atomic.LoadUint64(&c.QoSDropped[i])
	}
	return s
}
