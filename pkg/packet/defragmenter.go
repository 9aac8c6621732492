package packet

import (
	"time"

	"github.com/google/uuid"

	"github.com/aria-sdk/telemetry/pkg/envelope"
)

// DefaultReassemblyTimeout is the default eviction deadline for an
// incomplete message.
const DefaultReassemblyTimeout = 5 * time.Second

type messageEntry struct {
	total      uint32
	topic      string
	priority   envelope.Priority
	timestamp  string
	schemaID   uint32
	sourceNode string
	fragments  map[uint32]envelope.Envelope
	arrival    map[uint32]time.Time
	oldest     time.Time
}

// Defragmenter reassembles fragmented envelopes, evicting incomplete
// messages on capacity pressure or reassembly timeout. Not safe for
// concurrent use -- one Defragmenter per pipeline instance.
type Defragmenter struct {
	timeout     time.Duration
	maxMessages int
	entries     map[uuid.UUID]*messageEntry

	now func() time.Time

	// OnTimeout, if set, is called with the message id of any entry
	// evicted for exceeding the reassembly deadline. This is
	// this is observability only and is never surfaced as a decode
	// failure to consumers.
	OnTimeout func(id uuid.UUID)
}

// NewDefragmenter builds a Defragmenter with the given reassembly timeout
// and maximum number of concurrently in-flight messages.
func NewDefragmenter(timeout time.Duration, maxMessages int) *Defragmenter {
	if timeout <= 0 {
		timeout = DefaultReassemblyTimeout
	}
	if maxMessages <= 0 {
		maxMessages = 100
	}
	return &Defragmenter{
		timeout:     timeout,
		maxMessages: maxMessages,
		entries:     make(map[uuid.UUID]*messageEntry),
		now:         time.Now,
	}
}

// Defragment feeds one arriving envelope through the reassembly table.
// A non-fragment envelope passes through unchanged. A fragment is
// buffered until its message completes, at which point the reassembled
// envelope (with no FragmentInfo and a fresh id) is returned. Returns
// (nil, nil) while a message is still incomplete.
func (d *Defragmenter) Defragment(env envelope.Envelope) (*envelope.Envelope, error) {
	d.sweep()

	frag := env.Metadata.Fragment
	if frag == nil {
		out := env.Clone()
		return &out, nil
	}

	if frag.FragmentID >= frag.TotalFragments {
		return nil, ErrInconsistentTotal
	}

	id := frag.MessageID
	entry, ok := d.entries[id]
	if !ok {
		if len(d.entries) >= d.maxMessages {
			d.evictOldest()
		}
		entry = &messageEntry{
			total:      frag.TotalFragments,
			topic:      env.Topic,
			priority:   env.Priority,
			timestamp:  env.Timestamp,
			schemaID:   env.SchemaID,
			sourceNode: env.Metadata.SourceNode,
			fragments:  make(map[uint32]envelope.Envelope),
			arrival:    make(map[uint32]time.Time),
		}
		d.entries[id] = entry
	}
	if entry.total != frag.TotalFragments {
		return nil, ErrInconsistentTotal
	}

	if _, exists := entry.fragments[frag.FragmentID]; exists {
		// Duplicate fragment (retransmission): keep the first, ignore.
		return nil, nil
	}

	now := d.now()
	entry.fragments[frag.FragmentID] = env.Clone()
	entry.arrival[frag.FragmentID] = now
	if entry.oldest.IsZero() || now.Before(entry.oldest) {
		entry.oldest = now
	}

	if uint32(len(entry.fragments)) < entry.total {
		return nil, nil
	}

	out, err := d.reassemble(id, entry)
	if err != nil {
		return nil, err
	}
	delete(d.entries, id)
	return &out, nil
}

func (d *Defragmenter) reassemble(id uuid.UUID, entry *messageEntry) (envelope.Envelope, error) {
	var size uint32
	for _, f := range entry.fragments {
		end := f.Metadata.Fragment.Offset + f.Metadata.Fragment.Length
		if end > size {
			size = end
		}
	}

	payload := make([]byte, size)
	covered := make([]bool, size)
	for i := uint32(0); i < entry.total; i++ {
		f, ok := entry.fragments[i]
		if !ok {
			continue
		}
		fi := f.Metadata.Fragment
		for j := uint32(0); j < fi.Length; j++ {
			if covered[fi.Offset+j] {
				return envelope.Envelope{}, ErrOverlappingFragment
			}
			covered[fi.Offset+j] = true
			payload[fi.Offset+j] = f.Payload[j]
		}
	}

	return envelope.Envelope{
		ID:        uuid.New(),
		Timestamp: entry.timestamp,
		SchemaID:  entry.schemaID,
		Priority:  entry.priority,
		Topic:     entry.topic,
		Payload:   payload,
		Metadata: envelope.Metadata{
			SourceNode: entry.sourceNode,
		},
	}, nil
}

func (d *Defragmenter) sweep() {
	now := d.now()
	for id, entry := range d.entries {
		if now.Sub(entry.oldest) > d.timeout {
			delete(d.entries, id)
			if d.OnTimeout != nil {
				d.OnTimeout(id)
			}
		}
	}
}

func (d *Defragmenter) evictOldest() {
	var oldestID uuid.UUID
	var oldestTime time.Time
	first := true
	for id, entry := range d.entries {
		if first || entry.oldest.Before(oldestTime) {
			oldestID = id
			oldestTime = entry.oldest
			first = false
		}
	}
	if !first {
		delete(d.entries, oldestID)
	}
}

// SetClock overrides the time source used for arrival timestamps and
// timeout sweeps. Intended for tests.
func (d *Defragmenter) SetClock(now func() time.Time) {
	d.now = now
}

// Stats reports the current in-flight reassembly load.
type Stats struct {
	IncompleteMessages int
	TotalFragments     int
}

// Stats returns a snapshot of the current defragmenter load.
func (d *Defragmenter) Stats() Stats {
	s := Stats{IncompleteMessages: len(d.entries)}
	for _, e := range d.entries {
		s.TotalFragments += len(e.fragments)
	}
	return s
}
