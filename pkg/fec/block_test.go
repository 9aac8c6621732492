package fec

import (
	"bytes"
	"testing"
	"time"

	"github.com/aria-sdk/telemetry/pkg/envelope"
)

func mkFrags(payloads ...string) []envelope.Envelope {
	messageID := envelope.New("t", nil, envelope.P1, "robot-1", 1).ID
	total := uint32(len(payloads))
	out := make([]envelope.Envelope, len(payloads))
	var offset uint32
	for i, p := range payloads {
		out[i] = envelope.Envelope{
			ID:       messageID,
			Topic:    "telemetry/imu",
			Priority: envelope.P1,
			Payload:  []byte(p),
			Metadata: envelope.Metadata{
				SourceNode: "robot-1",
				Fragment: &envelope.FragmentInfo{
					FragmentID:     uint32(i),
					TotalFragments: total,
					Offset:         offset,
					Length:         uint32(len(p)),
					MessageID:      messageID,
				},
			},
		}
		offset += uint32(len(p))
	}
	return out
}

func TestEncodeFragmentsRoundTripNoLoss(t *testing.T) {
	frags := mkFrags("aaaa", "bbbb", "cccc", "dddd")
	codec, err := New(4, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	shards, err := EncodeFragments(frags, codec, 7)
	if err != nil {
		t.Fatalf("EncodeFragments: %v", err)
	}
	if len(shards) != 6 {
		t.Fatalf("expected 6 shards, got %d", len(shards))
	}

	r := NewReassembler(0, 0)
	var got []envelope.Envelope
	for _, s := range shards {
		out, err := r.Arrive(s)
		if err != nil {
			t.Fatalf("Arrive: %v", err)
		}
		if out != nil {
			got = out
		}
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 reconstructed fragments, got %d", len(got))
	}
	for i, want := range []string{"aaaa", "bbbb", "cccc", "dddd"} {
		if !bytes.Equal(got[i].Payload, []byte(want)) {
			t.Fatalf("fragment %d: got %q, want %q", i, got[i].Payload, want)
		}
		if got[i].Metadata.Fragment.Offset != uint32(i*4) {
			t.Fatalf("fragment %d: offset = %d, want %d", i, got[i].Metadata.Fragment.Offset, i*4)
		}
	}
}

func TestEncodeFragmentsRecoversFromErasures(t *testing.T) {
	frags := mkFrags("aaaa", "bbbb", "cccc", "dddd")
	codec, err := New(4, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	shards, err := EncodeFragments(frags, codec, 1)
	if err != nil {
		t.Fatalf("EncodeFragments: %v", err)
	}

	r := NewReassembler(0, 0)
	var got []envelope.Envelope
	// Drop shard 1 (data) and shard 4 (parity); still within m=2 budget.
	for i, s := range shards {
		if i == 1 || i == 4 {
			continue
		}
		out, err := r.Arrive(s)
		if err != nil {
			t.Fatalf("Arrive: %v", err)
		}
		if out != nil {
			got = out
		}
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 reconstructed fragments, got %d", len(got))
	}
	if !bytes.Equal(got[1].Payload, []byte("bbbb")) {
		t.Fatalf("recovered fragment 1 = %q, want %q", got[1].Payload, "bbbb")
	}
}

func TestReassemblerEvictsBlockOnTimeout(t *testing.T) {
	frags := mkFrags("aaaa", "bbbb", "cccc", "dddd")
	codec, err := New(4, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	shards, err := EncodeFragments(frags, codec, 9)
	if err != nil {
		t.Fatalf("EncodeFragments: %v", err)
	}

	now := time.Now()
	r := NewReassembler(time.Second, 0)
	r.SetClock(func() time.Time { return now })

	var evicted uint32
	var sawTimeout bool
	r.OnUnrecoverable = func(blockID uint32) { evicted = blockID; sawTimeout = true }

	// Only 2 of 5 shards ever arrive -- never enough to reconstruct.
	if _, err := r.Arrive(shards[0]); err != nil {
		t.Fatalf("Arrive: %v", err)
	}
	if _, err := r.Arrive(shards[4]); err != nil {
		t.Fatalf("Arrive: %v", err)
	}

	now = now.Add(2 * time.Second)
	if _, err := r.Arrive(shards[0]); err != nil {
		t.Fatalf("Arrive (trigger sweep): %v", err)
	}

	if !sawTimeout {
		t.Fatal("expected OnUnrecoverable to fire after the block timed out")
	}
	if evicted != 9 {
		t.Fatalf("evicted block id = %d, want 9", evicted)
	}
}

func TestEncodeFragmentsSingleFragmentMessage(t *testing.T) {
	frags := mkFrags("solo-payload")
	codec, err := New(1, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	shards, err := EncodeFragments(frags, codec, 3)
	if err != nil {
		t.Fatalf("EncodeFragments: %v", err)
	}
	if len(shards) != 2 {
		t.Fatalf("expected 2 shards (1 data + 1 parity), got %d", len(shards))
	}

	r := NewReassembler(0, 0)
	// Drop the sole data shard; the lone parity shard alone must recover it.
	out, err := r.Arrive(shards[1])
	if err != nil {
		t.Fatalf("Arrive: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 recovered fragment, got %d", len(out))
	}
	if !bytes.Equal(out[0].Payload, []byte("solo-payload")) {
		t.Fatalf("recovered payload = %q, want %q", out[0].Payload, "solo-payload")
	}
	if out[0].Metadata.Fragment.TotalFragments != 1 {
		t.Fatalf("TotalFragments = %d, want 1", out[0].Metadata.Fragment.TotalFragments)
	}
}
