package packet

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aria-sdk/telemetry/pkg/envelope"
)

func baseEnvelope(payload []byte) envelope.Envelope {
	return envelope.New("t/a", payload, envelope.P2, "robot-1", 1)
}

func TestNewPacketizerRejectsNonPositiveBudget(t *testing.T) {
	if _, err := NewPacketizer(100, DefaultHeaderReserve); err == nil {
		t.Fatal("expected error when mtu equals header reserve (zero budget)")
	}
	if _, err := NewPacketizer(64, DefaultHeaderReserve); err == nil {
		t.Fatal("expected error when mtu is below header reserve (negative budget)")
	}
}

func TestPacketizeIdentityWhenPayloadFits(t *testing.T) {
	p, err := NewPacketizer(200, DefaultHeaderReserve)
	if err != nil {
		t.Fatalf("NewPacketizer: %v", err)
	}
	env := baseEnvelope([]byte("small"))
	frags := p.Packetize(env)
	if len(frags) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(frags))
	}
	if frags[0].Metadata.Fragment != nil {
		t.Fatal("single-fragment message must not carry FragmentInfo")
	}
}

func TestPacketizeBoundaryExactFit(t *testing.T) {
	// mtu=64, header_reserve=50.
	p, err := NewPacketizer(64, 50)
	if err != nil {
		t.Fatalf("NewPacketizer: %v", err)
	}
	budget := 64 - 50

	exact := baseEnvelope(bytes.Repeat([]byte{0x41}, budget))
	if frags := p.Packetize(exact); len(frags) != 1 {
		t.Fatalf("exact-fit payload should produce 1 fragment, got %d", len(frags))
	}

	oneMore := baseEnvelope(bytes.Repeat([]byte{0x41}, budget+1))
	frags := p.Packetize(oneMore)
	if len(frags) != 2 {
		t.Fatalf("one byte over budget should produce 2 fragments, got %d", len(frags))
	}
}

func TestPacketizeTwoFragmentScenario(t *testing.T) {
	// mtu=64, header_reserve=50, payload=20B of 0x41.
	p, err := NewPacketizer(64, 50)
	if err != nil {
		t.Fatalf("NewPacketizer: %v", err)
	}
	env := baseEnvelope(bytes.Repeat([]byte{0x41}, 20))
	frags := p.Packetize(env)
	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(frags))
	}
	if len(frags[0].Payload) != 14 || len(frags[1].Payload) != 6 {
		t.Fatalf("expected fragment sizes 14/6, got %d/%d", len(frags[0].Payload), len(frags[1].Payload))
	}

	d := NewDefragmenter(DefaultReassemblyTimeout, 10)
	var out *envelope.Envelope
	for _, f := range frags {
		var err error
		out, err = d.Defragment(f)
		if err != nil {
			t.Fatalf("defragment: %v", err)
		}
	}
	if out == nil {
		t.Fatal("expected reassembled envelope after last fragment")
	}
	if len(out.Payload) != 20 || !bytes.Equal(out.Payload, env.Payload) {
		t.Fatalf("reassembled payload mismatch: got %d bytes", len(out.Payload))
	}
	if out.Metadata.Fragment != nil {
		t.Fatal("reassembled envelope must not carry FragmentInfo")
	}
}

func TestPacketizeDefragmentRoundTripLargePayload(t *testing.T) {
	p, err := NewPacketizer(512, DefaultHeaderReserve)
	if err != nil {
		t.Fatalf("NewPacketizer: %v", err)
	}
	payload := make([]byte, 10000)
	for i := range payload {
		payload[i] = byte(i % 256)
	}
	env := baseEnvelope(payload)
	frags := p.Packetize(env)
	if len(frags) < 2 {
		t.Fatalf("expected multiple fragments, got %d", len(frags))
	}

	d := NewDefragmenter(DefaultReassemblyTimeout, 10)
	var out *envelope.Envelope
	fed := map[int]bool{}
	feed := func(i int) {
		if fed[i] {
			return
		}
		fed[i] = true
		o, err := d.Defragment(frags[i])
		if err != nil {
			t.Fatalf("defragment %d: %v", i, err)
		}
		if o != nil {
			out = o
		}
	}
	feed(len(frags) - 1)
	for i := len(frags) - 2; i >= 0; i-- {
		feed(i)
	}
	if out == nil {
		t.Fatal("expected reassembled envelope")
	}
	if !bytes.Equal(out.Payload, payload) {
		t.Fatal("reassembled payload does not match original")
	}
}

func TestDefragmentPassesThroughNonFragment(t *testing.T) {
	d := NewDefragmenter(DefaultReassemblyTimeout, 10)
	env := baseEnvelope([]byte("whole"))
	out, err := d.Defragment(env)
	if err != nil {
		t.Fatalf("defragment: %v", err)
	}
	if out == nil || !bytes.Equal(out.Payload, env.Payload) {
		t.Fatal("non-fragment envelope should pass through unchanged")
	}
}

func TestDefragmentDuplicateFragmentIgnored(t *testing.T) {
	p := &Packetizer{payloadBudget: 14}
	env := baseEnvelope(bytes.Repeat([]byte{0x41}, 20))
	frags := p.Packetize(env)

	d := NewDefragmenter(DefaultReassemblyTimeout, 10)
	if _, err := d.Defragment(frags[0]); err != nil {
		t.Fatalf("defragment: %v", err)
	}
	if _, err := d.Defragment(frags[0]); err != nil {
		t.Fatalf("duplicate defragment: %v", err)
	}
	out, err := d.Defragment(frags[1])
	if err != nil {
		t.Fatalf("defragment: %v", err)
	}
	if out == nil || !bytes.Equal(out.Payload, env.Payload) {
		t.Fatal("expected full reassembly despite duplicate fragment delivery")
	}
}

func TestDefragmentDroppedMiddleFragmentTimesOut(t *testing.T) {
	p := &Packetizer{payloadBudget: 5}
	env := baseEnvelope(bytes.Repeat([]byte{0x41}, 20)) // 4 fragments
	frags := p.Packetize(env)

	cur := time.Unix(0, 0)
	d := NewDefragmenter(100*time.Millisecond, 10)
	d.SetClock(func() time.Time { return cur })

	var timedOutID uuid.UUID
	d.OnTimeout = func(id uuid.UUID) { timedOutID = id }

	if _, err := d.Defragment(frags[0]); err != nil {
		t.Fatalf("defragment: %v", err)
	}
	// drop frags[2] (middle fragment)
	if _, err := d.Defragment(frags[1]); err != nil {
		t.Fatalf("defragment: %v", err)
	}
	if _, err := d.Defragment(frags[3]); err != nil {
		t.Fatalf("defragment: %v", err)
	}

	cur = cur.Add(200 * time.Millisecond)
	out, err := d.Defragment(baseEnvelope([]byte("unblock-sweep")))
	if err != nil {
		t.Fatalf("defragment: %v", err)
	}
	if out == nil {
		t.Fatal("expected the unrelated non-fragment envelope to pass through")
	}

	if st := d.Stats(); st.IncompleteMessages != 0 {
		t.Fatalf("expected timed-out message to be evicted, stats=%+v", st)
	}
	if timedOutID != frags[0].Metadata.Fragment.MessageID {
		t.Fatalf("OnTimeout fired with wrong message id: %v", timedOutID)
	}
}

func TestDefragmentCapacityEviction(t *testing.T) {
	p := &Packetizer{payloadBudget: 5}
	d := NewDefragmenter(DefaultReassemblyTimeout, 1)

	first := p.Packetize(baseEnvelope(bytes.Repeat([]byte{0x41}, 20)))
	second := p.Packetize(baseEnvelope(bytes.Repeat([]byte{0x42}, 20)))

	if _, err := d.Defragment(first[0]); err != nil {
		t.Fatalf("defragment: %v", err)
	}
	if st := d.Stats(); st.IncompleteMessages != 1 {
		t.Fatalf("expected 1 in-flight message, got %d", st.IncompleteMessages)
	}

	// second message's first fragment forces eviction of `first`'s entry
	if _, err := d.Defragment(second[0]); err != nil {
		t.Fatalf("defragment: %v", err)
	}
	if st := d.Stats(); st.IncompleteMessages != 1 {
		t.Fatalf("expected capacity to stay at 1 after eviction, got %d", st.IncompleteMessages)
	}
}
