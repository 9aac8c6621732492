package delta

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestSimpleFirstFrameIsFull(t *testing.T) {
	c := NewSimple()
	data := []byte("abcdefgh")
	out, isDelta := c.Encode(data)
	if isDelta {
		t.Fatal("first frame must not be a delta")
	}
	if !bytes.Equal(out, data) {
		t.Fatal("first frame must equal input")
	}
}

func TestSimpleRoundTripStream(t *testing.T) {
	enc := NewSimple()
	dec := NewSimple()

	frames := [][]byte{
		[]byte("AAAAAAAA"),
		[]byte("AAAAAAAB"),
		[]byte("BBBBBBBB"),
		[]byte("BBBBBBBC"),
	}

	for _, f := range frames {
		encoded, isDelta := enc.Encode(f)
		decoded, err := dec.Decode(encoded, isDelta)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !bytes.Equal(decoded, f) {
			t.Fatalf("got %q, want %q", decoded, f)
		}
	}
}

func TestSimpleSizeChangeForcesFullFrame(t *testing.T) {
	c := NewSimple()
	c.Encode([]byte("abcd"))
	out, isDelta := c.Encode([]byte("abcdef"))
	if isDelta {
		t.Fatal("size change must force a full frame")
	}
	if !bytes.Equal(out, []byte("abcdef")) {
		t.Fatal("full frame must equal input")
	}
}

func TestResetForcesFullFrame(t *testing.T) {
	c := NewSimple()
	c.Encode([]byte("abcd"))
	c.Reset()
	out, isDelta := c.Encode([]byte("abcd"))
	if isDelta {
		t.Fatal("frame right after Reset must not be a delta")
	}
	if !bytes.Equal(out, []byte("abcd")) {
		t.Fatal("full frame must equal input")
	}
}

func TestDecodeWithoutReferenceFails(t *testing.T) {
	c := NewSimple()
	if _, err := c.Decode([]byte("abcd"), true); err == nil {
		t.Fatal("expected error decoding a delta with no reference")
	}
}

func TestAdaptiveFallsBackWhenTooDifferent(t *testing.T) {
	c := NewAdaptive(0.5)
	c.Encode(bytes.Repeat([]byte{0x00}, 64))
	_, isDelta := c.Encode(bytes.Repeat([]byte{0xFF}, 64))
	if isDelta {
		t.Fatal("fully different frame should exceed threshold and send a full frame")
	}
}

func TestAdaptiveUsesDeltaWhenSimilar(t *testing.T) {
	c := NewAdaptive(0.9)
	base := make([]byte, 256)
	rand.New(rand.NewSource(1)).Read(base)
	c.Encode(base)

	similar := append([]byte(nil), base...)
	similar[0] ^= 0x01 // one byte differs out of 256

	_, isDelta := c.Encode(similar)
	if !isDelta {
		t.Fatal("nearly identical frame should be sent as a delta")
	}
}

func TestAdaptiveRoundTrip(t *testing.T) {
	enc := NewAdaptive(0.9)
	dec := NewAdaptive(0.9)

	r := rand.New(rand.NewSource(2))
	prev := make([]byte, 128)
	r.Read(prev)

	for i := 0; i < 10; i++ {
		frame := append([]byte(nil), prev...)
		// flip a handful of bytes to keep it under threshold most rounds
		for j := 0; j < 3; j++ {
			frame[r.Intn(len(frame))] ^= byte(r.Intn(256))
		}
		encoded, isDelta := enc.Encode(frame)
		decoded, err := dec.Decode(encoded, isDelta)
		if err != nil {
			t.Fatalf("round %d decode: %v", i, err)
		}
		if !bytes.Equal(decoded, frame) {
			t.Fatalf("round %d mismatch", i)
		}
		prev = frame
	}
}
