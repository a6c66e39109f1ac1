package framer

import (
	"bytes"
	"io"
	"testing"
)

func TestVarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 129, 16383, 16384, 1 << 20, 1<<32 - 1, 1 << 40}
	for _, v := range cases {
		enc := EncodeVarint(v)
		got, n, ok := DecodeVarint(enc)
		if !ok {
			t.Fatalf("DecodeVarint(%v): not ok", enc)
		}
		if got != v || n != len(enc) {
			t.Fatalf("round trip %d: got=%d n=%d want n=%d", v, got, n, len(enc))
		}
	}
}

func TestVarintZeroIsSingleByte(t *testing.T) {
	enc := EncodeVarint(0)
	if len(enc) != 1 || enc[0] != 0x00 {
		t.Fatalf("EncodeVarint(0) = %v, want [0x00]", enc)
	}
}

func TestDecodeVarintShortBuffer(t *testing.T) {
	// A continuation byte with nothing following is an incomplete varint.
	if _, _, ok := DecodeVarint([]byte{0x80}); ok {
		t.Fatalf("DecodeVarint should report incomplete input")
	}
}

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	enc := NewEncoder()
	messages := [][]byte{
		[]byte(""),
		[]byte("hello"),
		bytes.Repeat([]byte{0x41}, 300), // forces a multi-byte varint length
	}

	var wire bytes.Buffer
	for _, m := range messages {
		b, err := enc.Encode(m)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		wire.Write(b)
	}

	dec := NewDecoder(&wire)
	for i, want := range messages {
		f, err := dec.Next()
		if err != nil {
			t.Fatalf("Next[%d]: %v", i, err)
		}
		if !bytes.Equal(f.Payload, want) {
			t.Fatalf("Next[%d] = %q, want %q", i, f.Payload, want)
		}
	}

	if _, err := dec.Next(); err != io.EOF {
		t.Fatalf("final Next: err=%v, want io.EOF", err)
	}
}

func TestDecodeLeavesTrailingBytesForNextFrame(t *testing.T) {
	enc := NewEncoder()
	a, _ := enc.Encode([]byte("a"))
	b, _ := enc.Encode([]byte("bb"))

	r := bytes.NewReader(append(append([]byte{}, a...), b...))
	dec := NewDecoder(r, WithMinFill(4))

	f1, err := dec.Next()
	if err != nil || string(f1.Payload) != "a" {
		t.Fatalf("first frame = %q, err=%v", f1.Payload, err)
	}
	f2, err := dec.Next()
	if err != nil || string(f2.Payload) != "bb" {
		t.Fatalf("second frame = %q, err=%v", f2.Payload, err)
	}
}

func TestDecodeTruncatedMidFrame(t *testing.T) {
	enc := NewEncoder()
	full, _ := enc.Encode(bytes.Repeat([]byte{'x'}, 32))
	truncated := full[:len(full)-22] // varint header intact, payload cut short

	dec := NewDecoder(bytes.NewReader(truncated))
	_, err := dec.Next()
	if err != io.ErrUnexpectedEOF {
		t.Fatalf("err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestReadLimitRejectsOversizedFrame(t *testing.T) {
	enc := NewEncoder()
	frame, _ := enc.Encode(bytes.Repeat([]byte{'x'}, 100))

	dec := NewDecoder(bytes.NewReader(frame), WithReadLimit(10))
	if _, err := dec.Next(); err != ErrTooLong {
		t.Fatalf("err = %v, want ErrTooLong", err)
	}
}

func TestLegacyModeTransientFlag(t *testing.T) {
	enc := NewEncoder(WithMode(ModeLegacy))
	normal, err := enc.Encode([]byte("seq"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	transient, err := enc.EncodeTransient([]byte("noseq"))
	if err != nil {
		t.Fatalf("EncodeTransient: %v", err)
	}

	var wire bytes.Buffer
	wire.Write(normal)
	wire.Write(transient)

	dec := NewDecoder(&wire, WithMode(ModeLegacy))
	f1, err := dec.Next()
	if err != nil || f1.Transient || string(f1.Payload) != "seq" {
		t.Fatalf("f1 = %+v, err=%v", f1, err)
	}
	f2, err := dec.Next()
	if err != nil || !f2.Transient || string(f2.Payload) != "noseq" {
		t.Fatalf("f2 = %+v, err=%v", f2, err)
	}
}

func TestEncodeTransientRejectedInVarintMode(t *testing.T) {
	enc := NewEncoder()
	if _, err := enc.EncodeTransient([]byte("x")); err != ErrTransientUnsupported {
		t.Fatalf("err = %v, want ErrTransientUnsupported", err)
	}
}

func TestDecodeRejectsLengthOverflowingInt64(t *testing.T) {
	// A 10-byte varint whose value exceeds math.MaxInt64.
	header := EncodeVarint(1<<64 - 1)
	dec := NewDecoder(bytes.NewReader(header))
	if _, err := dec.Next(); err != ErrInvalidArgument {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}
