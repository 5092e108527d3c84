package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func makePayload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i)
	}
	return p
}

func wireFrom(v Version, k Kind, payload []byte) []byte {
	b := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(b[0:4], Magic)
	b[4] = byte(v)
	b[5] = byte(k)
	binary.BigEndian.PutUint16(b[6:8], uint16(len(payload)))
	copy(b[HeaderSize:], payload)
	return b
}

func TestNew_OK(t *testing.T) {
	payload := makePayload(8)
	f, err := New(Data, payload)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if f.Version != V1 || f.Kind != Data || !bytes.Equal(f.Payload, payload) {
		t.Fatalf("unexpected frame fields: %+v", f)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(Kind(99), []byte{1}); !errors.Is(err, ErrBadKind) {
		t.Fatalf("expected ErrBadKind, got %v", err)
	}
	tooBig := makePayload(MaxPayload + 1)
	if _, err := New(Data, tooBig); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestMarshalUnmarshal_RoundTrip(t *testing.T) {
	for _, kind := range []Kind{Handshake, KeepAlive, Data, HandshakeReply, ProbeIPv6, ProbeHolePunch} {
		payload := makePayload(32)
		f, err := New(kind, payload)
		if err != nil {
			t.Fatalf("New(%v): %v", kind, err)
		}
		wire, err := f.MarshalBinary()
		if err != nil {
			t.Fatalf("MarshalBinary: %v", err)
		}

		var got Frame
		if err := got.UnmarshalBinary(wire); err != nil {
			t.Fatalf("UnmarshalBinary: %v", err)
		}
		if got.Version != V1 || got.Kind != kind {
			t.Fatalf("header mismatch for kind %v: %+v", kind, got)
		}
		if !bytes.Equal(got.Payload, payload) {
			t.Fatalf("payload mismatch for kind %v", kind)
		}
	}
}

func TestUnmarshalBinary_ErrTooShort(t *testing.T) {
	var f Frame
	if err := f.UnmarshalBinary([]byte{0, 1, 2}); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestUnmarshalBinary_ErrBadMagic(t *testing.T) {
	data := wireFrom(V1, Data, makePayload(1))
	data[0] ^= 0xFF
	var f Frame
	if err := f.UnmarshalBinary(data); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestUnmarshalBinary_ErrBadVersion(t *testing.T) {
	data := wireFrom(Version(2), Data, makePayload(1))
	var f Frame
	if err := f.UnmarshalBinary(data); !errors.Is(err, ErrBadVersion) {
		t.Fatalf("expected ErrBadVersion, got %v", err)
	}
}

func TestUnmarshalBinary_ErrBadKind(t *testing.T) {
	data := wireFrom(V1, Kind(200), makePayload(1))
	var f Frame
	if err := f.UnmarshalBinary(data); !errors.Is(err, ErrBadKind) {
		t.Fatalf("expected ErrBadKind, got %v", err)
	}
}

func TestUnmarshalBinary_ErrPayloadTruncated(t *testing.T) {
	data := wireFrom(V1, Data, makePayload(8))
	data = data[:len(data)-3]
	var f Frame
	if err := f.UnmarshalBinary(data); !errors.Is(err, ErrPayloadTruncated) {
		t.Fatalf("expected ErrPayloadTruncated, got %v", err)
	}
}

func TestUnmarshalBinary_ZeroCopyBehaviour(t *testing.T) {
	payload := makePayload(4)
	data := wireFrom(V1, Data, payload)

	var f Frame
	if err := f.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	data[HeaderSize] ^= 0xFF
	if f.Payload[0] != (payload[0] ^ 0xFF) {
		t.Fatalf("expected zero-copy payload to reflect mutation of input buffer")
	}
}

func TestUnmarshalBinary_EmptyPayload(t *testing.T) {
	wire := wireFrom(V1, KeepAlive, nil)
	var f Frame
	if err := f.UnmarshalBinary(wire); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if len(f.Payload) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(f.Payload))
	}
}

func TestMarshalBinary_HeaderLayout(t *testing.T) {
	f, err := New(HandshakeReply, []byte{1, 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if binary.BigEndian.Uint32(data[0:4]) != Magic {
		t.Fatalf("bad magic bytes: %v", data[:4])
	}
	if Version(data[4]) != V1 {
		t.Fatalf("bad version byte")
	}
	if Kind(data[5]) != HandshakeReply {
		t.Fatalf("bad kind byte")
	}
	if got := binary.BigEndian.Uint16(data[6:8]); got != 2 {
		t.Fatalf("bad payload len: %d", got)
	}
	if !bytes.Equal(data[HeaderSize:], []byte{1, 2}) {
		t.Fatalf("bad payload content")
	}
}

func TestMarshalBinary_BufferReuseAndInvalidation(t *testing.T) {
	f, err := New(Data, []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	buf1, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary(1): %v", err)
	}
	p1 := &buf1[0]

	f.Payload = []byte{9, 8}
	buf2, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary(2): %v", err)
	}
	p2 := &buf2[0]

	if p1 != p2 {
		t.Fatalf("expected internal buffer reuse between MarshalBinary calls")
	}

	var got Frame
	if err := got.UnmarshalBinary(buf1); err != nil {
		t.Fatalf("UnmarshalBinary(buf1): %v", err)
	}
	if !bytes.Equal(got.Payload, []byte{9, 8}) {
		t.Fatalf("expected buf1 to be invalidated and reflect new payload, got %v", got.Payload)
	}
}

func TestMarshalBinary_ReallocateWhenCapTooSmall(t *testing.T) {
	f, err := New(Data, makePayload(4))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.marshalBuf = make([]byte, 0, 1)
	data, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	wantTotal := HeaderSize + 4
	if cap(f.marshalBuf) < wantTotal {
		t.Fatalf("expected reallocated cap >= %d, got %d", wantTotal, cap(f.marshalBuf))
	}
	if len(data) != wantTotal {
		t.Fatalf("unexpected data length: got %d, want %d", len(data), wantTotal)
	}
}

func BenchmarkMarshalBinary_Small(b *testing.B) {
	f, _ := New(Data, makePayload(32))
	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		_, _ = f.MarshalBinary()
	}
}

func BenchmarkUnmarshalBinary_Small(b *testing.B) {
	wire := wireFrom(V1, Data, makePayload(32))
	var f Frame
	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		_ = f.UnmarshalBinary(wire)
	}
}
