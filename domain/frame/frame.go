package frame

import "encoding/binary"

// Frame is the parsed form of a meshcore wire frame: an 8-byte header
// (magic, version, kind, payload length) plus an opaque payload. For
// Handshake/HandshakeReply/KeepAlive/ProbeIPv6/ProbeHolePunch frames the
// payload is JSON; for Data frames it is a raw IP packet. Encryption, where
// the CryptoSuite requires it, is applied to the payload by the codec layer,
// not by Frame itself.
//
// Frame is NOT safe for concurrent use: MarshalBinary reuses an internal
// buffer that is invalidated by the next MarshalBinary call, and
// UnmarshalBinary aliases Payload into the input slice (zero-copy).
type Frame struct {
	Version Version
	Kind    Kind
	Payload []byte

	marshalBuf []byte
}

func New(kind Kind, payload []byte) (*Frame, error) {
	f := &Frame{Version: V1, Kind: kind, Payload: payload}
	return f, f.Validate()
}

func (f *Frame) Validate() error {
	if !f.Version.IsValid() {
		return ErrBadVersion
	}
	if !f.Kind.IsValid() {
		return ErrBadKind
	}
	if len(f.Payload) > MaxPayload {
		return ErrPayloadTooLarge
	}
	return nil
}

// MarshalBinary encodes the frame into a reused internal buffer. The
// returned slice is only valid until the next call to MarshalBinary.
func (f *Frame) MarshalBinary() ([]byte, error) {
	if f.Version == 0 {
		f.Version = V1
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	total := HeaderSize + len(f.Payload)
	if cap(f.marshalBuf) < total {
		f.marshalBuf = make([]byte, 0, total)
	}
	buf := f.marshalBuf[:total]

	binary.BigEndian.PutUint32(buf[0:4], Magic)
	buf[4] = byte(f.Version)
	buf[5] = byte(f.Kind)
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(f.Payload)))
	copy(buf[HeaderSize:], f.Payload)

	f.marshalBuf = buf
	return buf, nil
}

// UnmarshalBinary decodes a frame from data. Payload aliases data (zero-copy);
// callers that need to retain it across the next read must copy it out.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return ErrTooShort
	}
	if binary.BigEndian.Uint32(data[0:4]) != Magic {
		return ErrBadMagic
	}
	version := Version(data[4])
	kind := Kind(data[5])
	payloadLen := binary.BigEndian.Uint16(data[6:8])

	if !version.IsValid() {
		return ErrBadVersion
	}
	if !kind.IsValid() {
		return ErrBadKind
	}
	if len(data) < HeaderSize+int(payloadLen) {
		return ErrPayloadTruncated
	}

	f.Version = version
	f.Kind = kind
	f.Payload = data[HeaderSize : HeaderSize+int(payloadLen)]
	return nil
}
