// Package codec serializes and parses framed messages and applies AEAD
// encryption, serving both the TCP control channel and the UDP P2P
// channel with the same logic: the codec is transport-agnostic, since
// UDP datagrams are self-delimiting but still carry the full 8-byte
// header.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"meshcore/application"
	"meshcore/domain/frame"
)

// EncodeJSON serializes v as JSON, encrypts it with suite, and frames it as
// kind. Used for every control frame kind.
func EncodeJSON(kind frame.Kind, v any, suite application.CryptoSuite) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
	}
	return Encode(kind, payload, suite)
}

// Encode encrypts payload with suite and wraps it in an 8-byte framed
// message of the given kind. Used directly for Data frames, whose payload
// is the raw IP packet rather than JSON.
func Encode(kind frame.Kind, payload []byte, suite application.CryptoSuite) ([]byte, error) {
	sealed, err := suite.Encrypt(payload)
	if err != nil {
		return nil, err
	}
	f, err := frame.New(kind, sealed)
	if err != nil {
		return nil, err
	}
	wire, err := f.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(wire))
	copy(out, wire)
	return out, nil
}

// Decode is a streaming parser over buf, which may hold a partial frame.
// On success it returns the frame's kind, the decrypted plaintext payload,
// and the number of bytes consumed from buf; the caller advances its
// buffer by consumed. ErrTooShort means "not a parse failure, just not
// enough bytes yet" and is retryable once more data arrives; any other
// error is fatal to the containing session.
func Decode(buf []byte, suite application.CryptoSuite) (kind frame.Kind, plaintext []byte, consumed int, err error) {
	var f frame.Frame
	if err := f.UnmarshalBinary(buf); err != nil {
		if errors.Is(err, frame.ErrTooShort) || errors.Is(err, frame.ErrPayloadTruncated) {
			return 0, nil, 0, ErrTooShort
		}
		return 0, nil, 0, err
	}

	plaintext, derr := suite.Decrypt(f.Payload)
	if derr != nil {
		return 0, nil, 0, fmt.Errorf("%w: %v", ErrDecryptionFailed, derr)
	}
	return f.Kind, plaintext, frame.HeaderSize + len(f.Payload), nil
}

// DecodeJSON decodes a control frame and unmarshals its plaintext payload
// into v.
func DecodeJSON(buf []byte, suite application.CryptoSuite, v any) (kind frame.Kind, consumed int, err error) {
	kind, plaintext, consumed, err := Decode(buf, suite)
	if err != nil {
		return 0, 0, err
	}
	if jerr := json.Unmarshal(plaintext, v); jerr != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrDeserializationFailed, jerr)
	}
	return kind, consumed, nil
}
