package codec

import "errors"

var (
	// ErrTooShort is non-fatal: the caller should keep reading and retry
	// decode once more bytes arrive.
	ErrTooShort = errors.New("codec: frame incomplete")

	// ErrDecryptionFailed wraps an AEAD open failure; always fatal to the
	// containing session.
	ErrDecryptionFailed = errors.New("codec: decryption failed")

	// ErrDeserializationFailed wraps a JSON unmarshal failure on a control
	// frame payload; always fatal to the containing session. EncodeJSON
	// also wraps a JSON marshal failure in it.
	ErrDeserializationFailed = errors.New("codec: deserialization failed")
)
