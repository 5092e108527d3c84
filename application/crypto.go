package application

// CryptoSuite is the injected cipher used by the frame codec. It has no
// mutable state; the same instance is shared, read-only, by the control
// session and the P2P service.
type CryptoSuite interface {
	// Encrypt returns the sealed form of plaintext. For the AEAD suites
	// this is nonce||ciphertext||tag; Xor and Plain return a transformed
	// buffer of the same length as the input.
	Encrypt(plaintext []byte) ([]byte, error)
	// Decrypt reverses Encrypt. Tag/verification failure is always fatal.
	Decrypt(sealed []byte) ([]byte, error)
}

// ReplaySafe is optionally implemented by a CryptoSuite whose sealed output
// differs between calls even for identical plaintext (the AEAD suites'
// random nonce). Consumers that dedupe sealed bytes to guard against replay
// (the P2P service's per-peer replay guard) must only do so for suites that
// implement this and return true: Xor and Plain encrypt deterministically,
// so deduping their output would reject a legitimately repeated datagram
// (e.g. a retransmitted IP packet, or a routine periodic probe) as a replay.
type ReplaySafe interface {
	RandomizesOutput() bool
}
