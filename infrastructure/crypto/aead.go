package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrSealedTooShort = errors.New("crypto: sealed payload shorter than nonce")

// aeadSuite wraps a cipher.AEAD with the combined nonce||ciphertext||tag
// encoding used for both ChaCha20Poly1305 and AES-256-GCM. A fresh random
// nonce is generated per Encrypt call; there is no implicit global nonce
// counter, matching the "no implicit global state" design note.
type aeadSuite struct {
	aead cipher.AEAD
}

// RandomizesOutput implements application.ReplaySafe: a fresh random nonce
// is prepended on every Encrypt call, so sealed output for identical
// plaintext differs call to call.
func (s *aeadSuite) RandomizesOutput() bool { return true }

func NewChaCha20Poly1305(key []byte) (*aeadSuite, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &aeadSuite{aead: aead}, nil
}

func NewAes256Gcm(key []byte) (*aeadSuite, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &aeadSuite{aead: aead}, nil
}

func (s *aeadSuite) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return sealed, nil
}

func (s *aeadSuite) Decrypt(sealed []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, ErrSealedTooShort
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	return s.aead.Open(nil, nonce, ciphertext, nil)
}
