package crypto

import (
	"crypto/sha256"
	"errors"
	"strings"

	"meshcore/application"
)

// Kind identifies which cipher a CryptoSuite implements.
type Kind int

const (
	ChaCha20Poly1305 Kind = iota
	Aes256Gcm
	Xor
	Plain
)

func (k Kind) String() string {
	switch k {
	case ChaCha20Poly1305:
		return "chacha20poly1305"
	case Aes256Gcm:
		return "aes256gcm"
	case Xor:
		return "xor"
	case Plain:
		return "plain"
	default:
		return "unknown"
	}
}

var ErrUnknownAlgorithm = errors.New("crypto: unknown algorithm")

// FromConfig parses a "<alg>:<key>" configuration string, as accepted by
// the server's crypto_config field, into a CryptoSuite. alg is one of
// chacha20/chacha20poly1305, aes256/aes256gcm, xor, or absent (empty
// string before the colon, or no colon at all) for plain. The binary key
// is SHA-256(utf8(key)) for the AEADs and the raw key bytes for xor.
func FromConfig(config string) (application.CryptoSuite, error) {
	alg, key := splitConfig(config)

	switch alg {
	case "", "plain":
		return NewPlain(), nil
	case "chacha20", "chacha20poly1305":
		return NewChaCha20Poly1305(deriveKey(key))
	case "aes256", "aes256gcm":
		return NewAes256Gcm(deriveKey(key))
	case "xor":
		return NewXor([]byte(key)), nil
	default:
		return nil, ErrUnknownAlgorithm
	}
}

func splitConfig(config string) (alg, key string) {
	idx := strings.IndexByte(config, ':')
	if idx < 0 {
		return "", ""
	}
	return config[:idx], config[idx+1:]
}

func deriveKey(key string) []byte {
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}
