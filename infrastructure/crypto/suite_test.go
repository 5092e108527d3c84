package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromConfig_Plain(t *testing.T) {
	suite, err := FromConfig("")
	require.NoError(t, err)

	sealed, err := suite.Encrypt([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), sealed)
}

func TestFromConfig_UnknownAlgorithm(t *testing.T) {
	_, err := FromConfig("rot13:k")
	require.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestFromConfig_AEADRoundTrip(t *testing.T) {
	for _, config := range []string{"chacha20:secret", "chacha20poly1305:secret", "aes256:secret", "aes256gcm:secret"} {
		t.Run(config, func(t *testing.T) {
			suite, err := FromConfig(config)
			require.NoError(t, err)

			plaintext := []byte("the quick brown fox jumps over the lazy dog")
			sealed, err := suite.Encrypt(plaintext)
			require.NoError(t, err)
			require.NotEqual(t, plaintext, sealed)

			got, err := suite.Decrypt(sealed)
			require.NoError(t, err)
			require.Equal(t, plaintext, got)
		})
	}
}

func TestAEAD_EncryptProducesFreshNoncePerCall(t *testing.T) {
	suite, err := FromConfig("chacha20:secret")
	require.NoError(t, err)

	a, err := suite.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)
	b, err := suite.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)

	require.NotEqual(t, a, b, "expected distinct ciphertexts from distinct random nonces")
}

func TestAEAD_DecryptFailsOnTamperedCiphertext(t *testing.T) {
	suite, err := FromConfig("chacha20:secret")
	require.NoError(t, err)

	sealed, err := suite.Encrypt([]byte("payload"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF

	_, err = suite.Decrypt(sealed)
	require.Error(t, err)
}

func TestXor_RoundTrip(t *testing.T) {
	suite, err := FromConfig("xor:k3y")
	require.NoError(t, err)

	plaintext := []byte("xor is not an AEAD")
	sealed, err := suite.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, sealed)

	got, err := suite.Decrypt(sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestXor_EmptyKey(t *testing.T) {
	suite := NewXor(nil)
	_, err := suite.Encrypt([]byte("x"))
	require.ErrorIs(t, err, ErrEmptyKey)
}
