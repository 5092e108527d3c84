package crypto

// plainSuite is the identity transform: no encryption, no integrity.
type plainSuite struct{}

func NewPlain() *plainSuite {
	return &plainSuite{}
}

func (plainSuite) Encrypt(plaintext []byte) ([]byte, error) {
	return plaintext, nil
}

func (plainSuite) Decrypt(sealed []byte) ([]byte, error) {
	return sealed, nil
}
