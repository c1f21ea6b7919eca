package encryption

import "math/big"

// HomomorphicEncryptionScheme is an additively homomorphic cipher used to
// keep a sealed copy of the tally.
type HomomorphicEncryptionScheme interface {
	Name() string
	KeySize() int

	Encrypt(value *big.Int) ([]byte, error)
	Decrypt(ciphertext []byte) (*big.Int, error)
	// Add returns a ciphertext of the sum of the two plaintexts.
	Add(ciphertext1, ciphertext2 []byte) ([]byte, error)
}
