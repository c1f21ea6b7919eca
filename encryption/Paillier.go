package encryption

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/roasbeef/go-go-gadget-paillier"
)

var errNoKey = errors.New("paillier key not initialized")

// PaillierAdapter implements HomomorphicEncryptionScheme with Paillier.
type PaillierAdapter struct {
	keySize    int
	privateKey *paillier.PrivateKey
	publicKey  *paillier.PublicKey
}

func NewPaillierAdapter(keySize int) *PaillierAdapter {
	return &PaillierAdapter{keySize: keySize}
}

// Initialize generates a fresh key pair.
func (p *PaillierAdapter) Initialize() error {
	key, err := paillier.GenerateKey(rand.Reader, p.keySize)
	if err != nil {
		return fmt.Errorf("failed to generate Paillier key: %w", err)
	}
	p.privateKey = key
	p.publicKey = &key.PublicKey
	return nil
}

func (p *PaillierAdapter) Name() string {
	return fmt.Sprintf("Paillier-%d", p.keySize)
}

func (p *PaillierAdapter) KeySize() int {
	return p.keySize
}

func (p *PaillierAdapter) Encrypt(value *big.Int) ([]byte, error) {
	if p.publicKey == nil {
		return nil, errNoKey
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("cannot encrypt negative value %s", value)
	}
	return paillier.Encrypt(p.publicKey, value.Bytes())
}

func (p *PaillierAdapter) Decrypt(ciphertext []byte) (*big.Int, error) {
	if p.privateKey == nil {
		return nil, errNoKey
	}
	if len(ciphertext) == 0 {
		return nil, errors.New("ciphertext is empty")
	}

	plaintext, err := paillier.Decrypt(p.privateKey, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return new(big.Int).SetBytes(plaintext), nil
}

func (p *PaillierAdapter) Add(ciphertext1, ciphertext2 []byte) ([]byte, error) {
	if p.publicKey == nil {
		return nil, errNoKey
	}
	return paillier.AddCipher(p.publicKey, ciphertext1, ciphertext2), nil
}
