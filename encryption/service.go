package encryption

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/sha3"

	"election-ledger/models"
)

var (
	ErrMissingSignature = errors.New("transaction is not signed")
	ErrSenderMismatch   = errors.New("signature does not match sender")
)

type CryptoService struct{}

func NewCryptoService() *CryptoService {
	return &CryptoService{}
}

// GenerateKeyPair generates a new secp256k1 key pair
func (cs *CryptoService) GenerateKeyPair() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// Address returns the account address controlled by key
func (cs *CryptoService) Address(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// Keccak256 computes Keccak-256 hash
func (cs *CryptoService) Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// TransactionHash is the digest a sender signs: Keccak-256 over the RLP list
// (method, args, nonce, from). ID and Signature are not covered.
func (cs *CryptoService) TransactionHash(tx *models.Transaction) ([]byte, error) {
	enc, err := rlp.EncodeToBytes([]interface{}{
		tx.Method,
		[]byte(tx.Args),
		tx.Nonce,
		tx.From,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	return cs.Keccak256(enc), nil
}

// SignTransaction sets From to the key's address and fills in Signature.
func (cs *CryptoService) SignTransaction(tx *models.Transaction, key *ecdsa.PrivateKey) error {
	tx.From = cs.Address(key)
	hash, err := cs.TransactionHash(tx)
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	tx.Signature = sig
	return nil
}

// RecoverSender recovers the signer of tx and checks it against tx.From.
func (cs *CryptoService) RecoverSender(tx *models.Transaction) (common.Address, error) {
	if len(tx.Signature) != crypto.SignatureLength {
		return common.Address{}, ErrMissingSignature
	}
	hash, err := cs.TransactionHash(tx)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(hash, tx.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature: %w", err)
	}
	sender := crypto.PubkeyToAddress(*pub)
	if sender != tx.From {
		return common.Address{}, ErrSenderMismatch
	}
	return sender, nil
}

// KeyCredentials is the on-disk form of a signing key.
type KeyCredentials struct {
	Address    string `json:"address"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

func (cs *CryptoService) Credentials(key *ecdsa.PrivateKey) KeyCredentials {
	return KeyCredentials{
		Address:    cs.Address(key).Hex(),
		PublicKey:  hexutil.Encode(crypto.FromECDSAPub(&key.PublicKey)),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
	}
}

// ParsePrivateKey accepts a hex private key with or without the 0x prefix.
func ParsePrivateKey(keyStr string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(keyStr), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}
