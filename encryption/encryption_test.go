package encryption

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"election-ledger/models"
)

func signedTx(t *testing.T, cs *CryptoService) *models.Transaction {
	t.Helper()
	key, err := cs.GenerateKeyPair()
	require.NoError(t, err)

	tx := &models.Transaction{
		ID:     "tx-1",
		Method: models.MethodVote,
		Args:   json.RawMessage(`{"proposalId":1}`),
		Nonce:  3,
	}
	require.NoError(t, cs.SignTransaction(tx, key))
	require.Equal(t, cs.Address(key), tx.From)
	return tx
}

func TestRecoverSender(t *testing.T) {
	cs := NewCryptoService()
	tx := signedTx(t, cs)

	sender, err := cs.RecoverSender(tx)
	require.NoError(t, err)
	require.Equal(t, tx.From, sender)

	// The id is not part of the signed payload.
	tx.ID = "tx-2"
	_, err = cs.RecoverSender(tx)
	require.NoError(t, err)
}

func TestRecoverSenderRejectsTampering(t *testing.T) {
	cs := NewCryptoService()

	tx := signedTx(t, cs)
	tx.Nonce++
	_, err := cs.RecoverSender(tx)
	require.Error(t, err)

	tx = signedTx(t, cs)
	tx.Args = json.RawMessage(`{"proposalId":2}`)
	_, err = cs.RecoverSender(tx)
	require.Error(t, err)

	tx = signedTx(t, cs)
	other, err := cs.GenerateKeyPair()
	require.NoError(t, err)
	tx.From = cs.Address(other)
	_, err = cs.RecoverSender(tx)
	require.ErrorIs(t, err, ErrSenderMismatch)

	tx.Signature = nil
	_, err = cs.RecoverSender(tx)
	require.ErrorIs(t, err, ErrMissingSignature)
}

func TestCredentialsRoundTrip(t *testing.T) {
	cs := NewCryptoService()
	key, err := cs.GenerateKeyPair()
	require.NoError(t, err)

	creds := cs.Credentials(key)
	parsed, err := ParsePrivateKey(creds.PrivateKey)
	require.NoError(t, err)
	require.Equal(t, cs.Address(key), cs.Address(parsed))
	require.Equal(t, cs.Address(key).Hex(), creds.Address)

	_, err = ParsePrivateKey("0xnothex")
	require.Error(t, err)
}

func TestPaillierAddition(t *testing.T) {
	p := NewPaillierAdapter(512)
	require.NoError(t, p.Initialize())
	require.Equal(t, "Paillier-512", p.Name())

	a, err := p.Encrypt(big.NewInt(5))
	require.NoError(t, err)
	b, err := p.Encrypt(big.NewInt(37))
	require.NoError(t, err)
	zero, err := p.Encrypt(big.NewInt(0))
	require.NoError(t, err)

	sum, err := p.Add(a, b)
	require.NoError(t, err)
	sum, err = p.Add(sum, zero)
	require.NoError(t, err)

	plain, err := p.Decrypt(sum)
	require.NoError(t, err)
	require.Equal(t, int64(42), plain.Int64())
}

func TestPaillierRequiresKey(t *testing.T) {
	p := NewPaillierAdapter(512)
	_, err := p.Encrypt(big.NewInt(1))
	require.Error(t, err)
	_, err = p.Decrypt([]byte{1})
	require.Error(t, err)
}
