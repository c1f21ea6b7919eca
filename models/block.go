package models

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Block is one entry of the election ledger. Data holds either the genesis
// record (index 0) or the receipt of exactly one committed transaction.
type Block struct {
	Index      uint64        `json:"index"`
	Timestamp  int64         `json:"timestamp"`
	Data       []byte        `json:"data"`
	PrevHash   hexutil.Bytes `json:"prev_hash"`
	Hash       hexutil.Bytes `json:"hash"`
	Nonce      uint64        `json:"nonce"`
	Difficulty uint8         `json:"difficulty"` // Number of leading zero bytes required
}

func NewBlock(index uint64, timestamp int64, data []byte, prevHash []byte, difficulty uint8) *Block {
	block := &Block{
		Index:      index,
		Timestamp:  timestamp,
		Data:       data,
		PrevHash:   prevHash,
		Difficulty: difficulty,
	}

	block.Mine()
	return block
}

func (b *Block) Mine() {
	target := make([]byte, b.Difficulty)
	var nonce uint64
	for {
		b.Nonce = nonce
		b.Hash = b.calculateHash()

		if bytes.HasPrefix(b.Hash, target) {
			return
		}

		nonce++
		if nonce%1000 == 0 {
			time.Sleep(time.Microsecond) // Prevent CPU hogging
		}
	}
}

func (b *Block) calculateHash() []byte {
	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.BigEndian, b.Index)
	binary.Write(buffer, binary.BigEndian, b.Timestamp)
	buffer.Write(b.Data)
	buffer.Write(b.PrevHash)
	binary.Write(buffer, binary.BigEndian, b.Nonce)

	return crypto.Keccak256(buffer.Bytes())
}

func (b *Block) Validate() bool {
	calculatedHash := b.calculateHash()
	if !bytes.Equal(calculatedHash, b.Hash) {
		return false
	}

	target := make([]byte, b.Difficulty)
	return bytes.HasPrefix(calculatedHash, target)
}

// ValidateChain checks hashes, proof of work, links, indices and timestamp
// ordering. Several transactions may commit within the same second, so equal
// timestamps are accepted.
func ValidateChain(blocks []*Block) error {
	if len(blocks) == 0 {
		return nil
	}

	if blocks[0].Index != 0 {
		return fmt.Errorf("genesis block has index %d", blocks[0].Index)
	}
	if !blocks[0].Validate() {
		return fmt.Errorf("genesis block has invalid hash %x", blocks[0].Hash)
	}

	for i := 1; i < len(blocks); i++ {
		current := blocks[i]
		previous := blocks[i-1]

		if !current.Validate() {
			return fmt.Errorf("block %d has invalid hash", i)
		}
		if !bytes.Equal(current.PrevHash, previous.Hash) {
			return fmt.Errorf("block %d has invalid previous hash link", i)
		}
		if current.Index != previous.Index+1 {
			return fmt.Errorf("block %d has invalid index %d", i, current.Index)
		}
		if current.Timestamp < previous.Timestamp {
			return fmt.Errorf("block %d has timestamp %d before its parent's %d", i, current.Timestamp, previous.Timestamp)
		}
	}

	return nil
}
