// Package ledger is the append-only, hash-linked log of committed election
// transactions. Block 0 carries the deployment's genesis record and every
// later block carries exactly one transaction receipt.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"election-ledger/logging"
	"election-ledger/models"
	"election-ledger/storage"
)

var (
	ErrBlockNotFound   = errors.New("block not found")
	ErrTimestampBehind = errors.New("block timestamp before the chain head")
)

type Ledger struct {
	mu         sync.RWMutex
	store      storage.BlockStore
	blocks     []*models.Block
	genesis    models.Genesis
	difficulty uint8
	log        logging.Logger
}

// Open loads the chain from store and validates it. An empty store is
// initialized with a genesis block built from genesis; otherwise genesis is
// ignored and the stored record is used.
func Open(store storage.BlockStore, genesis models.Genesis, difficulty uint8, log logging.Logger) (*Ledger, error) {
	blocks, err := store.LoadChain()
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	l := &Ledger{
		store:      store,
		blocks:     blocks,
		difficulty: difficulty,
		log:        log,
	}

	if len(blocks) == 0 {
		data, err := json.Marshal(genesis)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal genesis: %w", err)
		}
		block := models.NewBlock(0, int64(genesis.DeployedAt), data, make([]byte, 32), difficulty)
		if err := store.SaveBlock(block); err != nil {
			return nil, fmt.Errorf("failed to save genesis block: %w", err)
		}
		l.blocks = []*models.Block{block}
		l.genesis = genesis
		log.Infof("Created genesis block %s", block.Hash)
		return l, nil
	}

	if err := models.ValidateChain(blocks); err != nil {
		return nil, fmt.Errorf("stored ledger is invalid: %w", err)
	}
	if err := json.Unmarshal(blocks[0].Data, &l.genesis); err != nil {
		return nil, fmt.Errorf("failed to decode genesis block: %w", err)
	}
	log.Infof("Loaded ledger with %d blocks", len(blocks))
	return l, nil
}

func (l *Ledger) Genesis() models.Genesis {
	return l.genesis
}

// Append mines a block carrying data and persists it. The block is only
// added to the in-memory chain once the store accepted it.
func (l *Ledger) Append(data []byte, timestamp int64) (*models.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	head := l.blocks[len(l.blocks)-1]
	if timestamp < head.Timestamp {
		return nil, fmt.Errorf("%w: %d < %d", ErrTimestampBehind, timestamp, head.Timestamp)
	}

	block := models.NewBlock(head.Index+1, timestamp, data, head.Hash, l.difficulty)
	if err := l.store.SaveBlock(block); err != nil {
		return nil, fmt.Errorf("failed to save block %d: %w", block.Index, err)
	}
	l.blocks = append(l.blocks, block)
	return block, nil
}

// Height is the number of blocks, genesis included.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.blocks))
}

func (l *Ledger) Head() *models.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.blocks[len(l.blocks)-1]
}

func (l *Ledger) Block(index uint64) (*models.Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index >= uint64(len(l.blocks)) {
		return nil, ErrBlockNotFound
	}
	return l.blocks[index], nil
}

// Blocks returns the chain from index from onwards.
func (l *Ledger) Blocks(from uint64) []*models.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if from >= uint64(len(l.blocks)) {
		return nil
	}
	out := make([]*models.Block, len(l.blocks)-int(from))
	copy(out, l.blocks[from:])
	return out
}

func (l *Ledger) Validate() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return models.ValidateChain(l.blocks)
}

// Receipt decodes the transaction receipt carried by a non-genesis block.
func Receipt(block *models.Block) (models.Receipt, error) {
	var r models.Receipt
	if block.Index == 0 {
		return r, errors.New("genesis block carries no receipt")
	}
	if err := json.Unmarshal(block.Data, &r); err != nil {
		return r, fmt.Errorf("failed to decode receipt in block %d: %w", block.Index, err)
	}
	return r, nil
}

func (l *Ledger) Close() error {
	return l.store.Close()
}
