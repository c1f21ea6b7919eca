package storage

import (
	"errors"
	"fmt"

	"election-ledger/models"
)

// ErrBlockOrder is returned when a block is saved out of sequence.
var ErrBlockOrder = errors.New("block index out of sequence")

// BlockStore persists the ledger. Blocks are appended in index order.
type BlockStore interface {
	SaveBlock(block *models.Block) error
	LoadChain() ([]*models.Block, error)
	Close() error
}

// Open returns the block store for backend ("json" or "sqlite") in dir.
func Open(backend, dir string) (BlockStore, error) {
	switch backend {
	case "json":
		return NewJSONStore(dir)
	case "sqlite":
		return NewSQLiteStore(dir)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
