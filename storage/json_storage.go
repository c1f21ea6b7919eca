package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"election-ledger/models"
)

const chainFileName = "ledger_chain.json"

// Chain represents the entire ledger
type Chain struct {
	Blocks []*models.Block `json:"blocks"`
}

// JSONStore keeps the whole chain in one JSON file that is rewritten on
// every append.
type JSONStore struct {
	path  string
	mu    sync.RWMutex
	chain *Chain
}

func NewJSONStore(basePath string) (*JSONStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	store := &JSONStore{path: filepath.Join(basePath, chainFileName)}
	chain, err := store.loadChainFromFile()
	if err != nil {
		return nil, fmt.Errorf("failed to load chain: %w", err)
	}
	store.chain = chain
	return store, nil
}

func (s *JSONStore) SaveBlock(block *models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if block.Index != uint64(len(s.chain.Blocks)) {
		return fmt.Errorf("%w: got %d, want %d", ErrBlockOrder, block.Index, len(s.chain.Blocks))
	}

	next := &Chain{Blocks: append(s.chain.Blocks[:len(s.chain.Blocks):len(s.chain.Blocks)], block)}
	if err := s.saveChainToFile(next); err != nil {
		return err
	}
	s.chain = next
	return nil
}

func (s *JSONStore) LoadChain() ([]*models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blocks := make([]*models.Block, len(s.chain.Blocks))
	copy(blocks, s.chain.Blocks)
	return blocks, nil
}

func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) loadChainFromFile() (*Chain, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Chain{Blocks: make([]*models.Block, 0)}, nil
		}
		return nil, err
	}

	var chain Chain
	if err := json.Unmarshal(data, &chain); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chain: %w", err)
	}
	return &chain, nil
}

func (s *JSONStore) saveChainToFile(chain *Chain) error {
	data, err := json.MarshalIndent(chain, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chain: %w", err)
	}

	// Write to temporary file first
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write chain file: %w", err)
	}

	// Atomic rename to ensure consistency
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save chain file: %w", err)
	}
	return nil
}
