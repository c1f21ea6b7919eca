package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"election-ledger/models"
)

const sqliteFileName = "ledger.sqlite"

var blockSchema = []string{
	`CREATE TABLE IF NOT EXISTS blocks (
		idx integer primary key,
		ts integer,
		data blob,
		prevhash blob,
		hash blob,
		nonce integer,
		difficulty integer)`,
}

// SQLiteStore keeps one row per block.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(basePath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	uri := "file:" + filepath.Join(basePath, sqliteFileName) + "?_journal_mode=wal&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open block database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range blockSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("could not create blocks table: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveBlock(block *models.Block) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next uint64
	if err := tx.QueryRow("SELECT COALESCE(MAX(idx)+1, 0) FROM blocks").Scan(&next); err != nil {
		return fmt.Errorf("failed to read ledger height: %w", err)
	}
	if block.Index != next {
		return fmt.Errorf("%w: got %d, want %d", ErrBlockOrder, block.Index, next)
	}

	_, err = tx.Exec("INSERT INTO blocks (idx, ts, data, prevhash, hash, nonce, difficulty) VALUES (?, ?, ?, ?, ?, ?, ?)",
		block.Index, block.Timestamp, block.Data, []byte(block.PrevHash), []byte(block.Hash), block.Nonce, block.Difficulty)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: block %d already stored", ErrBlockOrder, block.Index)
		}
		return fmt.Errorf("failed to insert block %d: %w", block.Index, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadChain() ([]*models.Block, error) {
	rows, err := s.db.Query("SELECT idx, ts, data, prevhash, hash, nonce, difficulty FROM blocks ORDER BY idx")
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer rows.Close()

	blocks := make([]*models.Block, 0)
	for rows.Next() {
		var (
			b              models.Block
			prevHash, hash []byte
		)
		if err := rows.Scan(&b.Index, &b.Timestamp, &b.Data, &prevHash, &hash, &b.Nonce, &b.Difficulty); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		b.PrevHash = prevHash
		b.Hash = hash
		blocks = append(blocks, &b)
	}
	return blocks, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
