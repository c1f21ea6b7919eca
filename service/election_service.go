package service

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"

	"election-ledger/blockchain/ledger"
	"election-ledger/election"
	"election-ledger/encryption"
	"election-ledger/logging"
	"election-ledger/models"
	"election-ledger/registry"
	"election-ledger/storage"
)

var (
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrNonceMismatch      = errors.New("nonce mismatch")
)

const (
	adminCredentialsFile = "admin_credentials.json"
	voteEventBacklog     = 256
)

// Options configures an ElectionService.
type Options struct {
	Store      storage.BlockStore
	Snapshots  *storage.SnapshotStorage // nil disables snapshots
	Genesis    models.Genesis           // used only when Store is empty
	Difficulty uint8
	AdminKey   *ecdsa.PrivateKey // signs roster imports; may be nil
	Clock      Clock
	Sealer     encryption.HomomorphicEncryptionScheme // nil disables the sealed tally
	Metrics    *MetricsCollector
	Logger     logging.Logger
}

// Commit describes a transaction that was executed and persisted.
type Commit struct {
	Receipt    models.Receipt `json:"receipt"`
	BlockIndex uint64         `json:"block_index"`
	BlockHash  hexutil.Bytes  `json:"block_hash"`
}

// ElectionService owns the election, applies signed transactions to it one
// at a time and records every committed transaction in the ledger.
type ElectionService struct {
	mu      sync.Mutex // serializes Apply
	current atomic.Pointer[election.Election]
	ledger  *ledger.Ledger

	nonceMu sync.RWMutex
	nonces  map[common.Address]uint64

	cryptoService *encryption.CryptoService
	validator     *Validator
	tally         *TallyService
	metrics       *MetricsCollector
	snapshots     *storage.SnapshotStorage
	clock         Clock
	adminKey      *ecdsa.PrivateKey
	voteFeed      event.Feed
	voteEvents    chan election.VoteCast
	quit          chan struct{}
	closeOnce     sync.Once
	log           logging.Logger
}

// LoadOrGenerateAdminKey returns the admin key stored under storagePath,
// creating and saving a new one on first use.
func LoadOrGenerateAdminKey(storagePath string, cs *encryption.CryptoService) (*ecdsa.PrivateKey, error) {
	adminKeyPath := filepath.Join(storagePath, adminCredentialsFile)

	if data, err := os.ReadFile(adminKeyPath); err == nil {
		var creds encryption.KeyCredentials
		if err := json.Unmarshal(data, &creds); err != nil {
			return nil, fmt.Errorf("failed to parse admin credentials: %w", err)
		}
		key, err := encryption.ParsePrivateKey(creds.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to restore admin private key: %w", err)
		}
		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read admin credentials: %w", err)
	}

	key, err := cs.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate admin key: %w", err)
	}
	data, err := json.MarshalIndent(cs.Credentials(key), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal admin credentials: %w", err)
	}
	if err := os.WriteFile(adminKeyPath, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to save admin credentials: %w", err)
	}
	return key, nil
}

// NewElectionService opens the ledger and rebuilds the election from the
// latest usable snapshot plus the blocks after it. Any block that fails to
// replay is fatal.
func NewElectionService(opts Options) (*ElectionService, error) {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetricsCollector()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Base()
	}

	l, err := ledger.Open(opts.Store, opts.Genesis, opts.Difficulty, opts.Logger)
	if err != nil {
		return nil, err
	}

	s := &ElectionService{
		ledger:        l,
		nonces:        make(map[common.Address]uint64),
		cryptoService: encryption.NewCryptoService(),
		validator:     NewValidator(),
		tally:         NewTallyService(opts.Sealer),
		metrics:       opts.Metrics,
		snapshots:     opts.Snapshots,
		clock:         opts.Clock,
		adminKey:      opts.AdminKey,
		voteEvents:    make(chan election.VoteCast, voteEventBacklog),
		quit:          make(chan struct{}),
		log:           opts.Logger,
	}

	if err := s.restore(); err != nil {
		return nil, err
	}
	s.metrics.SetHeight(l.Height())
	s.metrics.ObservePhase(func() models.Phase { return s.Election().Status(s.clock.Now()) })
	go s.dispatchVoteEvents()
	return s, nil
}

func (s *ElectionService) restore() error {
	e, from, err := s.restoreSnapshot()
	if err != nil {
		return err
	}
	if e == nil {
		if e, err = election.FromGenesis(s.ledger.Genesis()); err != nil {
			return fmt.Errorf("invalid genesis: %w", err)
		}
		from = 1
	}
	if err := s.tally.Seed(e); err != nil {
		return err
	}
	s.current.Store(e)

	blocks := s.ledger.Blocks(from)
	for _, block := range blocks {
		if err := s.replay(e, block); err != nil {
			return fmt.Errorf("failed to replay block %d: %w", block.Index, err)
		}
	}
	s.log.Infof("Replayed %d blocks, ledger height %d", len(blocks), s.ledger.Height())
	return nil
}

// restoreSnapshot returns the election stored in the latest snapshot if it
// matches the ledger, and the index of the first block not covered by it.
func (s *ElectionService) restoreSnapshot() (*election.Election, uint64, error) {
	if s.snapshots == nil {
		return nil, 0, nil
	}
	snap, err := s.snapshots.LoadLatest()
	if err != nil {
		s.log.Warnf("Ignoring unreadable snapshot: %v", err)
		return nil, 0, nil
	}
	if snap == nil || snap.Height == 0 || snap.Height > s.ledger.Height() {
		return nil, 0, nil
	}
	block, err := s.ledger.Block(snap.Height - 1)
	if err != nil || !bytes.Equal(block.Hash, snap.BlockHash) {
		s.log.Warnf("Snapshot at height %d does not match the ledger, replaying from genesis", snap.Height)
		return nil, 0, nil
	}

	e, err := election.Restore(snap.State)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to restore snapshot: %w", err)
	}
	for addr, n := range snap.Nonces {
		s.nonces[addr] = n
	}
	return e, snap.Height, nil
}

// replay re-executes a committed block against e at its recorded time.
func (s *ElectionService) replay(e *election.Election, block *models.Block) error {
	r, err := ledger.Receipt(block)
	if err != nil {
		return err
	}
	tx := r.Transaction
	sender, err := s.checkTransaction(&tx)
	if err != nil {
		return err
	}
	if want := s.NextNonce(sender); tx.Nonce != want {
		return fmt.Errorf("%w: got %d, want %d", ErrNonceMismatch, tx.Nonce, want)
	}
	got, ev, err := s.execute(e, &tx, sender, r.Timestamp)
	if err != nil {
		return err
	}
	if got.ProposalID != r.ProposalID {
		return fmt.Errorf("replay produced proposal %d, ledger recorded %d", got.ProposalID, r.ProposalID)
	}
	s.setNonce(sender, tx.Nonce+1)
	return s.tally.Record(ev)
}

// Election returns the current election. Callers must not mutate it.
func (s *ElectionService) Election() *election.Election {
	return s.current.Load()
}

func (s *ElectionService) Ledger() *ledger.Ledger {
	return s.ledger
}

func (s *ElectionService) Metrics() *MetricsCollector {
	return s.metrics
}

func (s *ElectionService) Now() uint64 {
	return s.clock.Now()
}

// NextNonce is the nonce the next transaction from addr must carry.
func (s *ElectionService) NextNonce(addr common.Address) uint64 {
	s.nonceMu.RLock()
	defer s.nonceMu.RUnlock()
	return s.nonces[addr]
}

func (s *ElectionService) setNonce(addr common.Address, n uint64) {
	s.nonceMu.Lock()
	defer s.nonceMu.Unlock()
	s.nonces[addr] = n
}

// SubscribeVoteCast delivers a VoteCast for every committed vote or
// delegation that added weight to a proposal. Events arrive in commit order
// from a separate goroutine; a subscriber that stops reading delays later
// events but never a commit.
func (s *ElectionService) SubscribeVoteCast(ch chan<- election.VoteCast) event.Subscription {
	return s.voteFeed.Subscribe(ch)
}

// publishVoteCast hands ev to the dispatcher without blocking. Events past
// the backlog are dropped.
func (s *ElectionService) publishVoteCast(ev election.VoteCast) {
	select {
	case s.voteEvents <- ev:
	default:
		s.log.Warnf("Vote event backlog full, dropping event for proposal %d", ev.ProposalID)
	}
}

func (s *ElectionService) dispatchVoteEvents() {
	for {
		select {
		case <-s.quit:
			return
		case ev := <-s.voteEvents:
			s.voteFeed.Send(ev)
		}
	}
}

// Apply validates, executes and persists one transaction. On any error the
// election, nonces and ledger are left unchanged.
func (s *ElectionService) Apply(tx *models.Transaction) (*Commit, error) {
	start := time.Now()
	commit, ev, err := s.apply(tx)
	s.metrics.RecordTransaction(tx.Method, time.Since(start), err)

	logger := s.log.WithFields(logging.Fields{"tx": tx.ID, "method": tx.Method, "from": tx.From.Hex()})
	if err != nil {
		logger.Warnf("Transaction rejected: %v", err)
		return nil, err
	}
	logger.Infof("Transaction committed in block %d", commit.BlockIndex)

	if ev != nil {
		s.publishVoteCast(*ev)
	}
	return commit, nil
}

func (s *ElectionService) apply(tx *models.Transaction) (*Commit, *election.VoteCast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	sender, err := s.checkTransaction(tx)
	if err != nil {
		return nil, nil, err
	}
	if want := s.NextNonce(sender); tx.Nonce != want {
		return nil, nil, fmt.Errorf("%w: got %d, want %d", ErrNonceMismatch, tx.Nonce, want)
	}

	// Several transactions may share a second, but block times never go back.
	now := s.clock.Now()
	if head := uint64(s.ledger.Head().Timestamp); now < head {
		now = head
	}

	// Readers keep seeing the published election until the block is stored.
	working, err := election.Restore(s.Election().Snapshot())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to copy election state: %w", err)
	}

	receipt, ev, err := s.execute(working, tx, sender, now)
	if err != nil {
		return nil, nil, err
	}

	data, err := json.Marshal(receipt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode receipt: %w", err)
	}
	block, err := s.ledger.Append(data, int64(now))
	if err != nil {
		s.log.Errorf("Failed to persist transaction %s: %v", tx.ID, err)
		return nil, nil, fmt.Errorf("failed to persist transaction: %w", err)
	}

	s.current.Store(working)
	s.setNonce(sender, tx.Nonce+1)
	s.metrics.SetHeight(block.Index + 1)
	if terr := s.tally.Record(ev); terr != nil {
		s.log.Errorf("Failed to seal tally for block %d: %v", block.Index, terr)
	}
	return &Commit{Receipt: *receipt, BlockIndex: block.Index, BlockHash: block.Hash}, ev, nil
}

func (s *ElectionService) checkTransaction(tx *models.Transaction) (common.Address, error) {
	sender, err := s.cryptoService.RecoverSender(tx)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	return sender, nil
}

// execute dispatches tx to the election as sender at time now.
func (s *ElectionService) execute(e *election.Election, tx *models.Transaction, sender common.Address, now uint64) (*models.Receipt, *election.VoteCast, error) {
	msg := election.Msg{Sender: sender, Timestamp: now}
	receipt := &models.Receipt{Transaction: *tx, Timestamp: now}

	var (
		ev  *election.VoteCast
		err error
	)
	switch tx.Method {
	case models.MethodAddProposal, models.MethodAddCandidate:
		var args models.ProposalArgs
		if err = decodeArgs(tx, &args); err == nil {
			if args.Name, err = s.validName(args.Name); err == nil {
				receipt.ProposalID, err = e.AddProposal(msg, args.Name)
			}
		}
	case models.MethodEditProposal, models.MethodEditCandidate:
		var args models.ProposalArgs
		if err = decodeArgs(tx, &args); err == nil {
			if args.Name, err = s.validName(args.Name); err == nil {
				err = e.EditProposal(msg, args.ID, args.Name)
			}
		}
	case models.MethodDeleteProposal, models.MethodDeleteCandidate:
		var args models.ProposalArgs
		if err = decodeArgs(tx, &args); err == nil {
			err = e.DeleteProposal(msg, args.ID)
		}
	case models.MethodAddShareholder:
		var args models.ShareholderArgs
		if err = decodeArgs(tx, &args); err == nil {
			if args.Name, err = s.validName(args.Name); err == nil {
				err = e.AddShareholder(msg, args.Name, args.Address, args.NumberOfShares)
			}
		}
	case models.MethodEditShareholder:
		var args models.ShareholderArgs
		if err = decodeArgs(tx, &args); err == nil {
			if args.Name, err = s.validName(args.Name); err == nil {
				err = e.EditShareholder(msg, args.Name, args.Address, args.NumberOfShares)
			}
		}
	case models.MethodDeleteShareholder:
		var args models.ShareholderArgs
		if err = decodeArgs(tx, &args); err == nil {
			err = e.DeleteShareholder(msg, args.Address)
		}
	case models.MethodVote:
		var args models.VoteArgs
		if err = decodeArgs(tx, &args); err == nil {
			ev, err = e.Vote(msg, args.ProposalID)
		}
	case models.MethodDelegate:
		var args models.DelegateArgs
		if err = decodeArgs(tx, &args); err == nil {
			ev, err = e.Delegate(msg, args.To)
		}
	default:
		err = fmt.Errorf("%w: unknown method %q", ErrInvalidTransaction, tx.Method)
	}
	if err != nil {
		return nil, nil, err
	}
	return receipt, ev, nil
}

func (s *ElectionService) validName(name string) (string, error) {
	name, err := s.validator.Name(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	return name, nil
}

func decodeArgs(tx *models.Transaction, v interface{}) error {
	if args := bytes.TrimSpace(tx.Args); len(args) == 0 || bytes.Equal(args, []byte("null")) {
		return fmt.Errorf("%w: missing arguments", ErrInvalidTransaction)
	}
	if err := json.Unmarshal(tx.Args, v); err != nil {
		return fmt.Errorf("%w: bad arguments: %v", ErrInvalidTransaction, err)
	}
	return nil
}

// NewTransaction builds an unsigned transaction with JSON encoded args.
func NewTransaction(method string, args interface{}, nonce uint64) (*models.Transaction, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}
	return &models.Transaction{
		ID:     uuid.New().String(),
		Method: method,
		Args:   raw,
		Nonce:  nonce,
	}, nil
}

// ImportRoster registers, as admin-signed transactions, every roster entry
// that is not yet a shareholder. It does nothing outside Registration.
func (s *ElectionService) ImportRoster(r *registry.Roster) (int, error) {
	if s.adminKey == nil {
		return 0, errors.New("roster import requires the admin key")
	}
	if phase := s.Election().Status(s.clock.Now()); phase != models.PhaseRegistration {
		s.log.Infof("Skipping roster import during %s", phase)
		return 0, nil
	}

	admin := s.cryptoService.Address(s.adminKey)
	imported := 0
	for _, entry := range r.Entries() {
		addr, err := s.validator.Address(entry.Address)
		if err != nil {
			return imported, err
		}
		if s.Election().Shareholder(addr).Exists() {
			continue
		}

		tx, err := NewTransaction(models.MethodAddShareholder, models.ShareholderArgs{
			Name:           entry.Name,
			Address:        addr,
			NumberOfShares: entry.Shares,
		}, s.NextNonce(admin))
		if err != nil {
			return imported, err
		}
		if err := s.cryptoService.SignTransaction(tx, s.adminKey); err != nil {
			return imported, err
		}
		if _, err := s.Apply(tx); err != nil {
			return imported, fmt.Errorf("failed to import %s: %w", addr.Hex(), err)
		}
		imported++
	}
	s.log.Infof("Imported %d of %d roster entries", imported, r.Len())
	return imported, nil
}

// Results returns the current standings.
func (s *ElectionService) Results() *Results {
	return s.tally.Results(s.Election(), s.clock.Now())
}

// VerifyTally checks the sealed tally against the public vote counts.
func (s *ElectionService) VerifyTally() (*TallyVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tally.Verify(s.Election())
}

// SaveSnapshot persists the current state. It is a no-op without snapshot
// storage.
func (s *ElectionService) SaveSnapshot() error {
	if s.snapshots == nil {
		return nil
	}

	s.mu.Lock()
	head := s.ledger.Head()
	snap := &models.Snapshot{
		Height:    head.Index + 1,
		BlockHash: head.Hash,
		State:     s.Election().Snapshot(),
		Nonces:    make(map[common.Address]uint64),
	}
	s.nonceMu.RLock()
	for addr, n := range s.nonces {
		snap.Nonces[addr] = n
	}
	s.nonceMu.RUnlock()
	s.mu.Unlock()

	return s.snapshots.Save(snap)
}

// RunSnapshots saves a snapshot every interval until ctx is done.
func (s *ElectionService) RunSnapshots(ctx context.Context, interval time.Duration) {
	if s.snapshots == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var saved uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h := s.ledger.Height(); h != saved {
				if err := s.SaveSnapshot(); err != nil {
					s.log.Errorf("Failed to save snapshot: %v", err)
					continue
				}
				saved = h
			}
		}
	}
}

// Close stops event dispatch, writes a final snapshot and closes the ledger.
func (s *ElectionService) Close() error {
	s.closeOnce.Do(func() { close(s.quit) })
	if err := s.SaveSnapshot(); err != nil {
		s.log.Errorf("Failed to save final snapshot: %v", err)
	}
	return s.ledger.Close()
}
