package service

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"election-ledger/election"
	"election-ledger/encryption"
	"election-ledger/models"
)

var ErrSealedTallyDisabled = errors.New("sealed tally is disabled")

// TallyService computes results from the election state and keeps a sealed
// copy of every counted weight under an additively homomorphic cipher.
type TallyService struct {
	scheme encryption.HomomorphicEncryptionScheme
	mu     sync.RWMutex
	sealed map[uint64][]byte // proposal id -> encrypted vote count
}

// NewTallyService returns a tally; scheme may be nil to disable sealing.
func NewTallyService(scheme encryption.HomomorphicEncryptionScheme) *TallyService {
	return &TallyService{
		scheme: scheme,
		sealed: make(map[uint64][]byte),
	}
}

// ProposalResult is a proposal's standing in the results.
type ProposalResult struct {
	ID        uint64  `json:"id"`
	Name      string  `json:"name"`
	VoteCount uint64  `json:"voteCount"`
	Share     float64 `json:"share"`
	Rank      int     `json:"rank"`
}

type Results struct {
	Status      models.Phase     `json:"status"`
	Proposals   []ProposalResult `json:"proposals"`
	Winners     []uint64         `json:"winners"`
	TotalCast   uint64           `json:"total_cast"`
	TotalShares uint64           `json:"total_shares"`
	Turnout     float64          `json:"turnout"`
}

// TallyVerification compares the sealed tally against the public counts.
type TallyVerification struct {
	Scheme    string          `json:"scheme"`
	Proposals map[uint64]bool `json:"proposals"`
	IsValid   bool            `json:"is_valid"`
}

// Record seals the weight carried by a vote-cast event.
func (ts *TallyService) Record(ev *election.VoteCast) error {
	if ts.scheme == nil || ev == nil {
		return nil
	}
	return ts.add(ev.ProposalID, ev.Weight)
}

// Seed resets the sealed tally to the public counts of e. It is used when
// state is restored from a snapshot rather than replayed.
func (ts *TallyService) Seed(e *election.Election) error {
	if ts.scheme == nil {
		return nil
	}
	ts.mu.Lock()
	ts.sealed = make(map[uint64][]byte)
	ts.mu.Unlock()

	for _, p := range e.Proposals() {
		if p.VoteCount == 0 {
			continue
		}
		if err := ts.add(p.ID, p.VoteCount); err != nil {
			return err
		}
	}
	return nil
}

func (ts *TallyService) add(proposalID, weight uint64) error {
	ct, err := ts.scheme.Encrypt(new(big.Int).SetUint64(weight))
	if err != nil {
		return fmt.Errorf("failed to seal weight: %w", err)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if acc, ok := ts.sealed[proposalID]; ok {
		ct, err = ts.scheme.Add(acc, ct)
		if err != nil {
			return fmt.Errorf("failed to add sealed weight: %w", err)
		}
	}
	ts.sealed[proposalID] = ct
	return nil
}

// Results ranks the live proposals of e at time now. Proposals with equal
// counts share a rank and all proposals with the top count are winners.
func (ts *TallyService) Results(e *election.Election, now uint64) *Results {
	proposals := e.Proposals()
	res := &Results{
		Status:    e.Status(now),
		Proposals: make([]ProposalResult, 0, len(proposals)),
		Winners:   make([]uint64, 0),
	}

	for _, p := range proposals {
		res.TotalCast += p.VoteCount
		res.Proposals = append(res.Proposals, ProposalResult{ID: p.ID, Name: p.Name, VoteCount: p.VoteCount})
	}
	for _, s := range e.Shareholders() {
		res.TotalShares += s.NumberOfShares
	}

	sort.SliceStable(res.Proposals, func(i, j int) bool {
		return res.Proposals[i].VoteCount > res.Proposals[j].VoteCount
	})
	for i := range res.Proposals {
		p := &res.Proposals[i]
		if i > 0 && p.VoteCount == res.Proposals[i-1].VoteCount {
			p.Rank = res.Proposals[i-1].Rank
		} else {
			p.Rank = i + 1
		}
		if res.TotalCast > 0 {
			p.Share = float64(p.VoteCount) / float64(res.TotalCast)
			if p.Rank == 1 {
				res.Winners = append(res.Winners, p.ID)
			}
		}
	}
	if res.TotalShares > 0 {
		res.Turnout = float64(res.TotalCast) / float64(res.TotalShares)
	}
	return res
}

// Verify decrypts each sealed count and compares it with the public one.
func (ts *TallyService) Verify(e *election.Election) (*TallyVerification, error) {
	if ts.scheme == nil {
		return nil, ErrSealedTallyDisabled
	}

	ts.mu.RLock()
	defer ts.mu.RUnlock()

	v := &TallyVerification{
		Scheme:    ts.scheme.Name(),
		Proposals: make(map[uint64]bool),
		IsValid:   true,
	}
	for _, p := range e.Proposals() {
		sealed := uint64(0)
		if ct, ok := ts.sealed[p.ID]; ok {
			plain, err := ts.scheme.Decrypt(ct)
			if err != nil {
				return nil, fmt.Errorf("failed to open sealed count for proposal %d: %w", p.ID, err)
			}
			sealed = plain.Uint64()
		}
		ok := sealed == p.VoteCount
		v.Proposals[p.ID] = ok
		v.IsValid = v.IsValid && ok
	}
	return v, nil
}
