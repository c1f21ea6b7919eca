// Package election implements the phased, weighted shareholder election:
// admin-managed registration of proposals and shareholders, then a voting
// window in which shareholders vote or delegate their weight.
//
// An Election is a single owned aggregate. Every mutation takes the caller
// and the timestamp explicitly through Msg and is applied atomically: it
// either commits completely or returns an error and leaves state untouched.
package election

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"election-ledger/models"
)

// Msg carries the context of a mutating call: who sent it and at what time
// (Unix seconds) it executes.
type Msg struct {
	Sender    common.Address
	Timestamp uint64
}

// VoteCast reports weight added to a proposal's vote count. Vote and Delegate
// return one; publishing it is up to the caller.
type VoteCast struct {
	ProposalID uint64         `json:"proposal_id"`
	Voter      common.Address `json:"voter"`
	Weight     uint64         `json:"weight"`
	Delegated  bool           `json:"delegated"`
}

type Election struct {
	mu sync.RWMutex

	admin     common.Address
	startTime uint64
	endTime   uint64

	// proposals[i] holds the proposal with id i+1.
	proposals    []models.Proposal
	shareholders map[common.Address]models.Shareholder
	addresses    []common.Address
	listed       map[common.Address]struct{}
}

// New creates an election owned by admin. The initial proposals are
// registered with ids 1..n regardless of the current time.
func New(admin common.Address, startTime, endTime uint64, proposals []string) (*Election, error) {
	if admin == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if startTime >= endTime {
		return nil, ErrInvalidSchedule
	}

	e := &Election{
		admin:        admin,
		startTime:    startTime,
		endTime:      endTime,
		shareholders: make(map[common.Address]models.Shareholder),
		listed:       make(map[common.Address]struct{}),
	}
	for _, name := range proposals {
		e.appendProposal(name)
	}
	return e, nil
}

// FromGenesis creates the election described by a ledger genesis record.
func FromGenesis(g models.Genesis) (*Election, error) {
	return New(g.Admin, g.StartTime, g.EndTime, g.Proposals)
}

// Status derives the phase at timestamp t.
func (e *Election) Status(t uint64) models.Phase {
	switch {
	case t < e.startTime:
		return models.PhaseRegistration
	case t < e.endTime:
		return models.PhaseVoting
	default:
		return models.PhaseFinished
	}
}

func (e *Election) Admin() common.Address { return e.admin }
func (e *Election) StartTime() uint64     { return e.startTime }
func (e *Election) EndTime() uint64       { return e.endTime }

// requireRegistration is the guard shared by every admin-only registry mutation.
func (e *Election) requireRegistration(msg Msg) error {
	if e.Status(msg.Timestamp) != models.PhaseRegistration {
		return ErrRegistrationOver
	}
	if msg.Sender != e.admin {
		return ErrOnlyAdmin
	}
	return nil
}

// requireVoter is the guard shared by vote and delegate. It returns the
// caller's current record.
func (e *Election) requireVoter(msg Msg) (models.Shareholder, error) {
	if e.Status(msg.Timestamp) != models.PhaseVoting {
		return models.Shareholder{}, ErrVotingOver
	}
	sender := e.shareholders[msg.Sender]
	if !sender.Exists() {
		return models.Shareholder{}, ErrOnlyShareholders
	}
	if sender.Voted {
		return models.Shareholder{}, ErrAlreadyVoted
	}
	return sender, nil
}

// Snapshot returns a deep copy of the election's storage.
func (e *Election) Snapshot() models.ElectionState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	state := models.ElectionState{
		Admin:        e.admin,
		StartTime:    e.startTime,
		EndTime:      e.endTime,
		Proposals:    make([]models.Proposal, len(e.proposals)),
		Shareholders: make(map[common.Address]models.Shareholder, len(e.shareholders)),
		Addresses:    make([]common.Address, len(e.addresses)),
	}
	copy(state.Proposals, e.proposals)
	copy(state.Addresses, e.addresses)
	for addr, s := range e.shareholders {
		if s.Exists() {
			state.Shareholders[addr] = s
		}
	}
	return state
}

// Restore builds an election from a snapshot taken with Snapshot.
func Restore(state models.ElectionState) (*Election, error) {
	e, err := New(state.Admin, state.StartTime, state.EndTime, nil)
	if err != nil {
		return nil, err
	}

	e.proposals = make([]models.Proposal, len(state.Proposals))
	copy(e.proposals, state.Proposals)
	for addr, s := range state.Shareholders {
		e.shareholders[addr] = s
	}
	for _, addr := range state.Addresses {
		if _, ok := e.listed[addr]; ok {
			continue
		}
		e.listed[addr] = struct{}{}
		e.addresses = append(e.addresses, addr)
	}
	return e, nil
}
