package election

import (
	"math"

	"github.com/ethereum/go-ethereum/common"
)

// Vote casts the caller's whole weight for proposalID.
func (e *Election) Vote(msg Msg, proposalID uint64) (*VoteCast, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sender, err := e.requireVoter(msg)
	if err != nil {
		return nil, err
	}
	p, ok := e.proposalSlot(proposalID)
	if !ok || !p.Exists() {
		return nil, ErrProposalNotFound
	}
	count, err := addWeight(p.VoteCount, sender.Weight)
	if err != nil {
		return nil, err
	}

	sender.Voted = true
	sender.Vote = proposalID
	e.shareholders[msg.Sender] = sender
	p.VoteCount = count

	return &VoteCast{ProposalID: proposalID, Voter: msg.Sender, Weight: sender.Weight}, nil
}

// Delegate hands the caller's weight to the shareholder at to. If the end of
// to's delegation chain has already voted the weight is counted immediately
// and a VoteCast is returned; otherwise it is added to that shareholder's
// weight and the returned event is nil.
func (e *Election) Delegate(msg Msg, to common.Address) (*VoteCast, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sender, err := e.requireVoter(msg)
	if err != nil {
		return nil, err
	}
	if to == msg.Sender {
		return nil, ErrSelfDelegation
	}

	terminal, err := e.resolveDelegate(msg.Sender, to)
	if err != nil {
		return nil, err
	}
	delegate := e.shareholders[terminal]

	var ev *VoteCast
	if delegate.Voted {
		p := &e.proposals[delegate.Vote-1]
		count, err := addWeight(p.VoteCount, sender.Weight)
		if err != nil {
			return nil, err
		}
		p.VoteCount = count
		sender.Vote = delegate.Vote
		ev = &VoteCast{ProposalID: delegate.Vote, Voter: msg.Sender, Weight: sender.Weight, Delegated: true}
	} else {
		weight, err := addWeight(delegate.Weight, sender.Weight)
		if err != nil {
			return nil, err
		}
		delegate.Weight = weight
		e.shareholders[terminal] = delegate
	}

	sender.Voted = true
	sender.Delegate = to
	e.shareholders[msg.Sender] = sender
	return ev, nil
}

func addWeight(total, weight uint64) (uint64, error) {
	if weight > math.MaxUint64-total {
		return 0, ErrWeightOverflow
	}
	return total + weight, nil
}

// resolveDelegate follows the delegation chain starting at to and returns
// the first shareholder that has not delegated. Every link in an existing
// chain was created by a shareholder that could no longer delegate, so the
// only cycle a new delegation can close runs back through from.
func (e *Election) resolveDelegate(from, to common.Address) (common.Address, error) {
	current := e.shareholders[to]
	if !current.Exists() {
		return common.Address{}, ErrShareholderNotRegistered
	}
	for current.HasDelegated() {
		to = current.Delegate
		if to == from {
			return common.Address{}, ErrCyclicDelegation
		}
		current = e.shareholders[to]
	}
	return to, nil
}
