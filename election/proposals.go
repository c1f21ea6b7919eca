package election

import "election-ledger/models"

func (e *Election) appendProposal(name string) uint64 {
	id := uint64(len(e.proposals)) + 1
	e.proposals = append(e.proposals, models.Proposal{ID: id, Name: name})
	return id
}

// AddProposal registers a new proposal and returns its id.
func (e *Election) AddProposal(msg Msg, name string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRegistration(msg); err != nil {
		return 0, err
	}
	return e.appendProposal(name), nil
}

// EditProposal renames an existing proposal. The vote count is untouched.
func (e *Election) EditProposal(msg Msg, id uint64, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRegistration(msg); err != nil {
		return err
	}
	p, ok := e.proposalSlot(id)
	if !ok || !p.Exists() {
		return ErrProposalNotFound
	}
	p.Name = name
	return nil
}

// DeleteProposal tombstones the proposal's slot. Ids are never reused and
// deleting a missing or already deleted proposal is a no-op.
func (e *Election) DeleteProposal(msg Msg, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRegistration(msg); err != nil {
		return err
	}
	if p, ok := e.proposalSlot(id); ok {
		*p = models.Proposal{}
	}
	return nil
}

func (e *Election) AddCandidate(msg Msg, name string) (uint64, error) {
	return e.AddProposal(msg, name)
}

func (e *Election) EditCandidate(msg Msg, id uint64, name string) error {
	return e.EditProposal(msg, id, name)
}

func (e *Election) DeleteCandidate(msg Msg, id uint64) error {
	return e.DeleteProposal(msg, id)
}

// proposalSlot returns the storage slot for id, tombstoned or not.
// Callers must hold e.mu.
func (e *Election) proposalSlot(id uint64) (*models.Proposal, bool) {
	if id == 0 || id > uint64(len(e.proposals)) {
		return nil, false
	}
	return &e.proposals[id-1], true
}

// Proposal returns the proposal stored at id. Missing and deleted proposals
// come back as the zero value.
func (e *Election) Proposal(id uint64) models.Proposal {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if p, ok := e.proposalSlot(id); ok {
		return *p
	}
	return models.Proposal{}
}

func (e *Election) Candidate(id uint64) models.Proposal {
	return e.Proposal(id)
}

// ProposalsCount is the number of ids ever allocated, deleted ones included.
func (e *Election) ProposalsCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint64(len(e.proposals))
}

func (e *Election) CandidatesCount() uint64 {
	return e.ProposalsCount()
}

// Proposals returns every proposal that has not been deleted, in id order.
func (e *Election) Proposals() []models.Proposal {
	e.mu.RLock()
	defer e.mu.RUnlock()

	proposals := make([]models.Proposal, 0, len(e.proposals))
	for _, p := range e.proposals {
		if p.Exists() {
			proposals = append(proposals, p)
		}
	}
	return proposals
}
