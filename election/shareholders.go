package election

import (
	"github.com/ethereum/go-ethereum/common"

	"election-ledger/models"
)

// AddShareholder registers addr with the given stake. Its weight starts at
// numberOfShares.
func (e *Election) AddShareholder(msg Msg, name string, addr common.Address, numberOfShares uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRegistration(msg); err != nil {
		return err
	}
	if addr == (common.Address{}) {
		return ErrZeroAddress
	}
	if addr == e.admin {
		return ErrAdminNotShareholder
	}
	if numberOfShares == 0 {
		return ErrInvalidShares
	}
	if e.shareholders[addr].Exists() {
		return ErrShareholderAlreadyRegistered
	}

	e.shareholders[addr] = models.Shareholder{
		ID:             addr,
		Name:           name,
		NumberOfShares: numberOfShares,
		Weight:         numberOfShares,
	}
	if _, ok := e.listed[addr]; !ok {
		e.listed[addr] = struct{}{}
		e.addresses = append(e.addresses, addr)
	}
	return nil
}

// EditShareholder replaces the name and stake of a registered shareholder.
// Weight is reset to the new stake.
func (e *Election) EditShareholder(msg Msg, name string, addr common.Address, numberOfShares uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRegistration(msg); err != nil {
		return err
	}
	s := e.shareholders[addr]
	if !s.Exists() {
		return ErrShareholderNotRegistered
	}
	if numberOfShares == 0 {
		return ErrInvalidShares
	}

	s.Name = name
	s.NumberOfShares = numberOfShares
	s.Weight = numberOfShares
	e.shareholders[addr] = s
	return nil
}

// DeleteShareholder tombstones the record. The address stays in the
// enumeration list.
func (e *Election) DeleteShareholder(msg Msg, addr common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRegistration(msg); err != nil {
		return err
	}
	if !e.shareholders[addr].Exists() {
		return ErrShareholderNotRegistered
	}
	e.shareholders[addr] = models.Shareholder{}
	return nil
}

// Shareholder returns the record for addr, or the zero value if addr is not
// registered.
func (e *Election) Shareholder(addr common.Address) models.Shareholder {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.shareholders[addr]
}

// HasVoted reports whether addr has voted or delegated.
func (e *Election) HasVoted(addr common.Address) bool {
	return e.Shareholder(addr).Voted
}

// ShareholderAddress returns the index-th address ever registered. Entries
// whose record was deleted are still returned; callers filter on Exists.
func (e *Election) ShareholderAddress(index uint64) (common.Address, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if index >= uint64(len(e.addresses)) {
		return common.Address{}, ErrIndexOutOfRange
	}
	return e.addresses[index], nil
}

// ShareholdersCount is the length of the enumeration list.
func (e *Election) ShareholdersCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint64(len(e.addresses))
}

// Shareholders returns the registered shareholders in registration order.
func (e *Election) Shareholders() []models.Shareholder {
	e.mu.RLock()
	defer e.mu.RUnlock()

	shareholders := make([]models.Shareholder, 0, len(e.addresses))
	for _, addr := range e.addresses {
		if s := e.shareholders[addr]; s.Exists() {
			shareholders = append(shareholders, s)
		}
	}
	return shareholders
}
