package models

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Phase of an election, derived from a timestamp and the election schedule.
type Phase uint8

const (
	PhaseRegistration Phase = iota
	PhaseVoting
	PhaseFinished
)

var phaseNames = map[Phase]string{
	PhaseRegistration: "Registration",
	PhaseVoting:       "Voting",
	PhaseFinished:     "Finished",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown election phase %q", text)
}

// Proposal is a voting option. A deleted proposal keeps its slot with every
// field zeroed, so ID 0 means "does not exist".
type Proposal struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	VoteCount uint64 `json:"voteCount"`
}

func (p Proposal) Exists() bool {
	return p.ID != 0
}

// Shareholder is a registered voter. A deleted shareholder is the zero value,
// so a zero ID means "not registered".
type Shareholder struct {
	ID             common.Address `json:"id"`
	Name           string         `json:"name"`
	Voted          bool           `json:"voted"`
	Delegate       common.Address `json:"delegate"`
	Vote           uint64         `json:"vote"`
	NumberOfShares uint64         `json:"numberOfShares"`
	Weight         uint64         `json:"weight"`
}

func (s Shareholder) Exists() bool {
	return s.ID != (common.Address{})
}

// HasDelegated reports whether the shareholder handed its vote to someone else.
func (s Shareholder) HasDelegated() bool {
	return s.Delegate != (common.Address{})
}

// ElectionState is a complete, self-contained copy of an election's storage.
// It is what snapshots persist and what Election.Restore accepts.
type ElectionState struct {
	Admin        common.Address                 `json:"admin"`
	StartTime    uint64                         `json:"startTime"`
	EndTime      uint64                         `json:"endTime"`
	Proposals    []Proposal                     `json:"proposals"`
	Shareholders map[common.Address]Shareholder `json:"shareholders"`
	Addresses    []common.Address               `json:"addresses"`
}

// Snapshot is the service state after the first Height ledger blocks were
// applied. BlockHash is the hash of block Height-1.
type Snapshot struct {
	Height    uint64                    `json:"height"`
	BlockHash hexutil.Bytes             `json:"blockHash"`
	State     ElectionState             `json:"state"`
	Nonces    map[common.Address]uint64 `json:"nonces"`
}
