package models

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Transaction methods accepted by the election.
const (
	MethodAddProposal       = "addProposal"
	MethodAddCandidate      = "addCandidate"
	MethodEditProposal      = "editProposal"
	MethodEditCandidate     = "editCandidate"
	MethodDeleteProposal    = "deleteProposal"
	MethodDeleteCandidate   = "deleteCandidate"
	MethodAddShareholder    = "addShareholder"
	MethodEditShareholder   = "editShareholder"
	MethodDeleteShareholder = "deleteShareholder"
	MethodVote              = "vote"
	MethodDelegate          = "delegate"
)

// Transaction is a signed request to mutate the election. The sender is
// recovered from Signature and must match From.
type Transaction struct {
	ID        string          `json:"id"`
	Method    string          `json:"method"`
	Args      json.RawMessage `json:"args"`
	From      common.Address  `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Signature hexutil.Bytes   `json:"signature"`
}

// Receipt is the payload of every non-genesis ledger block.
type Receipt struct {
	Transaction Transaction `json:"transaction"`
	Timestamp   uint64      `json:"timestamp"`
	ProposalID  uint64      `json:"proposal_id,omitempty"` // Set by addProposal/addCandidate
}

// Genesis is the payload of ledger block 0 and fully describes a deployment.
type Genesis struct {
	Admin     common.Address `json:"admin"`
	StartTime uint64         `json:"start_time"`
	EndTime   uint64         `json:"end_time"`
	Proposals []string       `json:"proposals"`
	// DeployedAt is the genesis block timestamp (Unix seconds).
	DeployedAt uint64 `json:"deployed_at"`
}

type ProposalArgs struct {
	ID   uint64 `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type ShareholderArgs struct {
	Name           string         `json:"name,omitempty"`
	Address        common.Address `json:"address"`
	NumberOfShares uint64         `json:"numberOfShares,omitempty"`
}

type VoteArgs struct {
	ProposalID uint64 `json:"proposalId"`
}

type DelegateArgs struct {
	To common.Address `json:"to"`
}
