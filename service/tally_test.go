package service

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"election-ledger/election"
	"election-ledger/encryption"
	"election-ledger/models"
)

var (
	tallyAdmin = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	voterA     = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	voterB     = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	voterC     = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
)

func tallyElection(t *testing.T) *election.Election {
	t.Helper()
	e, err := election.New(tallyAdmin, 100, 200, []string{"A", "B", "C"})
	require.NoError(t, err)
	reg := election.Msg{Sender: tallyAdmin, Timestamp: 50}
	require.NoError(t, e.AddShareholder(reg, "a", voterA, 2))
	require.NoError(t, e.AddShareholder(reg, "b", voterB, 2))
	require.NoError(t, e.AddShareholder(reg, "c", voterC, 1))
	return e
}

func TestResultsRankingAndTies(t *testing.T) {
	a := require.New(t)
	e := tallyElection(t)
	ts := NewTallyService(nil)

	res := ts.Results(e, 50)
	a.Equal(models.PhaseRegistration, res.Status)
	a.Empty(res.Winners)
	a.Zero(res.Turnout)

	_, err := e.Vote(election.Msg{Sender: voterA, Timestamp: 150}, 1)
	a.NoError(err)
	_, err = e.Vote(election.Msg{Sender: voterB, Timestamp: 150}, 3)
	a.NoError(err)

	res = ts.Results(e, 150)
	a.Equal([]uint64{1, 3}, res.Winners)
	a.Equal(uint64(4), res.TotalCast)
	a.Equal(uint64(5), res.TotalShares)
	a.InDelta(0.8, res.Turnout, 1e-9)

	a.Equal(1, res.Proposals[0].Rank)
	a.Equal(1, res.Proposals[1].Rank)
	a.Equal(uint64(2), res.Proposals[2].ID)
	a.Equal(3, res.Proposals[2].Rank)
	a.InDelta(0.5, res.Proposals[0].Share, 1e-9)
}

func TestSealedTally(t *testing.T) {
	a := require.New(t)
	e := tallyElection(t)

	sealer := encryption.NewPaillierAdapter(512)
	a.NoError(sealer.Initialize())
	ts := NewTallyService(sealer)

	ev, err := e.Vote(election.Msg{Sender: voterA, Timestamp: 150}, 2)
	a.NoError(err)
	a.NoError(ts.Record(ev))
	ev, err = e.Delegate(election.Msg{Sender: voterC, Timestamp: 150}, voterA)
	a.NoError(err)
	a.NoError(ts.Record(ev))

	v, err := ts.Verify(e)
	a.NoError(err)
	a.True(v.IsValid)
	a.Equal("Paillier-512", v.Scheme)

	// A count that was never sealed does not verify.
	_, err = e.Vote(election.Msg{Sender: voterB, Timestamp: 150}, 2)
	a.NoError(err)
	v, err = ts.Verify(e)
	a.NoError(err)
	a.False(v.IsValid)
	a.False(v.Proposals[2])
	a.True(v.Proposals[1])

	a.NoError(ts.Seed(e))
	v, err = ts.Verify(e)
	a.NoError(err)
	a.True(v.IsValid)
}

func TestSealedTallyDisabled(t *testing.T) {
	ts := NewTallyService(nil)
	require.NoError(t, ts.Record(&election.VoteCast{ProposalID: 1, Weight: 1}))
	_, err := ts.Verify(tallyElection(t))
	require.ErrorIs(t, err, ErrSealedTallyDisabled)
}
