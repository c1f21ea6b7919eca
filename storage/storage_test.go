package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"election-ledger/logging"
	"election-ledger/models"
)

func testChain(n int) []*models.Block {
	blocks := make([]*models.Block, 0, n)
	prev := make([]byte, 32)
	for i := 0; i < n; i++ {
		b := models.NewBlock(uint64(i), int64(1000+i), []byte(fmt.Sprintf(`{"i":%d}`, i)), prev, 0)
		blocks = append(blocks, b)
		prev = b.Hash
	}
	return blocks
}

func testBlockStore(t *testing.T, open func(dir string) (BlockStore, error)) {
	a := require.New(t)
	dir := t.TempDir()

	store, err := open(dir)
	a.NoError(err)
	loaded, err := store.LoadChain()
	a.NoError(err)
	a.Empty(loaded)

	chain := testChain(3)
	for _, b := range chain {
		a.NoError(store.SaveBlock(b))
	}
	a.ErrorIs(store.SaveBlock(chain[1]), ErrBlockOrder)
	a.NoError(store.Close())

	reopened, err := open(dir)
	a.NoError(err)
	defer reopened.Close()

	loaded, err = reopened.LoadChain()
	a.NoError(err)
	a.Len(loaded, 3)
	for i := range chain {
		a.Equal(chain[i].Hash, loaded[i].Hash)
		a.Equal(chain[i].PrevHash, loaded[i].PrevHash)
		a.Equal(chain[i].Data, loaded[i].Data)
		a.Equal(chain[i].Nonce, loaded[i].Nonce)
		a.Equal(chain[i].Timestamp, loaded[i].Timestamp)
	}
	a.NoError(models.ValidateChain(loaded))
}

func TestJSONStore(t *testing.T) {
	testBlockStore(t, func(dir string) (BlockStore, error) { return Open("json", dir) })
}

func TestSQLiteStore(t *testing.T) {
	testBlockStore(t, func(dir string) (BlockStore, error) { return Open("sqlite", dir) })
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("postgres", t.TempDir())
	require.Error(t, err)
}

func TestJSONStoreLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveBlock(testChain(1)[0]))

	_, err = os.Stat(filepath.Join(dir, chainFileName+".tmp"))
	require.True(t, os.IsNotExist(err))
}

func TestSnapshotStorageRotation(t *testing.T) {
	a := require.New(t)
	dir := t.TempDir()

	s, err := NewSnapshotStorage(dir, logging.NewLogger())
	a.NoError(err)

	latest, err := s.LoadLatest()
	a.NoError(err)
	a.Nil(latest)

	addr := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	for h := uint64(1); h <= 7; h++ {
		a.NoError(s.Save(&models.Snapshot{
			Height:    h,
			BlockHash: []byte{byte(h)},
			State:     models.ElectionState{StartTime: 10, EndTime: 20},
			Nonces:    map[common.Address]uint64{addr: h},
		}))
	}

	files, err := filepath.Glob(filepath.Join(dir, snapshotPattern))
	a.NoError(err)
	a.Len(files, snapshotsKept)

	latest, err = s.LoadLatest()
	a.NoError(err)
	a.Equal(uint64(7), latest.Height)
	a.Equal(uint64(7), latest.Nonces[addr])
	a.Equal(uint64(20), latest.State.EndTime)
}

func TestSnapshotLatestIsHighest(t *testing.T) {
	a := require.New(t)
	dir := t.TempDir()

	s, err := NewSnapshotStorage(dir, logging.NewLogger())
	a.NoError(err)

	// A clock that stepped back wrote the higher snapshot with an earlier stamp.
	write := func(stamp string, height uint64) {
		snap := models.Snapshot{Height: height, BlockHash: []byte{byte(height)}}
		data, err := json.Marshal(snap)
		a.NoError(err)
		name := fmt.Sprintf("election_snapshot_%s_%d.json", stamp, height)
		a.NoError(os.WriteFile(filepath.Join(dir, name), data, 0644))
	}
	write("20250102000000", 3)
	write("20250101000000", 9)

	latest, err := s.LoadLatest()
	a.NoError(err)
	a.Equal(uint64(9), latest.Height)
}
