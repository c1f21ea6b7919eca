package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"election-ledger/logging"
	"election-ledger/models"
)

type recordingApplier struct {
	mu      sync.Mutex
	applied []string
	block   chan struct{}
}

func (r *recordingApplier) Apply(tx *models.Transaction) (*Commit, error) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, tx.ID)
	if tx.Method == "fail" {
		return nil, errors.New("rejected")
	}
	return &Commit{BlockIndex: uint64(len(r.applied))}, nil
}

func TestTxQueueAppliesInOrder(t *testing.T) {
	a := require.New(t)
	applier := &recordingApplier{}
	q := NewTxQueue(applier, 10, logging.NewLogger())
	q.Start()
	defer q.Stop()

	var results []<-chan *TxResult
	for _, id := range []string{"a", "b", "c"} {
		results = append(results, q.Queue(&models.Transaction{ID: id, Method: models.MethodVote}))
	}
	for i, ch := range results {
		res := <-ch
		a.NoError(res.Err)
		a.Equal(uint64(i+1), res.Commit.BlockIndex)
	}
	a.Equal([]string{"a", "b", "c"}, applier.applied)

	_, err := q.Submit(context.Background(), &models.Transaction{ID: "d", Method: "fail"})
	a.EqualError(err, "rejected")
}

func TestTxQueueFull(t *testing.T) {
	applier := &recordingApplier{block: make(chan struct{})}
	q := NewTxQueue(applier, 1, logging.NewLogger())
	q.Start()

	first := q.Queue(&models.Transaction{ID: "1"})
	require.Eventually(t, func() bool { return q.Depth() == 0 }, time.Second, time.Millisecond)
	second := q.Queue(&models.Transaction{ID: "2"})
	require.Equal(t, 1, q.Depth())

	res := <-q.Queue(&models.Transaction{ID: "3"})
	require.ErrorIs(t, res.Err, ErrQueueFull)

	close(applier.block)
	require.NoError(t, (<-first).Err)
	require.NoError(t, (<-second).Err)
	q.Stop()
}

func TestTxQueueStop(t *testing.T) {
	applier := &recordingApplier{block: make(chan struct{})}
	q := NewTxQueue(applier, 4, logging.NewLogger())
	q.Start()

	inFlight := q.Queue(&models.Transaction{ID: "1"})
	require.Eventually(t, func() bool { return q.Depth() == 0 }, time.Second, time.Millisecond)
	waiting := q.Queue(&models.Transaction{ID: "2"})

	done := make(chan struct{})
	go func() {
		q.Stop()
		close(done)
	}()
	<-q.shutdownCh
	close(applier.block)
	<-done

	require.NoError(t, (<-inFlight).Err)
	require.ErrorIs(t, (<-waiting).Err, ErrQueueStopped)
	require.ErrorIs(t, (<-q.Queue(&models.Transaction{ID: "3"})).Err, ErrQueueStopped)
	q.Stop()
}

func TestTxQueueSubmitContext(t *testing.T) {
	applier := &recordingApplier{block: make(chan struct{})}
	q := NewTxQueue(applier, 4, logging.NewLogger())
	q.Start()
	defer q.Stop()
	defer close(applier.block)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Submit(ctx, &models.Transaction{ID: "slow"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
