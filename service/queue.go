package service

import (
	"context"
	"errors"
	"sync"

	"election-ledger/logging"
	"election-ledger/models"
)

var (
	ErrQueueFull    = errors.New("transaction queue is full")
	ErrQueueStopped = errors.New("transaction queue is stopped")
)

// TxApplier applies one transaction. ElectionService implements it.
type TxApplier interface {
	Apply(tx *models.Transaction) (*Commit, error)
}

// TxResult is the outcome of a queued transaction.
type TxResult struct {
	Commit *Commit
	Err    error
}

type txRequest struct {
	tx       *models.Transaction
	resultCh chan<- *TxResult
}

// TxQueue feeds transactions to a single worker in arrival order.
type TxQueue struct {
	applier    TxApplier
	txCh       chan *txRequest
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	log        logging.Logger

	mu      sync.RWMutex
	stopped bool
}

func NewTxQueue(applier TxApplier, queueSize int, log logging.Logger) *TxQueue {
	return &TxQueue{
		applier:    applier,
		txCh:       make(chan *txRequest, queueSize),
		shutdownCh: make(chan struct{}),
		log:        log,
	}
}

// Start begins processing queued transactions
func (q *TxQueue) Start() {
	q.wg.Add(1)
	go q.worker()
}

// Stop waits for the transaction in progress, then fails every request still
// queued with ErrQueueStopped.
func (q *TxQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	close(q.shutdownCh)
	q.wg.Wait()

	for {
		select {
		case req := <-q.txCh:
			respond(req, &TxResult{Err: ErrQueueStopped})
		default:
			return
		}
	}
}

// Queue adds tx to the queue. When the queue is full or stopped the returned
// channel already holds the failure.
func (q *TxQueue) Queue(tx *models.Transaction) <-chan *TxResult {
	resultCh := make(chan *TxResult, 1)
	req := &txRequest{tx: tx, resultCh: resultCh}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.stopped {
		respond(req, &TxResult{Err: ErrQueueStopped})
		return resultCh
	}
	select {
	case q.txCh <- req:
	default:
		q.log.Warnf("Transaction queue is full, rejecting %s from %s", tx.Method, tx.From.Hex())
		respond(req, &TxResult{Err: ErrQueueFull})
	}
	return resultCh
}

// Submit queues tx and waits for its result or for ctx to end. A transaction
// that was already queued still executes if ctx ends first.
func (q *TxQueue) Submit(ctx context.Context, tx *models.Transaction) (*Commit, error) {
	select {
	case res := <-q.Queue(tx):
		return res.Commit, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Depth is the number of transactions waiting to be applied.
func (q *TxQueue) Depth() int {
	return len(q.txCh)
}

func (q *TxQueue) worker() {
	defer q.wg.Done()

	for {
		// Shutdown wins over pending work.
		select {
		case <-q.shutdownCh:
			return
		default:
		}

		select {
		case <-q.shutdownCh:
			return
		case req := <-q.txCh:
			commit, err := q.applier.Apply(req.tx)
			respond(req, &TxResult{Commit: commit, Err: err})
		}
	}
}

func respond(req *txRequest, res *TxResult) {
	req.resultCh <- res
	close(req.resultCh)
}
