package txnmux

import (
	"sync"

	"github.com/roach88/ddnet/internal/ir"
)

// item is one queued transaction and the input it arrived on.
type item struct {
	source int
	txn    ir.Txn
}

// txnQueue is a thread-safe FIFO queue of transactions.
//
// The queue is unbounded so producers (network connections, file readers)
// never block on a slow consumer. Arrival order at Enqueue is the
// application order.
//
// The queue uses a channel for signaling so the writer goroutine can wait
// without polling.
type txnQueue struct {
	mu     sync.Mutex
	items  []item
	closed bool
	signal chan struct{} // Signals item availability (buffered, size 1)
}

func newTxnQueue() *txnQueue {
	return &txnQueue{
		items:  make([]item, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an item to the back of the queue.
// Returns false if the queue is closed.
func (q *txnQueue) Enqueue(it item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, it)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front item without blocking.
func (q *txnQueue) TryDequeue() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return item{}, false
	}

	it := q.items[0]
	// Drop the reference so the backing array does not pin update slices.
	q.items[0] = item{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return it, true
}

// Wait returns a channel that signals when items may be available.
// The channel is closed when the queue is closed.
func (q *txnQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *txnQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drained reports whether the queue is closed and empty.
func (q *txnQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

// Close rejects further items and wakes all waiters. Queued items can still
// be dequeued.
func (q *txnQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
