package notify

import (
	"sync"

	"github.com/codeaudit/corda/internal/ledger"
)

// DefaultCapacity is the per-observer queue capacity.
const DefaultCapacity = 1024

// updateQueue is a bounded FIFO of updates for one observer.
// When full, the oldest update is dropped to make room for the newest.
//
// The queue uses a channel for signaling so the delivery loop can wait
// without holding the lock.
type updateQueue struct {
	mu       sync.Mutex
	updates  []ledger.Update
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int
	closed   bool
	signal   chan struct{} // Signals update availability (buffered, size 1)

	dropped int64
}

func newUpdateQueue(capacity int) *updateQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &updateQueue{
		updates:  make([]ledger.Update, capacity),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds an update, dropping the oldest if the queue is full.
// It reports the dropped update, if any. Never blocks.
// Returns ok=false if the queue is closed.
func (q *updateQueue) Enqueue(u ledger.Update) (dropped *ledger.Update, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, false
	}

	if q.count >= q.capacity {
		old := q.updates[q.tail]
		dropped = &old
		q.updates[q.tail] = ledger.Update{}
		q.tail = (q.tail + 1) % q.capacity
		q.count--
		q.dropped++
	}

	q.updates[q.head] = u
	q.head = (q.head + 1) % q.capacity
	q.count++

	// Non-blocking - buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return dropped, true
}

// TryDequeue removes the oldest update without blocking.
func (q *updateQueue) TryDequeue() (ledger.Update, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return ledger.Update{}, false
	}
	u := q.updates[q.tail]
	// Release references to entries held by the slot.
	q.updates[q.tail] = ledger.Update{}
	q.tail = (q.tail + 1) % q.capacity
	q.count--
	return u, true
}

// Wait returns a channel that signals when updates may be available.
// The channel is closed when the queue is closed.
func (q *updateQueue) Wait() <-chan struct{} {
	return q.signal
}

// Drained reports whether the queue is closed and empty.
func (q *updateQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && q.count == 0
}

// Len returns the current queue length.
func (q *updateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Dropped returns the total number of dropped updates.
func (q *updateQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close stops further enqueues and wakes the delivery loop.
func (q *updateQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
