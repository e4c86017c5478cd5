package partition

import "sync"

// reply carries the outcome of a proposed command back to the proposer.
type reply struct {
	result Result
	err    error
}

// proposal is a queued command. reply is nil for fire-and-forget commands.
type proposal struct {
	cmd   Command
	reply chan reply
}

// commandQueue is a thread-safe FIFO queue of proposals.
//
// The queue is unbounded so that producers (routers, timers, the network
// handler) never block on a busy partition.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type commandQueue struct {
	mu        sync.Mutex
	proposals []proposal
	closed    bool
	signal    chan struct{} // Signals proposal availability (buffered, size 1)
}

func newCommandQueue() *commandQueue {
	return &commandQueue{
		proposals: make([]proposal, 0, 64),
		signal:    make(chan struct{}, 1),
	}
}

// Enqueue adds a proposal to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *commandQueue) Enqueue(p proposal) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.proposals = append(q.proposals, p)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front proposal without blocking.
// Returns (proposal{}, false) if the queue is empty.
func (q *commandQueue) TryDequeue() (proposal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.proposals) == 0 {
		return proposal{}, false
	}

	p := q.proposals[0]

	// Clear the slot so the backing array does not retain command payloads.
	q.proposals[0] = proposal{}

	if len(q.proposals) == 1 {
		q.proposals = q.proposals[:0]
	} else {
		q.proposals = q.proposals[1:]
	}

	return p, true
}

// Wait returns a channel that signals when proposals may be available.
func (q *commandQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.proposals)
}

// Closed reports whether Close has been called.
func (q *commandQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting proposals and wakes any waiter. Proposals still
// queued are returned so their proposers can be answered.
func (q *commandQueue) Close() []proposal {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.signal)
	rest := q.proposals
	q.proposals = nil
	return rest
}
