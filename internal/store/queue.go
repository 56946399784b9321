package store

import "sync"

type item struct {
	entry   Entry
	flushed chan struct{} // set on flush markers only
}

// queue is an unbounded FIFO between the graph hooks, which must not
// block, and the journal writer.
type queue struct {
	mu     sync.Mutex
	items  []item
	closed bool
	signal chan struct{} // buffered, size 1
}

func newQueue() *queue {
	return &queue{
		items:  make([]item, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// push appends it. Returns false once the queue is closed.
func (q *queue) push(it item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, it)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// drain takes every queued item. open is false once the queue is closed.
func (q *queue) drain() (items []item, open bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items = q.items
	q.items = make([]item, 0, cap(items))
	return items, !q.closed
}

// wait signals that items may be available. Closed queues signal forever.
func (q *queue) wait() <-chan struct{} {
	return q.signal
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
