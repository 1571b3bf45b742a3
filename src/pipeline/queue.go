package pipeline

import (
	"context"
	"sync"
)

// refQueue buffers discovered build ids without limit so the discovery
// feed never waits for a free detail slot.
type refQueue struct {
	mu     sync.Mutex
	items  []string
	closed bool
	notify chan struct{}
}

func newRefQueue() *refQueue {
	return &refQueue{notify: make(chan struct{}, 1)}
}

func (q *refQueue) push(id string) {
	q.mu.Lock()
	q.items = append(q.items, id)
	q.mu.Unlock()
	q.signal()
}

// close marks the end of discovery. Buffered ids are still handed out.
func (q *refQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *refQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *refQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// next blocks until an id is available. It returns false once the queue is
// closed and empty, ctx is done, or stop is closed.
func (q *refQueue) next(ctx context.Context, stop <-chan struct{}) (string, bool) {
	for {
		select {
		case <-stop:
			return "", false
		default:
		}

		q.mu.Lock()
		if len(q.items) > 0 {
			id := q.items[0]
			q.items[0] = ""
			q.items = q.items[1:]
			q.mu.Unlock()
			return id, true
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return "", false
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			return "", false
		case <-stop:
			return "", false
		}
	}
}
