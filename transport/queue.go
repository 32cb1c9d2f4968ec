package transport

import "sync"

// Unbounded FIFO of messages; pop blocks until an item arrives or the queue is closed.
type queue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items [][]byte
	err   error
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(b []byte) {
	q.mu.Lock()
	q.items = append(q.items, b)
	q.mu.Unlock()
	q.cond.Signal()
}

// Items queued before close are still delivered.
func (q *queue) pop() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && q.err == nil {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, q.err
	}
	b := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return b, nil
}

func (q *queue) close(err error) {
	q.mu.Lock()
	if q.err == nil {
		q.err = err
	}
	q.mu.Unlock()
	q.cond.Broadcast()
}
