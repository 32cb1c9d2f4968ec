package commsync

import "sync"

// Barrier is a reusable rendezvous for a fixed number of threads.
type Barrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	n     int
	count int
	gen   uint64
}

func NewBarrier(n int) *Barrier {
	b := &Barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *Barrier) Wait() { b.Arrive(nil, nil) }

// Arrive runs contribute under the barrier lock, then waits for the rest of the generation.
// The last thread to arrive runs complete (also under the lock) before anyone is released.
func (b *Barrier) Arrive(contribute func(), complete func()) {
	b.mu.Lock()
	if contribute != nil {
		contribute()
	}
	gen := b.gen
	b.count++
	if b.count == b.n {
		if complete != nil {
			complete()
		}
		b.count = 0
		b.gen++
		b.cond.Broadcast()
	} else {
		for gen == b.gen {
			b.cond.Wait()
		}
	}
	b.mu.Unlock()
}

// Runs fn under the barrier lock.
func (b *Barrier) locked(fn func()) {
	b.mu.Lock()
	fn()
	b.mu.Unlock()
}
