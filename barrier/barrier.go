package barrier

import "sync"

// A Barrier is a reusable N-way rendezvous.
//
// A call to Await blocks until N goroutines have arrived, then releases them
// all and resets, so the same Barrier can separate several consecutive
// phases.
//
// A nil *Barrier is the no-op sentinel: every arrival returns immediately.
// Tests configured with zero nodes use the sentinel so that degenerate
// dry runs never block.
type Barrier struct {
	mu   sync.Mutex
	cond *sync.Cond

	parties int
	waiting int
	round   int
}

// Create a new Barrier releasing after parties arrivals.
//
// If parties is less than two the sentinel is returned, since a rendezvous
// of one never needs to wait.
func New(parties int) *Barrier {
	if parties < 2 {
		return nil
	}
	b := &Barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Await blocks until all parties have arrived at the barrier.
func (b *Barrier) Await() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	round := b.round
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.round++
		b.cond.Broadcast()
		return
	}
	for round == b.round {
		b.cond.Wait()
	}
}
