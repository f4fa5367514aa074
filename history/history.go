package history

import (
	"sync"

	"havoc/op"
)

// A History is the totally ordered, append-only log of operations produced by
// one test case.
//
// Many goroutines append concurrently: every worker appends its own
// invocations and completions, and the nemesis appends to every history that
// is registered as active. The order of the log is the real-time order in
// which appends were performed.
type History struct {
	mu  sync.Mutex
	ops []op.Op
}

// Create a new, empty History.
func New() *History {
	return &History{
		ops: make([]op.Op, 0),
	}
}

// Append adds o to the end of the history and returns it unchanged.
func (h *History) Append(o op.Op) op.Op {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ops = append(h.ops, o)
	return o
}

// Len returns the number of operations recorded so far.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ops)
}

// Ops returns a copy of the recorded operations in append order.
func (h *History) Ops() []op.Op {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]op.Op, len(h.ops))
	copy(out, h.ops)
	return out
}

// Index assigns each recorded operation a strictly increasing index 0..N-1
// in append order and returns a copy of the indexed operations.
//
// Must only be called after the case has ended and all writers have stopped.
func (h *History) Index() []op.Op {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.ops {
		h.ops[i].Index = i
	}
	out := make([]op.Op, len(h.ops))
	copy(out, h.ops)
	return out
}

// An ActiveSet is the registry of histories currently accepting nemesis
// events.
//
// Histories are added when their case starts and removed when it ends.
// The nemesis reads the set once per event with Snapshot, so a single event
// fans out to exactly the histories that were active at that moment.
type ActiveSet struct {
	mu  sync.Mutex
	set map[*History]struct{}
}

// Create a new, empty ActiveSet.
func NewActiveSet() *ActiveSet {
	return &ActiveSet{
		set: make(map[*History]struct{}),
	}
}

// Add registers h as active.
func (a *ActiveSet) Add(h *History) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set[h] = struct{}{}
}

// Remove unregisters h. Removing a history that is not registered is a no-op.
func (a *ActiveSet) Remove(h *History) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.set, h)
}

// Snapshot returns the currently active histories.
//
// The returned slice is not affected by later Add or Remove calls.
func (a *ActiveSet) Snapshot() []*History {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*History, 0, len(a.set))
	for h := range a.set {
		out = append(out, h)
	}
	return out
}
