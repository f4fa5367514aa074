package gen

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"havoc/op"
)

// Context carries the test-wide facts a generator may consult.
//
// Threads is the set of known process identities before workers start: the
// nemesis plus the initial worker processes 0..Concurrency-1. Retired worker
// identities map back onto the initial ones modulo Concurrency.
type Context struct {
	Threads     []op.Process
	Concurrency int
	Start       time.Time
}

// NewContext builds the generator context for a test with the given
// concurrency and start time.
func NewContext(concurrency int, start time.Time) Context {
	threads := make([]op.Process, 0, concurrency+1)
	threads = append(threads, op.Nemesis)
	for i := 0; i < concurrency; i++ {
		threads = append(threads, op.Process(i))
	}
	return Context{
		Threads:     threads,
		Concurrency: concurrency,
		Start:       start,
	}
}

// A Generator is a source of operations keyed by process.
//
// Next returns the next operation for process p, or nil to signal the end of
// the stream for that process. Generators must be safe under concurrent calls
// from all workers and the nemesis.
type Generator interface {
	Next(ctx context.Context, gctx Context, p op.Process) (*op.Op, error)
}

// Func adapts a function to the Generator interface.
type Func func(ctx context.Context, gctx Context, p op.Process) (*op.Op, error)

func (f Func) Next(ctx context.Context, gctx Context, p op.Process) (*op.Op, error) {
	return f(ctx, gctx, p)
}

type limit struct {
	mu   sync.Mutex
	left int
	gen  Generator
}

// Limit caps gen at n operations across all processes, then ends the stream.
func Limit(n int, gen Generator) Generator {
	return &limit{left: n, gen: gen}
}

func (l *limit) Next(ctx context.Context, gctx Context, p op.Process) (*op.Op, error) {
	l.mu.Lock()
	if l.left <= 0 {
		l.mu.Unlock()
		return nil, nil
	}
	l.left--
	l.mu.Unlock()
	return l.gen.Next(ctx, gctx, p)
}

type mix struct {
	mu   sync.Mutex
	rnd  *rand.Rand
	gens []Generator
}

// Mix picks uniformly at random among gens for every operation. The stream
// ends when the picked generator ends.
func Mix(seed int64, gens ...Generator) Generator {
	return &mix{
		rnd:  rand.New(rand.NewSource(seed)),
		gens: gens,
	}
}

func (m *mix) Next(ctx context.Context, gctx Context, p op.Process) (*op.Op, error) {
	m.mu.Lock()
	g := m.gens[m.rnd.Intn(len(m.gens))]
	m.mu.Unlock()
	return g.Next(ctx, gctx, p)
}

type seq struct {
	mu   sync.Mutex
	gens []Generator
}

// Seq drains each generator in turn: operations come from the first
// generator until it ends, then from the second, and so on.
func Seq(gens ...Generator) Generator {
	return &seq{gens: gens}
}

func (s *seq) Next(ctx context.Context, gctx Context, p op.Process) (*op.Op, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.gens) > 0 {
		o, err := s.gens[0].Next(ctx, gctx, p)
		if err != nil {
			return nil, err
		}
		if o != nil {
			return o, nil
		}
		s.gens = s.gens[1:]
	}
	return nil, nil
}

type stagger struct {
	mu   sync.Mutex
	rnd  *rand.Rand
	mean time.Duration
	gen  Generator
}

// Stagger delays each operation by a uniformly random duration up to twice
// the mean, spreading request load over time.
func Stagger(mean time.Duration, seed int64, gen Generator) Generator {
	return &stagger{
		rnd:  rand.New(rand.NewSource(seed)),
		mean: mean,
		gen:  gen,
	}
}

func (s *stagger) Next(ctx context.Context, gctx Context, p op.Process) (*op.Op, error) {
	s.mu.Lock()
	d := time.Duration(s.rnd.Int63n(int64(2 * s.mean)))
	s.mu.Unlock()
	select {
	case <-time.After(d):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.gen.Next(ctx, gctx, p)
}

// Repeat yields a copy of the template operation forever. Combine with Limit
// to bound the stream.
func Repeat(template op.Op) Generator {
	return Func(func(ctx context.Context, gctx Context, p op.Process) (*op.Op, error) {
		o := template
		return &o, nil
	})
}

// Void ends every stream immediately.
func Void() Generator {
	return Func(func(ctx context.Context, gctx Context, p op.Process) (*op.Op, error) {
		return nil, nil
	})
}
