package havoc

import (
	"context"
	"fmt"

	"github.com/pingcap/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"havoc/barrier"
	"havoc/history"
	"havoc/op"
)

// runCase runs one test case: the nemesis and all workers against a fresh
// history, which is registered as active for the duration of the case.
//
// It returns the history and the first worker failure, if any. Log files are
// collected before returning; on the failure path collection is left to the
// DB stage's emergency snarf so files are not downloaded twice.
func (t *Test) runCase(ctx context.Context) (*history.History, error) {
	h := history.New()
	t.hist = h
	t.active.Add(h)
	defer t.active.Remove(h)

	err := t.withNemesis(ctx, func() error {
		n := t.concurrency()
		bar := barrier.New(n)
		t.log.Info("starting workers", zap.Int("concurrency", n))

		g := new(errgroup.Group)
		for i := 0; i < n; i++ {
			w := &worker{
				id:   i,
				node: t.workerNode(i),
				t:    t,
				hist: h,
				bar:  bar,
				log:  t.log.With(zap.Int("worker", i)),
			}
			g.Go(func() error {
				return w.run(ctx)
			})
		}
		return g.Wait()
	})
	if err != nil {
		return h, err
	}

	t.snarfLogs(ctx)
	return h, nil
}

// workerNode assigns nodes to workers round robin. With no nodes every
// worker gets the empty node name.
func (t *Test) workerNode(i int) string {
	if len(t.Nodes) == 0 {
		return ""
	}
	return t.Nodes[i%len(t.Nodes)]
}

// withNemesis runs the body with the nemesis active.
//
// The nemesis is set up before any worker starts, so its effects are
// reproducible, and its supervisor loop runs alongside the workers. On body
// exit, success or failure, the supervisor is awaited and the nemesis torn
// down. Teardown failures never mask the body's error.
func (t *Test) withNemesis(ctx context.Context, body func() error) error {
	if err := t.Nemesis.Setup(ctx, t); err != nil {
		return errors.Annotate(err, "nemesis setup")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.nemesisLoop(ctx)
	}()

	err := body()

	<-done
	if terr := t.Nemesis.Teardown(ctx, t); terr != nil {
		t.log.Warn("nemesis teardown failed", zap.Error(terr))
	}
	return err
}

// nemesisLoop drains the generator for the nemesis process, fanning each
// event into every history active at the moment of its invocation.
//
// The active set is read once per event, so invocation and completion reach
// exactly the same histories. The nemesis is best effort: a failing
// invocation is recorded as a crash in the affected histories and the loop
// moves on.
func (t *Test) nemesisLoop(ctx context.Context) {
	log := t.log.With(zap.Stringer("process", op.Nemesis))
	for ctx.Err() == nil {
		next, err := t.Generator.Next(ctx, t.genCtx, op.Nemesis)
		if err != nil {
			log.Warn("nemesis generator failed", zap.Error(err))
			return
		}
		if next == nil {
			return
		}

		inv := *next
		inv.Process = op.Nemesis
		inv.Type = op.Info
		inv.Time = t.since()
		inv.Index = -1

		active := t.active.Snapshot()
		for _, h := range active {
			h.Append(inv)
		}
		log.Debug("invoke", zap.String("f", inv.F))

		comp, ierr := t.Nemesis.Invoke(ctx, t, inv)
		if ierr != nil {
			synth := inv
			synth.Error = "crashed: " + ierr.Error()
			synth.Time = t.since()
			for _, h := range active {
				h.Append(synth)
			}
			log.Warn("nemesis crashed", zap.String("f", inv.F), zap.Error(ierr))
			continue
		}
		if comp.Type != op.Info || comp.Process != op.Nemesis || comp.F != inv.F {
			synth := inv
			synth.Error = fmt.Sprintf("crashed: invalid completion %v %v %v",
				comp.Process, comp.Type, comp.F)
			synth.Time = t.since()
			for _, h := range active {
				h.Append(synth)
			}
			log.Warn("nemesis returned an invalid completion",
				zap.String("f", inv.F),
				zap.String("type", string(comp.Type)))
			continue
		}

		comp.Time = t.since()
		comp.Index = -1
		for _, h := range active {
			h.Append(comp)
		}
		log.Debug("complete", zap.String("f", comp.F))
	}
}
