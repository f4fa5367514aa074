package havoc

import (
	"context"

	"github.com/pingcap/errors"
	"go.uber.org/zap"

	"havoc/barrier"
	"havoc/history"
	"havoc/op"
)

// A worker drives one logical process at a time through the generator.
//
// The worker goroutine outlives the processes it serves: whenever an
// operation ends indeterminately the current process identity is retired and
// the worker continues under the successor identity.
type worker struct {
	id   int
	node string
	t    *Test
	hist *history.History
	bar  *barrier.Barrier
	log  *zap.Logger
}

// run executes the worker's lifecycle: open a client, rendezvous with the
// other workers, drain the generator, rendezvous again, close the client.
//
// A failure in the generator or in completion validation is captured so the
// worker still performs its barriers and close, and returned afterwards so
// the case observes it.
func (w *worker) run(ctx context.Context) error {
	t := w.t
	proc := op.Process(w.id)

	client, openErr := t.Client.Open(ctx, t, w.node)

	// Arrive at the setup barrier even when the open failed, so the other
	// workers are not left waiting. No worker issues an operation before
	// every worker holds a client.
	w.bar.Await()

	var failure error
	if openErr != nil {
		failure = errors.Annotatef(openErr, "worker %v: opening client on %q", w.id, w.node)
	}

	for failure == nil {
		next, err := t.Generator.Next(ctx, t.genCtx, proc)
		if err != nil {
			failure = errors.Annotatef(err, "worker %v: generator", w.id)
			break
		}
		if next == nil {
			break
		}

		inv := next.Invocation(proc, t.since())
		w.hist.Append(inv)
		w.log.Debug("invoke",
			zap.Stringer("process", proc),
			zap.String("f", inv.F))

		comp, err := client.Invoke(ctx, t, inv)
		if err != nil {
			// The connection failed mid-operation: the effect may or
			// may not have happened.
			synth := inv
			synth.Type = op.Info
			synth.Error = "indeterminate: " + err.Error()
			synth.Time = t.since()
			w.hist.Append(synth)
			w.log.Debug("indeterminate",
				zap.Stringer("process", proc),
				zap.String("f", inv.F),
				zap.Error(err))
			proc, client, failure = w.retire(ctx, proc, client)
			continue
		}

		if !comp.Type.Completion() {
			failure = errors.Errorf("worker %v: client returned type %q for %v",
				w.id, comp.Type, inv.F)
			break
		}
		if comp.Process != inv.Process || comp.F != inv.F {
			failure = errors.Errorf("worker %v: completion %v %v does not match invocation %v %v",
				w.id, comp.Process, comp.F, inv.Process, inv.F)
			break
		}

		comp.Time = t.since()
		comp.Index = -1
		w.hist.Append(comp)
		w.log.Debug("complete",
			zap.Stringer("process", proc),
			zap.String("f", comp.F),
			zap.String("type", string(comp.Type)))

		if comp.Type == op.Info {
			proc, client, failure = w.retire(ctx, proc, client)
		}
	}

	w.bar.Await()

	if c, ok := client.(ClosableClient); ok {
		if err := c.Close(ctx, t); err != nil {
			w.log.Warn("closing client failed",
				zap.Int("worker", w.id),
				zap.Error(err))
		}
	}
	return failure
}

// retire mints the successor identity for a process whose operation ended
// indeterminately and, when the client can be closed, swaps it for a fresh
// one against the same node.
//
// The successor is old + concurrency, which keeps every minted identity
// globally unique while the set of live identities stays at concurrency.
func (w *worker) retire(ctx context.Context, proc op.Process, client Client) (op.Process, Client, error) {
	next := proc.Retire(w.t.concurrency())

	c, ok := client.(ClosableClient)
	if !ok {
		// Deprecated: the successor process inherits the retired
		// process's connection.
		w.log.Warn("client is not closable, successor process keeps its connection",
			zap.Stringer("retired", proc),
			zap.Stringer("process", next))
		return next, client, nil
	}

	if err := c.Close(ctx, w.t); err != nil {
		w.log.Warn("closing client failed",
			zap.Stringer("retired", proc),
			zap.Error(err))
	}
	fresh, err := w.t.Client.Open(ctx, w.t, w.node)
	if err != nil {
		return next, nil, errors.Annotatef(err, "worker %v: reopening client on %q", w.id, w.node)
	}
	return next, fresh, nil
}
