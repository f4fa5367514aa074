package checking

import (
	"fmt"

	"havoc/op"
)

// A Predicate is a property evaluated on a complete history.
//
// It returns nil if the property holds, and an error describing the
// counterexample otherwise.
type Predicate func(h []op.Op) error

// A HistoryChecker verifies a list of predicates against the history.
//
// It stops at the first broken predicate and reports it in the result.
type HistoryChecker struct {
	predicates []Predicate
}

// Create a new HistoryChecker from the provided predicates.
func NewHistoryChecker(predicates ...Predicate) *HistoryChecker {
	return &HistoryChecker{predicates: predicates}
}

func (hc *HistoryChecker) Check(info Info, model any, h []op.Op) (*Result, error) {
	for i, pred := range hc.predicates {
		if err := pred(h); err != nil {
			return &Result{
				Valid: false,
				Error: err.Error(),
				Details: map[string]any{
					"predicate": i,
				},
			}, nil
		}
	}
	return &Result{Valid: true}, nil
}

// WellFormed returns the predicates every history produced by a run must
// satisfy, independent of the system under test.
func WellFormed() []Predicate {
	return []Predicate{
		CompletionsMatchInvocations,
		ProcessesSingleThreaded,
		IndicesDense,
		NemesisAlwaysInfo,
	}
}

// CompletionsMatchInvocations verifies that every worker completion has
// exactly one preceding invocation with the same process and function and no
// intervening operation of the same process.
func CompletionsMatchInvocations(h []op.Op) error {
	pending := map[op.Process]op.Op{}
	for i, o := range h {
		if o.Process == op.Nemesis {
			continue
		}
		switch o.Type {
		case op.Invoke:
			if prev, ok := pending[o.Process]; ok {
				return fmt.Errorf("process %v invoked %v at %v while %v is still in flight",
					o.Process, o.F, i, prev.F)
			}
			pending[o.Process] = o
		case op.Ok, op.Fail, op.Info:
			inv, ok := pending[o.Process]
			if !ok {
				return fmt.Errorf("process %v completed %v at %v without an invocation",
					o.Process, o.F, i)
			}
			if inv.F != o.F {
				return fmt.Errorf("process %v invoked %v but completed %v at %v",
					o.Process, inv.F, o.F, i)
			}
			delete(pending, o.Process)
		default:
			return fmt.Errorf("operation %v has unknown type %q", i, o.Type)
		}
	}
	return nil
}

// ProcessesSingleThreaded verifies that for every process the operations form
// a strict invoke, complete, invoke, complete alternation.
func ProcessesSingleThreaded(h []op.Op) error {
	inFlight := map[op.Process]bool{}
	for i, o := range h {
		if o.Process == op.Nemesis {
			continue
		}
		invoking := o.Type == op.Invoke
		if invoking == inFlight[o.Process] {
			return fmt.Errorf("process %v is not single threaded at operation %v", o.Process, i)
		}
		inFlight[o.Process] = invoking
	}
	return nil
}

// IndicesDense verifies that indices are 0..N-1 in history order with no
// gaps.
func IndicesDense(h []op.Op) error {
	for i, o := range h {
		if o.Index != i {
			return fmt.Errorf("operation %v carries index %v", i, o.Index)
		}
	}
	return nil
}

// NemesisAlwaysInfo verifies that every nemesis record has type info.
func NemesisAlwaysInfo(h []op.Op) error {
	for i, o := range h {
		if o.Process == op.Nemesis && o.Type != op.Info {
			return fmt.Errorf("nemesis operation %v has type %q", i, o.Type)
		}
	}
	return nil
}
