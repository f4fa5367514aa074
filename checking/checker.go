package checking

import (
	"fmt"
	"time"

	"havoc/op"
)

// Info describes the test a history came from, for checkers that want to
// label their findings.
type Info struct {
	Name  string
	Nodes []string
	Start time.Time
}

// A Result is the outcome of checking one history.
//
// Valid is true when every property the checker verifies holds. Details may
// carry checker-specific findings.
type Result struct {
	Valid   bool           `json:"valid"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Response returns the validity of the result and a description of it.
func (r *Result) Response() (bool, string) {
	if r.Valid {
		return true, "all properties hold"
	}
	if r.Error != "" {
		return false, r.Error
	}
	return false, "property violated"
}

// The Checker verifies that properties hold for a complete, indexed history.
type Checker interface {
	Check(info Info, model any, h []op.Op) (*Result, error)
}

// Safe invokes the checker and converts any returned error or panic into an
// invalid result, so that a broken checker can never crash a test run.
func Safe(c Checker, info Info, model any, h []op.Op) (res *Result) {
	defer func() {
		if p := recover(); p != nil {
			res = &Result{
				Valid: false,
				Error: fmt.Sprintf("checker panicked: %v", p),
			}
		}
	}()

	res, err := c.Check(info, model, h)
	if err != nil {
		return &Result{Valid: false, Error: err.Error()}
	}
	if res == nil {
		return &Result{Valid: false, Error: "checker returned no result"}
	}
	return res
}
