package op

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// A Process identifies a logical single-threaded client in a test.
//
// Processes are distinct from goroutines: a worker goroutine may serve a
// sequence of process identities over its lifetime, but a process identity is
// only ever served by one goroutine at a time. Worker processes are numbered
// from 0. The nemesis uses the reserved Nemesis identity.
type Process int

// Nemesis is the reserved process identity of the fault-injection actor.
const Nemesis Process = -1

// Retire returns the successor identity minted when a process observes an
// indeterminate outcome. The live identities always remain 0..concurrency-1
// modulo concurrency, while every minted identity is globally unique.
func (p Process) Retire(concurrency int) Process {
	return p + Process(concurrency)
}

func (p Process) String() string {
	if p == Nemesis {
		return ":nemesis"
	}
	return strconv.Itoa(int(p))
}

// MarshalJSON renders the nemesis identity with its conventional spelling so
// that persisted histories remain readable by external analyzers.
func (p Process) MarshalJSON() ([]byte, error) {
	if p == Nemesis {
		return json.Marshal(":nemesis")
	}
	return json.Marshal(int(p))
}

func (p *Process) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != ":nemesis" {
			return fmt.Errorf("op: unknown process %q", s)
		}
		*p = Nemesis
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = Process(n)
	return nil
}

// The Type of an operation record.
type Type string

const (
	// Invoke marks the start of an operation.
	Invoke Type = "invoke"
	// Ok marks a completion whose effect is known to have happened.
	Ok Type = "ok"
	// Fail marks a completion whose effect is known not to have happened.
	Fail Type = "fail"
	// Info marks an indeterminate completion, or a nemesis event.
	Info Type = "info"
)

// Completion reports whether t is a legal completion type.
func (t Type) Completion() bool {
	return t == Ok || t == Fail || t == Info
}

// An Op is a single record in a history: either the invocation of an
// operation by a process or its completion.
//
// Time is measured in monotonic nanoseconds since the start of the test.
// Index is assigned once after the case has ended and is -1 before that.
type Op struct {
	Process Process       `json:"process"`
	Type    Type          `json:"type"`
	F       string        `json:"f"`
	Value   any           `json:"value,omitempty"`
	Time    time.Duration `json:"time"`
	Error   string        `json:"error,omitempty"`
	Index   int           `json:"index"`
}

// Invocation builds the invocation record for o as issued by process p at
// time t, leaving the index unassigned.
func (o Op) Invocation(p Process, t time.Duration) Op {
	o.Process = p
	o.Type = Invoke
	o.Time = t
	o.Index = -1
	return o
}

func (o Op) String() string {
	s := fmt.Sprintf("%v\t%v\t%v", o.Process, o.Type, o.F)
	if o.Value != nil {
		s += fmt.Sprintf("\t%v", o.Value)
	}
	if o.Error != "" {
		s += fmt.Sprintf("\t%v", o.Error)
	}
	return s
}
