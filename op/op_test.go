package op

import (
	"encoding/json"
	"testing"
	"time"
)

func TestProcessRetire(t *testing.T) {
	tests := []struct {
		proc        Process
		concurrency int
		want        Process
	}{
		{0, 5, 5},
		{3, 5, 8},
		{8, 5, 13},
		{0, 1, 1},
	}
	for _, test := range tests {
		if got := test.proc.Retire(test.concurrency); got != test.want {
			t.Errorf("Retire(%v) on %v: got %v, want %v", test.concurrency, test.proc, got, test.want)
		}
	}
}

func TestProcessString(t *testing.T) {
	if got := Nemesis.String(); got != ":nemesis" {
		t.Errorf("Nemesis.String(): got %q, want %q", got, ":nemesis")
	}
	if got := Process(7).String(); got != "7" {
		t.Errorf("Process(7).String(): got %q, want %q", got, "7")
	}
}

func TestProcessJSON(t *testing.T) {
	tests := []struct {
		proc Process
		json string
	}{
		{Nemesis, `":nemesis"`},
		{Process(0), `0`},
		{Process(12), `12`},
	}
	for _, test := range tests {
		data, err := json.Marshal(test.proc)
		if err != nil {
			t.Fatalf("marshalling %v: %v", test.proc, err)
		}
		if string(data) != test.json {
			t.Errorf("marshalling %v: got %s, want %s", test.proc, data, test.json)
		}

		var back Process
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshalling %s: %v", data, err)
		}
		if back != test.proc {
			t.Errorf("round trip of %v: got %v", test.proc, back)
		}
	}
}

func TestTypeCompletion(t *testing.T) {
	tests := []struct {
		typ  Type
		want bool
	}{
		{Invoke, false},
		{Ok, true},
		{Fail, true},
		{Info, true},
	}
	for _, test := range tests {
		if got := test.typ.Completion(); got != test.want {
			t.Errorf("%v.Completion(): got %v, want %v", test.typ, got, test.want)
		}
	}
}

func TestInvocation(t *testing.T) {
	template := Op{F: "read", Value: 42, Type: Ok, Process: 99, Index: 7}
	inv := template.Invocation(3, 5*time.Second)

	if inv.Process != 3 {
		t.Errorf("invocation process: got %v, want 3", inv.Process)
	}
	if inv.Type != Invoke {
		t.Errorf("invocation type: got %v, want %v", inv.Type, Invoke)
	}
	if inv.Time != 5*time.Second {
		t.Errorf("invocation time: got %v, want 5s", inv.Time)
	}
	if inv.Index != -1 {
		t.Errorf("invocation index: got %v, want -1", inv.Index)
	}
	if inv.F != "read" || inv.Value != 42 {
		t.Errorf("invocation payload changed: got %v %v", inv.F, inv.Value)
	}
}
