package havoc

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"havoc/barrier"
	"havoc/checking"
	"havoc/gen"
	"havoc/history"
	"havoc/op"
	"havoc/sessionManager"
	"havoc/store"
)

// A Test is the configuration of one run plus the state built while running
// it.
//
// The configuration fields are read only once Run has started. The runtime
// state, sessions, barrier, active histories, is unexported and stripped from
// the persisted snapshots. History and Results are filled in by Run.
type Test struct {
	// Name labels the run. Named tests have their snapshots persisted;
	// unnamed tests only keep logs, under the run id.
	Name string

	// Nodes lists the cluster's node identifiers.
	Nodes []string

	// Concurrency is the number of logical clients. Zero means one per
	// node.
	Concurrency int

	// SSH holds the remote-shell credentials used to reach the nodes.
	SSH sessionManager.Config

	// Dialer overrides how sessions are established. When nil an SSH
	// dialer built from the credentials is used.
	Dialer sessionManager.Dialer

	OS        OS
	DB        DB
	Client    ClientCreator
	Nemesis   Nemesis
	Generator gen.Generator
	Model     any
	Checker   checking.Checker

	// Dir is the base directory for run artifacts. Defaults to "store".
	Dir string

	// Logger overrides the run's logger. When nil a logger teeing to
	// stderr and the run's log file is built.
	Logger *zap.Logger

	// Runtime state.
	start    time.Time
	runID    uuid.UUID
	log      *zap.Logger
	store    *store.Store
	sessions map[string]sessionManager.Session
	barrier  *barrier.Barrier
	active   *history.ActiveSet
	genCtx   gen.Context
	hist     *history.History

	// Outputs of Run.
	History []op.Op
	Results *checking.Result
}

// Start returns the run's start timestamp.
func (t *Test) Start() time.Time {
	return t.start
}

// RunID returns the unique identity of this run.
func (t *Test) RunID() uuid.UUID {
	return t.runID
}

// Session returns the established session for node, or nil when the node is
// unknown. Valid from the OS stage onward.
func (t *Test) Session(node string) sessionManager.Session {
	return t.sessions[node]
}

// Barrier returns the node barrier: an N-way rendezvous sized to the node
// count that DB and OS implementations may use to synchronise cluster-wide
// steps. With zero nodes it is the no-op sentinel.
func (t *Test) Barrier() *barrier.Barrier {
	return t.barrier
}

// Store returns the run's artifact area. Valid once Run has started.
func (t *Test) Store() *store.Store {
	return t.store
}

// Log returns the run's logger. Valid once Run has started.
func (t *Test) Log() *zap.Logger {
	return t.log
}

// concurrency resolves the configured concurrency, defaulting to the node
// count.
func (t *Test) concurrency() int {
	if t.Concurrency > 0 {
		return t.Concurrency
	}
	return len(t.Nodes)
}

// since returns the monotonic time elapsed since the start of the run.
func (t *Test) since() time.Duration {
	return time.Since(t.start)
}

// record builds the serializable view of the test.
func (t *Test) record() store.TestRecord {
	return store.TestRecord{
		Name:        t.Name,
		RunID:       t.runID.String(),
		Nodes:       t.Nodes,
		Concurrency: t.concurrency(),
		Start:       t.start,
		History:     t.History,
		Results:     t.Results,
	}
}

// storeName returns the directory label of the run: the test name when
// present, otherwise the run id.
func (t *Test) storeName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.runID.String()
}

// Summary renders a human readable account of the run.
func (t *Test) Summary() string {
	var buffer bytes.Buffer
	wrt := tabwriter.NewWriter(&buffer, 4, 4, 1, ' ', 0)
	fmt.Fprintf(wrt, "test:\t%v\n", t.storeName())
	fmt.Fprintf(wrt, "nodes:\t%v\n", len(t.Nodes))
	fmt.Fprintf(wrt, "concurrency:\t%v\n", t.concurrency())
	fmt.Fprintf(wrt, "operations:\t%v\n", len(t.History))
	if t.Results != nil {
		valid, desc := t.Results.Response()
		fmt.Fprintf(wrt, "valid:\t%v\n", valid)
		fmt.Fprintf(wrt, "result:\t%v\n", desc)
	}
	wrt.Flush()
	return buffer.String()
}
