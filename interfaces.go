package havoc

import (
	"context"

	"havoc/op"
)

// An OS installs and removes operating-system level prerequisites on a node.
// Setup and Teardown are run on every node in parallel.
type OS interface {
	Setup(ctx context.Context, t *Test, node string) error
	Teardown(ctx context.Context, t *Test, node string) error
}

// NoopOS is an OS that needs nothing from the nodes.
type NoopOS struct{}

func (NoopOS) Setup(ctx context.Context, t *Test, node string) error    { return nil }
func (NoopOS) Teardown(ctx context.Context, t *Test, node string) error { return nil }

// A DB installs and removes the database under test on a node.
//
// The DB stage always runs a cycle, teardown followed by setup, on every node
// before the test body. Optional capabilities are discovered by type
// assertion: Primary and LogFiler.
type DB interface {
	Setup(ctx context.Context, t *Test, node string) error
	Teardown(ctx context.Context, t *Test, node string) error
}

// NoopDB is a DB that installs nothing. Useful for dry runs and for systems
// that are already provisioned.
type NoopDB struct{}

func (NoopDB) Setup(ctx context.Context, t *Test, node string) error    { return nil }
func (NoopDB) Teardown(ctx context.Context, t *Test, node string) error { return nil }

// Primary is the capability of databases that need an additional setup step
// against a single primary node. It runs against the first node after the
// cycle.
type Primary interface {
	SetupPrimary(ctx context.Context, t *Test, node string) error
}

// LogFiler is the capability of databases whose log files can be collected
// from the nodes.
type LogFiler interface {
	LogFiles(ctx context.Context, t *Test, node string) ([]string, error)
}

// A ClientCreator opens clients bound to a node.
//
// Workers are assigned nodes round robin; with an empty node list clients are
// opened against the empty node name.
type ClientCreator interface {
	Open(ctx context.Context, t *Test, node string) (Client, error)
}

// A Client executes a single operation against the cluster.
//
// Invoke returns the completion for the invocation: the same process and f
// with type ok, fail or info. Invoke returns an error to signal that the
// connection failed and the outcome of the operation is unknown.
type Client interface {
	Invoke(ctx context.Context, t *Test, o op.Op) (op.Op, error)
}

// ClosableClient is the capability of clients that can be closed.
//
// After an indeterminate outcome a closable client is closed and a fresh one
// is opened for the successor process. Clients without this capability keep
// serving the successor process on the same connection; that path is
// deprecated and logged as a warning.
type ClosableClient interface {
	Client
	Close(ctx context.Context, t *Test) error
}

// A Nemesis introduces faults into the cluster while workers run.
//
// It is driven like a client, but by the reserved nemesis process, and both
// its invocations and completions have type info.
type Nemesis interface {
	Setup(ctx context.Context, t *Test) error
	Invoke(ctx context.Context, t *Test, o op.Op) (op.Op, error)
	Teardown(ctx context.Context, t *Test) error
}

// NoopNemesis introduces no faults.
type NoopNemesis struct{}

func (NoopNemesis) Setup(ctx context.Context, t *Test) error    { return nil }
func (NoopNemesis) Teardown(ctx context.Context, t *Test) error { return nil }
func (NoopNemesis) Invoke(ctx context.Context, t *Test, o op.Op) (op.Op, error) {
	return o, nil
}
