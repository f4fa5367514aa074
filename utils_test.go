package havoc

import (
	"context"
	"sync"

	"github.com/pingcap/errors"

	"havoc/op"
	"havoc/sessionManager"
)

// mockSession records the commands run and files downloaded on one node.
type mockSession struct {
	node string

	mu        sync.Mutex
	commands  []string
	downloads [][2]string
	closed    bool

	downloadErr error
}

func (s *mockSession) Run(ctx context.Context, cmd string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, cmd)
	return nil, nil
}

func (s *mockSession) Download(ctx context.Context, remotePath, localPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.downloadErr != nil {
		return s.downloadErr
	}
	s.downloads = append(s.downloads, [2]string{remotePath, localPath})
	return nil
}

func (s *mockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *mockSession) downloaded() [][2]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][2]string, len(s.downloads))
	copy(out, s.downloads)
	return out
}

// mockDialer hands out mockSessions and keeps them for inspection.
type mockDialer struct {
	mu       sync.Mutex
	sessions map[string]*mockSession
}

func newMockDialer() *mockDialer {
	return &mockDialer{sessions: map[string]*mockSession{}}
}

func (d *mockDialer) Dial(ctx context.Context, node string) (sessionManager.Session, error) {
	s := &mockSession{node: node}
	d.mu.Lock()
	d.sessions[node] = s
	d.mu.Unlock()
	return s, nil
}

func (d *mockDialer) session(node string) *mockSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[node]
}

// invokeFn decides the completion for one invocation.
type invokeFn func(proc op.Process, o op.Op) (op.Op, error)

// mockClient completes operations through fn and counts its closes.
type mockClient struct {
	creator *mockClientCreator
	node    string
}

func (c *mockClient) Invoke(ctx context.Context, t *Test, o op.Op) (op.Op, error) {
	return c.creator.invoke(o.Process, o)
}

func (c *mockClient) Close(ctx context.Context, t *Test) error {
	c.creator.mu.Lock()
	defer c.creator.mu.Unlock()
	c.creator.closes++
	return nil
}

// mockClientCreator opens mockClients. The zero value completes every
// operation with ok.
type mockClientCreator struct {
	fn      invokeFn
	openErr error

	mu     sync.Mutex
	opens  int
	closes int
}

func (cc *mockClientCreator) Open(ctx context.Context, t *Test, node string) (Client, error) {
	cc.mu.Lock()
	cc.opens++
	cc.mu.Unlock()
	if cc.openErr != nil {
		return nil, cc.openErr
	}
	return &mockClient{creator: cc, node: node}, nil
}

func (cc *mockClientCreator) invoke(proc op.Process, o op.Op) (op.Op, error) {
	if cc.fn != nil {
		return cc.fn(proc, o)
	}
	comp := o
	comp.Type = op.Ok
	return comp, nil
}

func (cc *mockClientCreator) stats() (opens, closes int) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.opens, cc.closes
}

// stubbornClient is a client without the close capability.
type stubbornClient struct {
	fn invokeFn
}

func (c *stubbornClient) Invoke(ctx context.Context, t *Test, o op.Op) (op.Op, error) {
	return c.fn(o.Process, o)
}

// stubbornCreator opens stubbornClients.
type stubbornCreator struct {
	fn invokeFn

	mu    sync.Mutex
	opens int
}

func (cc *stubbornCreator) Open(ctx context.Context, t *Test, node string) (Client, error) {
	cc.mu.Lock()
	cc.opens++
	cc.mu.Unlock()
	return &stubbornClient{fn: cc.fn}, nil
}

// mockDB records stage calls and serves log files. It carries the Primary and
// LogFiler capabilities.
type mockDB struct {
	logs       map[string][]string
	setupErr   error
	primaryErr error

	mu        sync.Mutex
	setups    []string
	teardowns []string
	primaries []string
}

func (db *mockDB) Setup(ctx context.Context, t *Test, node string) error {
	db.mu.Lock()
	db.setups = append(db.setups, node)
	db.mu.Unlock()
	return db.setupErr
}

func (db *mockDB) Teardown(ctx context.Context, t *Test, node string) error {
	db.mu.Lock()
	db.teardowns = append(db.teardowns, node)
	db.mu.Unlock()
	return nil
}

func (db *mockDB) SetupPrimary(ctx context.Context, t *Test, node string) error {
	db.mu.Lock()
	db.primaries = append(db.primaries, node)
	db.mu.Unlock()
	return db.primaryErr
}

func (db *mockDB) LogFiles(ctx context.Context, t *Test, node string) ([]string, error) {
	return db.logs[node], nil
}

func (db *mockDB) calls() (setups, teardowns, primaries []string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]string(nil), db.setups...),
		append([]string(nil), db.teardowns...),
		append([]string(nil), db.primaries...)
}

// mockNemesis completes every event as info, with optional failure injection.
type mockNemesis struct {
	invokeErr error

	mu      sync.Mutex
	setup   bool
	torn    bool
	invokes int
}

func (n *mockNemesis) Setup(ctx context.Context, t *Test) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.setup = true
	return nil
}

func (n *mockNemesis) Teardown(ctx context.Context, t *Test) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.torn = true
	return nil
}

func (n *mockNemesis) Invoke(ctx context.Context, t *Test, o op.Op) (op.Op, error) {
	n.mu.Lock()
	n.invokes++
	n.mu.Unlock()
	if n.invokeErr != nil {
		return op.Op{}, n.invokeErr
	}
	return o, nil
}

var errInjected = errors.New("injected fault")
