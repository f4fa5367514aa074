package sessionManager

import (
	"context"
	"sync"

	"github.com/pingcap/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
)

// A Pool holds one established session per node.
//
// Connect starts every session in parallel. If any of them fails to start,
// the sessions that did start are stopped in parallel and the first failure
// is returned. After Connect succeeds the pool is read only.
type Pool struct {
	sessions map[string]Session
	log      *zap.Logger
}

// Connect establishes one session per node through the dialer.
func Connect(ctx context.Context, dialer Dialer, nodes []string, log *zap.Logger) (*Pool, error) {
	type dialed struct {
		node    string
		session Session
		err     error
	}

	results := make(chan dialed, len(nodes))
	for _, node := range nodes {
		go func(node string) {
			s, err := dialer.Dial(ctx, node)
			results <- dialed{node: node, session: s, err: err}
		}(node)
	}

	sessions := make(map[string]Session, len(nodes))
	var firstErr error
	for range nodes {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = errors.Annotatef(r.err, "connecting to %v", r.node)
			}
			continue
		}
		sessions[r.node] = r.session
	}

	if firstErr != nil {
		p := &Pool{sessions: sessions, log: log}
		p.Close()
		return nil, firstErr
	}
	return &Pool{sessions: sessions, log: log}, nil
}

// Session returns the session for node, or nil if the node is unknown.
func (p *Pool) Session(node string) Session {
	return p.sessions[node]
}

// Sessions returns a copy of the node to session map.
func (p *Pool) Sessions() map[string]Session {
	return maps.Clone(p.sessions)
}

// Close stops every session in parallel. Close failures are best effort and
// only logged.
func (p *Pool) Close() {
	var wg sync.WaitGroup
	for node, s := range p.sessions {
		wg.Add(1)
		go func(node string, s Session) {
			defer wg.Done()
			if err := s.Close(); err != nil {
				p.log.Warn("closing session failed",
					zap.String("node", node),
					zap.Error(err))
			}
		}(node, s)
	}
	wg.Wait()
}
