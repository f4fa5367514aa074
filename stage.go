package havoc

import (
	"context"

	"github.com/pingcap/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"havoc/sessionManager"
	"havoc/store"
)

// fanout runs f for every node in parallel, waits for all of them, and
// returns the first failure.
func fanout(ctx context.Context, nodes []string, f func(ctx context.Context, node string) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, node := range nodes {
		node := node
		g.Go(func() error {
			return f(gctx, node)
		})
	}
	return g.Wait()
}

// withOS runs the body inside the OS stage: parallel setup on every node
// before, parallel teardown on every node after, regardless of outcome.
// Teardown failures are logged but never mask the body's error.
func (t *Test) withOS(ctx context.Context, body func() error) error {
	t.log.Info("setting up OS", zap.Int("nodes", len(t.Nodes)))
	if err := fanout(ctx, t.Nodes, func(ctx context.Context, node string) error {
		return errors.Annotatef(t.OS.Setup(ctx, t, node), "OS setup on %v", node)
	}); err != nil {
		t.teardownOS(ctx)
		return err
	}

	err := body()
	t.teardownOS(ctx)
	return err
}

func (t *Test) teardownOS(ctx context.Context) {
	if err := fanout(ctx, t.Nodes, func(ctx context.Context, node string) error {
		return t.OS.Teardown(ctx, t, node)
	}); err != nil {
		t.log.Warn("OS teardown failed", zap.Error(err))
	}
}

// withDB runs the body inside the DB stage.
//
// Before the body every node runs a cycle, teardown then setup, in parallel;
// databases with the Primary capability then run their primary-only setup
// against the first node. If the body fails, logs are snarfed before the
// database is torn down so that forensic evidence survives the teardown, and
// the body's error is propagated unchanged.
func (t *Test) withDB(ctx context.Context, body func() error) error {
	t.log.Info("cycling DB", zap.Int("nodes", len(t.Nodes)))
	if err := fanout(ctx, t.Nodes, func(ctx context.Context, node string) error {
		if err := t.DB.Teardown(ctx, t, node); err != nil {
			return errors.Annotatef(err, "DB teardown on %v", node)
		}
		return errors.Annotatef(t.DB.Setup(ctx, t, node), "DB setup on %v", node)
	}); err != nil {
		t.snarfLogs(ctx)
		t.teardownDB(ctx)
		return err
	}

	if p, ok := t.DB.(Primary); ok && len(t.Nodes) > 0 {
		primary := t.Nodes[0]
		t.log.Info("setting up primary", zap.String("node", primary))
		if err := p.SetupPrimary(ctx, t, primary); err != nil {
			err = errors.Annotatef(err, "primary setup on %v", primary)
			t.snarfLogs(ctx)
			t.teardownDB(ctx)
			return err
		}
	}

	err := body()
	if err != nil {
		// Emergency snarf: grab whatever the nodes still hold before
		// teardown destroys it.
		t.snarfLogs(ctx)
	}
	t.teardownDB(ctx)
	return err
}

func (t *Test) teardownDB(ctx context.Context) {
	if err := fanout(ctx, t.Nodes, func(ctx context.Context, node string) error {
		return t.DB.Teardown(ctx, t, node)
	}); err != nil {
		t.log.Warn("DB teardown failed", zap.Error(err))
	}
}

// snarfLogs downloads the database's log files from every node into the
// store, one subdirectory per node, each file at its shortest unique suffix.
//
// Files vanishing mid-copy and pipes closing are races against log rotation
// and dying nodes; both are logged and skipped. Any other I/O error aborts
// the snarf for that node.
func (t *Test) snarfLogs(ctx context.Context) {
	lf, ok := t.DB.(LogFiler)
	if !ok {
		return
	}

	t.log.Info("snarfing log files")
	type nodeLogs struct {
		node  string
		paths []string
	}

	collected := make([]nodeLogs, 0, len(t.Nodes))
	all := make([]string, 0)
	for _, node := range t.Nodes {
		paths, err := lf.LogFiles(ctx, t, node)
		if err != nil {
			t.log.Warn("listing log files failed",
				zap.String("node", node),
				zap.Error(err))
			continue
		}
		collected = append(collected, nodeLogs{node: node, paths: paths})
		all = append(all, paths...)
	}
	suffixes := store.SuffixPaths(all)

	g := new(errgroup.Group)
	for _, nl := range collected {
		nl := nl
		g.Go(func() error {
			return t.snarfNode(ctx, nl.node, nl.paths, suffixes)
		})
	}
	if err := g.Wait(); err != nil {
		t.log.Warn("log snarf failed", zap.Error(err))
	}
}

func (t *Test) snarfNode(ctx context.Context, node string, paths []string, suffixes map[string]string) error {
	session := t.Session(node)
	if session == nil {
		return errors.Errorf("no session for %v", node)
	}
	for _, remote := range paths {
		local, err := t.store.NodeFile(node, suffixes[remote])
		if err != nil {
			return err
		}
		err = session.Download(ctx, remote, local)
		switch {
		case err == nil:
		case sessionManager.IsMissingFile(err):
			t.log.Info("log file vanished before copy",
				zap.String("node", node),
				zap.String("path", remote))
		case sessionManager.IsClosedPipe(err):
			t.log.Info("pipe closed mid-copy",
				zap.String("node", node),
				zap.String("path", remote))
		default:
			return errors.Annotatef(err, "downloading %v from %v", remote, node)
		}
	}
	return nil
}
