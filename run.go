package havoc

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pingcap/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"havoc/barrier"
	"havoc/checking"
	"havoc/gen"
	"havoc/history"
	"havoc/sessionManager"
	"havoc/store"
)

// Run executes the test end to end: session pool, OS and DB stages, the case
// itself, history indexing, checking, and persistence.
//
// Run always returns the test, with whatever was recorded before a failure.
// A failure during setup or in a worker is returned as the error and the
// checker is not invoked. A failing checker is not an error: it produces a
// result with Valid set to false.
func Run(ctx context.Context, t *Test) (*Test, error) {
	if err := t.normalize(); err != nil {
		return t, err
	}

	t.start = time.Now()
	t.runID = uuid.New()
	t.active = history.NewActiveSet()
	t.barrier = barrier.New(len(t.Nodes))
	t.genCtx = gen.NewContext(t.concurrency(), t.start)

	base := t.Dir
	if base == "" {
		base = "store"
	}
	st, err := store.New(base, t.storeName(), t.start)
	if err != nil {
		return t, errors.Annotate(err, "creating store")
	}
	t.store = st

	log, stopLogging, err := t.buildLogger()
	if err != nil {
		return t, errors.Annotate(err, "starting logging")
	}
	t.log = log
	defer stopLogging()

	log.Info("starting test",
		zap.String("run-id", t.runID.String()),
		zap.String("name", t.storeName()),
		zap.Strings("nodes", t.Nodes),
		zap.Int("concurrency", t.concurrency()))

	err = t.withSessions(ctx, func() error {
		return t.withOS(ctx, func() error {
			return t.withDB(ctx, func() error {
				_, cerr := t.runCase(ctx)
				return cerr
			})
		})
	})
	if err != nil {
		log.Error("test failed", zap.Error(err))
		if t.hist != nil {
			t.History = t.hist.Ops()
		}
		return t, err
	}

	// First snapshot: the raw history, before any analysis.
	t.History = t.hist.Ops()
	if t.Name != "" {
		if werr := st.WriteJSON("test.json", t.record()); werr != nil {
			log.Warn("writing snapshot failed", zap.Error(werr))
		}
	}

	t.History = t.hist.Index()

	info := checking.Info{Name: t.Name, Nodes: t.Nodes, Start: t.start}
	t.Results = checking.Safe(t.Checker, info, t.Model, t.History)

	// Second snapshot: history with indices plus the analysis.
	if t.Name != "" {
		if werr := st.WriteJSON("results.json", t.record()); werr != nil {
			log.Warn("writing snapshot failed", zap.Error(werr))
		}
	}

	log.Info("test complete",
		zap.Bool("valid", t.Results.Valid),
		zap.Int("operations", len(t.History)))
	log.Info("run summary", zap.String("summary", "\n"+t.Summary()))
	return t, nil
}

// normalize fills in defaulted collaborators and rejects configurations that
// cannot run.
func (t *Test) normalize() error {
	if t.Client == nil && t.concurrency() > 0 {
		return errors.New("test has workers but no client")
	}
	if t.Generator == nil {
		t.Generator = gen.Void()
	}
	if t.OS == nil {
		t.OS = NoopOS{}
	}
	if t.DB == nil {
		t.DB = NoopDB{}
	}
	if t.Nemesis == nil {
		t.Nemesis = NoopNemesis{}
	}
	if t.Checker == nil {
		t.Checker = checking.NewHistoryChecker(checking.WellFormed()...)
	}
	return nil
}

// withSessions acquires one session per node for the duration of the body.
// With zero nodes no transport is touched at all.
func (t *Test) withSessions(ctx context.Context, body func() error) error {
	if len(t.Nodes) == 0 {
		t.sessions = map[string]sessionManager.Session{}
		return body()
	}

	dialer := t.Dialer
	if dialer == nil {
		dialer = sessionManager.NewSSHDialer(t.SSH)
	}
	pool, err := sessionManager.Connect(ctx, dialer, t.Nodes, t.log)
	if err != nil {
		return errors.Annotate(err, "establishing sessions")
	}
	defer pool.Close()

	t.sessions = pool.Sessions()
	return body()
}

// buildLogger builds the run's logger: human readable on stderr, the full
// debug stream persisted in the store. The returned stop function flushes
// and releases the log file.
func (t *Test) buildLogger() (*zap.Logger, func(), error) {
	if t.Logger != nil {
		return t.Logger, func() { _ = t.Logger.Sync() }, nil
	}

	file, err := os.OpenFile(t.store.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, errors.AddStack(err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), zapcore.InfoLevel),
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), zapcore.DebugLevel),
	)
	logger := zap.New(core)

	stop := func() {
		_ = logger.Sync()
		_ = file.Close()
	}
	return logger, stop, nil
}
