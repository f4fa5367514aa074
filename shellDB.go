package havoc

import (
	"context"

	"github.com/pingcap/errors"
	"go.uber.org/zap"
)

// A ShellDB manages the database under test with shell commands run through
// the node sessions.
//
// Empty commands are skipped, so a ShellDB with only a SetupCmd works for
// databases that need no teardown. Logs lists the remote log files to
// collect; every ShellDB advertises the LogFiles capability, and with an
// empty Logs no files are collected.
type ShellDB struct {
	SetupCmd    string
	TeardownCmd string
	Logs        []string
}

func (db ShellDB) Setup(ctx context.Context, t *Test, node string) error {
	return db.runCmd(ctx, t, node, db.SetupCmd)
}

func (db ShellDB) Teardown(ctx context.Context, t *Test, node string) error {
	return db.runCmd(ctx, t, node, db.TeardownCmd)
}

func (db ShellDB) LogFiles(ctx context.Context, t *Test, node string) ([]string, error) {
	return db.Logs, nil
}

func (db ShellDB) runCmd(ctx context.Context, t *Test, node, cmd string) error {
	if cmd == "" {
		return nil
	}
	session := t.Session(node)
	if session == nil {
		return errors.Errorf("no session for %v", node)
	}
	out, err := session.Run(ctx, cmd)
	if err != nil {
		return errors.Annotatef(err, "running %q on %v: %s", cmd, node, out)
	}
	t.Log().Debug("ran command",
		zap.String("node", node),
		zap.String("cmd", cmd))
	return nil
}

// A ShellPrimaryDB is a ShellDB for databases that additionally need a
// primary-only setup step. It advertises the Primary capability.
type ShellPrimaryDB struct {
	ShellDB
	PrimaryCmd string
}

func (db ShellPrimaryDB) SetupPrimary(ctx context.Context, t *Test, node string) error {
	return db.runCmd(ctx, t, node, db.PrimaryCmd)
}
