package havoc

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"havoc/gen"
	"havoc/op"
)

func TestShellDBRunsCommandsOverSessions(t *testing.T) {
	dialer := newMockDialer()
	db := ShellPrimaryDB{
		ShellDB: ShellDB{
			SetupCmd:    "systemctl start db",
			TeardownCmd: "systemctl stop db",
			Logs:        []string{"/var/log/db/server.log"},
		},
		PrimaryCmd: "db-init --primary",
	}

	_, err := Run(context.Background(), &Test{
		Nodes:     []string{"n1", "n2"},
		Dialer:    dialer,
		DB:        db,
		Client:    &mockClientCreator{},
		Generator: workerOnly(gen.Limit(2, gen.Repeat(op.Op{F: "w"}))),
		Dir:       t.TempDir(),
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	count := func(cmds []string, cmd string) int {
		n := 0
		for _, c := range cmds {
			if c == cmd {
				n++
			}
		}
		return n
	}

	for _, node := range []string{"n1", "n2"} {
		s := dialer.session(node)
		if s == nil {
			t.Fatalf("no session dialed for %v", node)
		}
		s.mu.Lock()
		cmds := append([]string(nil), s.commands...)
		s.mu.Unlock()

		if got := count(cmds, "systemctl start db"); got != 1 {
			t.Errorf("node %v: setup ran %v times, want 1", node, got)
		}
		if got := count(cmds, "systemctl stop db"); got != 2 {
			t.Errorf("node %v: teardown ran %v times, want 2 (cycle plus final)", node, got)
		}
		if got := len(s.downloaded()); got != 1 {
			t.Errorf("node %v: got %v downloads, want 1", node, got)
		}
	}

	primary := dialer.session("n1")
	primary.mu.Lock()
	primaries := count(primary.commands, "db-init --primary")
	primary.mu.Unlock()
	if primaries != 1 {
		t.Errorf("primary setup ran %v times, want 1", primaries)
	}
}

func TestShellDBSkipsEmptyCommands(t *testing.T) {
	db := ShellDB{}
	if err := db.Setup(context.Background(), &Test{}, "n1"); err != nil {
		t.Errorf("empty setup command errored: %v", err)
	}
	if err := db.Teardown(context.Background(), &Test{}, "n1"); err != nil {
		t.Errorf("empty teardown command errored: %v", err)
	}
}

func TestShellDBWithoutSession(t *testing.T) {
	db := ShellDB{SetupCmd: "true"}
	if err := db.Setup(context.Background(), &Test{}, "n1"); err == nil {
		t.Error("setup succeeded without a session for the node")
	}
}
