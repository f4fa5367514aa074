package sessionManager

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/pingcap/errors"
	"golang.org/x/crypto/ssh"
)

const defaultSSHPort = 22

// An SSHDialer establishes shell sessions over SSH.
type SSHDialer struct {
	cfg Config
}

// Create a new SSHDialer from the remote-shell credentials.
func NewSSHDialer(cfg Config) *SSHDialer {
	return &SSHDialer{cfg: cfg}
}

// Dial connects to node and returns an established session.
func (d *SSHDialer) Dial(ctx context.Context, node string) (Session, error) {
	auth := []ssh.AuthMethod{}
	if len(d.cfg.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(d.cfg.PrivateKey)
		if err != nil {
			return nil, errors.Annotatef(err, "parsing private key for %v", node)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if d.cfg.Password != "" {
		auth = append(auth, ssh.Password(d.cfg.Password))
	}

	port := d.cfg.Port
	if port == 0 {
		port = defaultSSHPort
	}
	addr := net.JoinHostPort(node, fmt.Sprint(port))

	clientCfg := &ssh.ClientConfig{
		User: d.cfg.User,
		Auth: auth,
		// Test clusters are provisioned machines without a curated
		// known_hosts, so host keys are not verified.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         d.cfg.ConnectTimeout,
	}

	conn, err := (&net.Dialer{Timeout: d.cfg.ConnectTimeout}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Annotatef(err, "dialing %v", addr)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return nil, errors.Annotatef(err, "ssh handshake with %v", addr)
	}
	return &sshSession{
		node:   node,
		client: ssh.NewClient(sshConn, chans, reqs),
	}, nil
}

// An sshSession wraps one SSH connection to a node. Each command runs in a
// fresh exec channel on the shared connection.
type sshSession struct {
	node   string
	client *ssh.Client
}

func (s *sshSession) Run(ctx context.Context, cmd string) ([]byte, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, errors.Annotatef(err, "opening exec channel on %v", s.node)
	}
	defer sess.Close()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			sess.Signal(ssh.SIGKILL)
		case <-done:
		}
	}()

	out, err := sess.CombinedOutput(cmd)
	close(done)
	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	if err != nil {
		return out, errors.Annotatef(err, "running %q on %v", cmd, s.node)
	}
	return out, nil
}

// Download streams the remote file through a cat channel into localPath.
func (s *sshSession) Download(ctx context.Context, remotePath, localPath string) error {
	sess, err := s.client.NewSession()
	if err != nil {
		return errors.Annotatef(err, "opening exec channel on %v", s.node)
	}
	defer sess.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return errors.AddStack(err)
	}
	local, err := os.Create(localPath)
	if err != nil {
		return errors.AddStack(err)
	}
	defer local.Close()

	sess.Stdout = local
	var stderr strings.Builder
	sess.Stderr = &stderr

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			sess.Signal(ssh.SIGKILL)
		case <-done:
		}
	}()

	err = sess.Run("cat -- " + shellQuote(remotePath))
	close(done)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		msg := stderr.String()
		if msg != "" {
			return errors.Annotatef(err, "downloading %v from %v: %v", remotePath, s.node, strings.TrimSpace(msg))
		}
		return errors.Annotatef(err, "downloading %v from %v", remotePath, s.node)
	}
	return nil
}

func (s *sshSession) Close() error {
	return s.client.Close()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
