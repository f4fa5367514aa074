package sessionManager

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// A Session is an established remote shell session on one node.
//
// Sessions live from pool acquisition to pool release and are safe to share
// between the stages and collaborators of a single test.
type Session interface {
	// Run executes cmd on the node and returns its combined output.
	Run(ctx context.Context, cmd string) ([]byte, error)

	// Download copies the remote file at remotePath into the local file at
	// localPath, creating it if necessary.
	Download(ctx context.Context, remotePath, localPath string) error

	// Close releases the session.
	Close() error
}

// A Dialer establishes sessions on nodes.
//
// Implementations must be safe for concurrent use: the pool dials all nodes
// in parallel.
type Dialer interface {
	Dial(ctx context.Context, node string) (Session, error)
}

// Config holds the remote-shell credentials of a test.
type Config struct {
	User           string
	Password       string
	PrivateKey     []byte
	Port           int
	ConnectTimeout time.Duration
}

// IsMissingFile reports whether err indicates that a remote file disappeared
// before or during a copy. Log collection races against log rotation, so this
// is a benign error.
func IsMissingFile(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "No such file or directory") ||
		strings.Contains(err.Error(), "file does not exist")
}

// IsClosedPipe reports whether err indicates that the transfer pipe was
// closed mid-copy. This happens when the remote side goes away while the file
// is streaming and is treated as benign by log collection.
func IsClosedPipe(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return strings.Contains(err.Error(), "pipe closed") ||
		strings.Contains(err.Error(), "broken pipe")
}
