// Package transport abstracts the operations the core needs against the
// remote endpoint. The core never speaks to ssh/rsync directly;
// it only calls through this narrow interface, so an alternative
// implementation (e.g. a sync-daemon wire protocol) can be substituted
// without touching the differ, resolver, executor, or coordinator.
package transport

import (
	"context"
	"errors"

	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/manifest"
)

// Result carries the outcome of a remote command execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ErrNetwork marks a failure the Executor should retry: timeouts, connection
// refused/reset, DNS failures, transient rsync protocol errors.
var ErrNetwork = errors.New("transport: network-class failure")

// ErrPermission marks a failure that retrying will not fix: permission
// denied, path not found, disk full.
var ErrPermission = errors.New("transport: permission/path failure")

// Transport is the narrow interface the core depends on. Implementations
// must make every operation here idempotent on retry, except that
// PushFile/PullFile rely on the underlying transfer tool's own partial-resume
// behaviour rather than being idempotent from a blank slate.
type Transport interface {
	// RunRemote executes cmd under the configured identity and returns its
	// captured output and exit status.
	RunRemote(ctx context.Context, cmd string) (Result, error)

	// Reachable verifies the remote accepts a connection and that the
	// file-transfer binary is present and usable.
	Reachable(ctx context.Context) error

	// RemoteVersion returns a short version string for the remote side's
	// transfer tool, used by the Coordinator's cached compatibility check.
	RemoteVersion(ctx context.Context) (string, error)

	// Scan produces the remote manifest by enumerating root, applying
	// excludes. A missing remote root yields an empty manifest, not an
	// error (the Coordinator creates it on first push).
	Scan(ctx context.Context, root string, excludePatterns []string) (manifest.Manifest, error)

	// PushFile copies localPath to root/remoteRelPath, creating parent
	// directories and preserving mtime. Safe to call again after a partial
	// failure.
	PushFile(ctx context.Context, localPath, root, remoteRelPath string) error

	// PullFile is the symmetric counterpart of PushFile.
	PullFile(ctx context.Context, root, remoteRelPath, localPath string) error

	// DeleteRemote removes root/remoteRelPath if present; absence is not
	// an error.
	DeleteRemote(ctx context.Context, root, remoteRelPath string) error

	// CopyRemote copies root/srcRel to root/dstRel on the remote side,
	// used for remote-side backup staging.
	CopyRemote(ctx context.Context, root, srcRel, dstRel string) error

	// ReadFile returns the raw contents of root/remoteRelPath, used by the
	// Resolver's checksum-verify pre-step.
	ReadFile(ctx context.Context, root, remoteRelPath string) ([]byte, error)
}
