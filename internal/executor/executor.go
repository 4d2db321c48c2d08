// Package executor carries out a differ.ActionList against the filesystem
// and a transport.Transport, with retries, backups, and per-run accounting,
// with retries, backups, and per-run accounting.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-pkgz/lgr"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"

	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/config"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/differ"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/resolver"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/transport"
)

// Summary is the value Execute returns: per-action counters plus the set of
// paths actually removed (for ManifestStore.Merge) and the aggregated error,
// if any. Returning counters rather than mutating package globals lets
// parallel execution of independent actions compose cleanly.
type Summary struct {
	Pushed        int
	Pulled        int
	DeletedLocal  int
	DeletedRemote int
	Conflicts     int
	Skipped       int
	Errors        int

	DeletedPaths map[string]bool

	mu  sync.Mutex
	err *multierror.Error
}

func newSummary() *Summary {
	return &Summary{DeletedPaths: make(map[string]bool)}
}

// Err returns the aggregated per-action error, or nil if every action
// succeeded.
func (s *Summary) Err() error {
	if s.err == nil || len(s.err.Errors) == 0 {
		return nil
	}
	return s.err
}

func (s *Summary) addError(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors++
	s.err = multierror.Append(s.err, fmt.Errorf("%s: %w", path, err))
}

func (s *Summary) inc(field *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*field++
}

func (s *Summary) markDeleted(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeletedPaths[path] = true
}

// Options configures one Execute call.
type Options struct {
	LocalDir         string
	RemoteDir        string
	BackupOnConflict bool
	DryRun           bool
	MaxRetries       int
	RetryDelay       time.Duration
	Concurrency      int64 // bounded fan-out; 1 = sequential reference behaviour

	Transport transport.Transport
	Resolver  *resolver.Resolver
	Log       lgr.L
}

// Executor dispatches each differ.Action to the right per-action behaviour.
type Executor struct {
	opts Options
	sem  *semaphore.Weighted
}

// New returns an Executor. A Concurrency of 0 or less is treated as 1.
func New(opts Options) *Executor {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Log == nil {
		opts.Log = lgr.NoOp
	}
	return &Executor{opts: opts, sem: semaphore.NewWeighted(opts.Concurrency)}
}

// Execute dispatches every action, in sorted order, up to the configured
// concurrency bound. It returns once every action has been attempted.
func (ex *Executor) Execute(ctx context.Context, actions []differ.Action) *Summary {
	summary := newSummary()
	var wg sync.WaitGroup

	for _, a := range actions {
		a := a
		if err := ex.sem.Acquire(ctx, 1); err != nil {
			// Context cancelled: stop dispatching new actions, let in-flight
			// ones finish via wg.
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer ex.sem.Release(1)
			ex.dispatch(ctx, a, summary)
		}()
	}
	wg.Wait()
	return summary
}

func (ex *Executor) dispatch(ctx context.Context, a differ.Action, summary *Summary) {
	switch a.Op {
	case differ.Unchanged:
		return
	case differ.Conflict:
		ex.handleConflict(ctx, a, summary)
	case differ.Push:
		ex.handlePush(ctx, a, summary, false)
	case differ.Pull:
		ex.handlePull(ctx, a, summary, false)
	case differ.DeleteLocal:
		ex.handleDeleteLocal(ctx, a, summary, false)
	case differ.DeleteRemote:
		ex.handleDeleteRemote(ctx, a, summary, false)
	}
}

func (ex *Executor) handleConflict(ctx context.Context, a differ.Action, summary *Summary) {
	summary.inc(&summary.Conflicts)

	resolved, err := ex.opts.Resolver.Resolve(ctx, a)
	if err != nil {
		summary.addError(a.Path, fmt.Errorf("resolve conflict: %w", err))
		return
	}
	if resolved.Verified {
		// Checksum-verify reclassified this as identical content: neither
		// the transfer nor the conflict counter advances further.
		summary.mu.Lock()
		summary.Conflicts--
		summary.mu.Unlock()
		return
	}

	if ex.opts.Resolver.Strategy == config.StrategyBackup && !ex.opts.DryRun {
		// The backup strategy copies both sides before newest picks a winner.
		if err := ex.backupLocal(a.Path); err != nil {
			ex.opts.Log.Logf("WARN backup local %s failed: %v", a.Path, err)
		}
		if err := ex.backupRemote(ctx, a.Path); err != nil {
			ex.opts.Log.Logf("WARN backup remote %s failed: %v", a.Path, err)
		}
	}

	backupBoth := ex.opts.BackupOnConflict
	switch resolved.Outcome {
	case resolver.OutcomePush:
		ex.handlePush(ctx, a, summary, backupBoth)
	case resolver.OutcomePull:
		ex.handlePull(ctx, a, summary, backupBoth)
	case resolver.OutcomeSkip:
		summary.inc(&summary.Skipped)
	}
}

func (ex *Executor) handlePush(ctx context.Context, a differ.Action, summary *Summary, fromConflict bool) {
	if fromConflict && ex.opts.BackupOnConflict {
		if err := ex.backupRemote(ctx, a.Path); err != nil {
			ex.opts.Log.Logf("WARN backup remote %s failed: %v", a.Path, err)
		}
	}

	if ex.opts.DryRun {
		ex.opts.Log.Logf("INFO [dry-run] would push %s", a.Path)
		summary.inc(&summary.Pushed)
		return
	}

	localPath := filepath.Join(ex.opts.LocalDir, filepath.FromSlash(a.Path))
	err := ex.retry(ctx, func() error {
		return ex.opts.Transport.PushFile(ctx, localPath, ex.opts.RemoteDir, a.Path)
	})
	if err != nil {
		summary.addError(a.Path, fmt.Errorf("push: %w", err))
		return
	}
	summary.inc(&summary.Pushed)
}

func (ex *Executor) handlePull(ctx context.Context, a differ.Action, summary *Summary, fromConflict bool) {
	if fromConflict && ex.opts.BackupOnConflict {
		if err := ex.backupLocal(a.Path); err != nil {
			ex.opts.Log.Logf("WARN backup local %s failed: %v", a.Path, err)
		}
	}

	if ex.opts.DryRun {
		ex.opts.Log.Logf("INFO [dry-run] would pull %s", a.Path)
		summary.inc(&summary.Pulled)
		return
	}

	localPath := filepath.Join(ex.opts.LocalDir, filepath.FromSlash(a.Path))
	err := ex.retry(ctx, func() error {
		return ex.opts.Transport.PullFile(ctx, ex.opts.RemoteDir, a.Path, localPath)
	})
	if err != nil {
		summary.addError(a.Path, fmt.Errorf("pull: %w", err))
		return
	}
	summary.inc(&summary.Pulled)
}

func (ex *Executor) handleDeleteLocal(ctx context.Context, a differ.Action, summary *Summary, _ bool) {
	if ex.opts.BackupOnConflict {
		if err := ex.backupLocal(a.Path); err != nil {
			ex.opts.Log.Logf("WARN backup local %s failed: %v", a.Path, err)
		}
	}

	if ex.opts.DryRun {
		ex.opts.Log.Logf("INFO [dry-run] would delete local %s", a.Path)
		summary.inc(&summary.DeletedLocal)
		summary.markDeleted(a.Path)
		return
	}

	localPath := filepath.Join(ex.opts.LocalDir, filepath.FromSlash(a.Path))
	err := os.Remove(localPath)
	if err != nil && !os.IsNotExist(err) {
		summary.addError(a.Path, fmt.Errorf("delete local: %w", err))
		return
	}
	summary.inc(&summary.DeletedLocal)
	summary.markDeleted(a.Path)
}

func (ex *Executor) handleDeleteRemote(ctx context.Context, a differ.Action, summary *Summary, _ bool) {
	if ex.opts.BackupOnConflict {
		if err := ex.backupRemote(ctx, a.Path); err != nil {
			ex.opts.Log.Logf("WARN backup remote %s failed: %v", a.Path, err)
		}
	}

	if ex.opts.DryRun {
		ex.opts.Log.Logf("INFO [dry-run] would delete remote %s", a.Path)
		summary.inc(&summary.DeletedRemote)
		summary.markDeleted(a.Path)
		return
	}

	err := ex.retry(ctx, func() error {
		return ex.opts.Transport.DeleteRemote(ctx, ex.opts.RemoteDir, a.Path)
	})
	if err != nil {
		summary.addError(a.Path, fmt.Errorf("delete remote: %w", err))
		return
	}
	summary.inc(&summary.DeletedRemote)
	summary.markDeleted(a.Path)
}

// retry wraps op with a constant backoff of RetryDelay, applied before the
// 2nd and subsequent attempts only, up to MaxRetries retries. Only
// transport.ErrNetwork failures are retried; anything else (e.g. a local
// permission error) returns immediately.
func (ex *Executor) retry(ctx context.Context, op func() error) error {
	attempts := 0
	b := backoff.WithContext(&constantBackoff{delay: ex.opts.RetryDelay}, ctx)

	return backoff.Retry(func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}
		if !errors.Is(err, transport.ErrNetwork) {
			return backoff.Permanent(err)
		}
		if attempts > ex.opts.MaxRetries {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

// constantBackoff retries at a fixed interval rather than an exponential
// one (backoff.NewConstantBackOff would also fit; this copy avoids
// importing the extra symbol for a single field).
type constantBackoff struct {
	delay time.Duration
}

func (c *constantBackoff) NextBackOff() time.Duration { return c.delay }
func (c *constantBackoff) Reset()                     {}
