// Package coordinator runs the full lifecycle of one sync invocation: lock,
// pre-flight, scan, diff, execute, rescan, persist.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/config"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/differ"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/executor"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/lock"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/manifest"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/resolver"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/scanner"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/state"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/transport"
)

// Report summarises one sync run for the CLI layer and for hooks.
type Report struct {
	Profile string

	Pushed        int
	Pulled        int
	DeletedLocal  int
	DeletedRemote int
	Conflicts     int
	Skipped       int
	Errors        int

	Duration time.Duration
	Err      error
}

// Failed reports whether this run should trigger ON_FAILURE rather than
// ON_COMPLETE.
func (r Report) Failed() bool {
	return r.Err != nil || r.Errors > 0
}

// Coordinator wires together every package under internal/ into one
// profile's sync/status/reset-state operations.
type Coordinator struct {
	Profile   state.Profile
	Config    *config.Config
	Transport transport.Transport
	Log       lgr.L
}

// New builds a Coordinator for one profile run.
func New(profile state.Profile, cfg *config.Config, tr transport.Transport, log lgr.L) *Coordinator {
	if log == nil {
		log = lgr.NoOp
	}
	return &Coordinator{Profile: profile, Config: cfg, Transport: tr, Log: log}
}

// Sync runs the full lifecycle: acquire the profile
// lock, verify reachability, scan both sides in parallel, diff against the
// last-known manifest, execute the resulting actions, rescan and persist on
// full success, release the lock, and run the configured hook.
func (c *Coordinator) Sync(ctx context.Context) Report {
	start := time.Now()
	report := Report{Profile: c.Profile.Name}

	if err := c.Profile.EnsureDirs(); err != nil {
		report.Err = fmt.Errorf("prepare state directories: %w", err)
		return c.finish(ctx, report, start)
	}

	profileLock := lock.New(c.Profile.LockPath)
	if err := profileLock.Acquire(); err != nil {
		report.Err = fmt.Errorf("acquire profile lock: %w", err)
		return report // no hook: we never got far enough to mutate anything
	}
	defer profileLock.Release()

	if err := c.Transport.Reachable(ctx); err != nil {
		report.Err = fmt.Errorf("remote not reachable: %w", err)
		return c.finish(ctx, report, start)
	}

	if err := c.checkRemoteVersion(ctx); err != nil {
		c.Log.Logf("WARN %v", err)
	}

	prev, local, remote, err := c.scanAll(ctx)
	if err != nil {
		report.Err = err
		return c.finish(ctx, report, start)
	}

	actions := differ.Diff(prev, local, remote, c.Config.Sync.PropagateDeletes)

	res := &resolver.Resolver{
		Strategy:       c.Config.Sync.ConflictStrategy,
		ChecksumVerify: c.Config.Sync.ChecksumVerify,
		LocalDir:       c.Config.Sync.LocalDir,
		RemoteDir:      c.Config.Sync.RemoteDir,
		Transport:      c.Transport,
	}
	ex := executor.New(executor.Options{
		LocalDir:         c.Config.Sync.LocalDir,
		RemoteDir:        c.Config.Sync.RemoteDir,
		BackupOnConflict: c.Config.Sync.BackupOnConflict,
		DryRun:           c.Config.DryRun,
		MaxRetries:       c.Config.Sync.MaxRetries,
		RetryDelay:       c.Config.Sync.RetryDelay,
		Concurrency:      4,
		Transport:        c.Transport,
		Resolver:         res,
		Log:              c.Log,
	})

	summary := ex.Execute(ctx, actions)
	report.Pushed = summary.Pushed
	report.Pulled = summary.Pulled
	report.DeletedLocal = summary.DeletedLocal
	report.DeletedRemote = summary.DeletedRemote
	report.Conflicts = summary.Conflicts
	report.Skipped = summary.Skipped
	report.Errors = summary.Errors

	if ctxErr := ctx.Err(); ctxErr != nil {
		// Cancelled mid-run: persisted state stays at the last known-good
		// point so the next run redoes whatever was not dispatched.
		report.Err = fmt.Errorf("sync interrupted: %w", ctxErr)
		return c.finish(ctx, report, start)
	}

	if c.Config.DryRun {
		// Dry-run never advances persisted state.
		return c.finish(ctx, report, start)
	}

	if summary.Err() != nil {
		// Partial failure: persisted state stays at the last known-good
		// point so the next run re-evaluates everything that didn't complete.
		report.Err = summary.Err()
		return c.finish(ctx, report, start)
	}

	postLocal, postRemote, err := c.rescanBoth(ctx)
	if err != nil {
		report.Err = fmt.Errorf("post-sync rescan: %w", err)
		return c.finish(ctx, report, start)
	}

	merged := manifest.Merge(postLocal, postRemote, summary.DeletedPaths)
	// A conflict still divergent after the run (e.g. skipped) keeps its
	// previous entry, so the next run classifies it as CONFLICT again.
	for _, a := range actions {
		if a.Op != differ.Conflict || postLocal[a.Path].Equal(postRemote[a.Path]) {
			continue
		}
		if e, ok := prev[a.Path]; ok {
			merged[a.Path] = e
		} else {
			delete(merged, a.Path)
		}
	}
	store := manifest.NewStore(c.Profile.ManifestPath)
	if err := store.Save(merged); err != nil {
		report.Err = fmt.Errorf("persist manifest: %w", err)
	}

	return c.finish(ctx, report, start)
}

// Status runs the read-only portion of the lifecycle (no lock, no
// execution) and reports what a Sync would do.
func (c *Coordinator) Status(ctx context.Context) ([]differ.Action, error) {
	if err := c.Transport.Reachable(ctx); err != nil {
		return nil, fmt.Errorf("remote not reachable: %w", err)
	}

	prev, local, remote, err := c.scanAll(ctx)
	if err != nil {
		return nil, err
	}

	return differ.Diff(prev, local, remote, c.Config.Sync.PropagateDeletes), nil
}

// ResetState deletes the profile's persisted manifest, forcing the next
// sync to treat every path as if this were the first run.
func (c *Coordinator) ResetState() error {
	return manifest.NewStore(c.Profile.ManifestPath).Delete()
}

func (c *Coordinator) scanAll(ctx context.Context) (prev, local, remote manifest.Manifest, err error) {
	store := manifest.NewStore(c.Profile.ManifestPath)
	prev, err = store.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load previous manifest: %w", err)
	}

	local, remote, err = c.rescanBoth(ctx)
	return prev, local, remote, err
}

// rescanBoth scans the local and remote trees concurrently, per the
// "scans happen in parallel" note.
func (c *Coordinator) rescanBoth(ctx context.Context) (local, remote manifest.Manifest, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if _, statErr := os.Stat(c.Config.Sync.LocalDir); statErr != nil {
			return fmt.Errorf("local sync root %s: %w", c.Config.Sync.LocalDir, statErr)
		}
		excludes := scanner.NewExcludeSet(c.Config.Sync.ExcludePatterns)
		m, scanErr := scanner.Scan(c.Config.Sync.LocalDir, excludes, c.Log)
		if scanErr != nil {
			return fmt.Errorf("scan local: %w", scanErr)
		}
		local = m
		return nil
	})

	g.Go(func() error {
		m, scanErr := c.Transport.Scan(gctx, c.Config.Sync.RemoteDir, c.Config.Sync.ExcludePatterns)
		if scanErr != nil {
			return fmt.Errorf("scan remote: %w", scanErr)
		}
		remote = m
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, waitErr
	}
	return local, remote, nil
}

// remoteVersionCacheTTL bounds how long checkRemoteVersion trusts the cached
// value before paying for another round-trip to the remote.
const remoteVersionCacheTTL = 24 * time.Hour

// checkRemoteVersion compares the remote transfer tool's version against the
// last cached value, warning (but never failing the run) on a mismatch. The
// remote round-trip is skipped while the cache file is younger than
// remoteVersionCacheTTL.
func (c *Coordinator) checkRemoteVersion(ctx context.Context) error {
	if info, statErr := os.Stat(c.Profile.RemoteVersionPath); statErr == nil {
		if time.Since(info.ModTime()) < remoteVersionCacheTTL {
			return nil
		}
	}

	current, err := c.Transport.RemoteVersion(ctx)
	if err != nil {
		return fmt.Errorf("check remote version: %w", err)
	}

	cached, readErr := os.ReadFile(c.Profile.RemoteVersionPath)
	if readErr == nil && string(cached) != current {
		c.Log.Logf("WARN remote version changed: %q -> %q", string(cached), current)
	}
	return os.WriteFile(c.Profile.RemoteVersionPath, []byte(current), 0o644)
}

func (c *Coordinator) finish(ctx context.Context, report Report, start time.Time) Report {
	report.Duration = time.Since(start)
	c.runHook(ctx, report)
	return report
}
