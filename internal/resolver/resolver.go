// Package resolver collapses CONFLICT actions into an executable action
// (push, pull, or skip) per the configured CONFLICT_STRATEGY.
package resolver

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/config"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/differ"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/transport"
)

// Outcome is the result of resolving one CONFLICT action.
type Outcome string

const (
	OutcomePush Outcome = "push"
	OutcomePull Outcome = "pull"
	OutcomeSkip Outcome = "skip"
)

// Resolved pairs a conflict's original action with the strategy's decision.
type Resolved struct {
	Action  differ.Action
	Outcome Outcome
	// Verified is true when checksum-verify reclassified the conflict as
	// identical content; callers must then treat it as UNCHANGED (neither
	// the transfer nor the conflict counter is incremented).
	Verified bool
}

// Resolver applies config.SyncConfig's strategy and checksum-verify setting.
type Resolver struct {
	Strategy       config.ConflictStrategy
	ChecksumVerify bool

	LocalDir  string
	RemoteDir string
	Transport transport.Transport
}

// Resolve decides what to do about a single CONFLICT action. Callers must
// only pass actions with Op == differ.Conflict.
func (r *Resolver) Resolve(ctx context.Context, a differ.Action) (Resolved, error) {
	if r.ChecksumVerify {
		identical, err := r.contentsIdentical(ctx, a.Path)
		if err != nil {
			return Resolved{}, fmt.Errorf("checksum-verify %s: %w", a.Path, err)
		}
		if identical {
			return Resolved{Action: a, Verified: true}, nil
		}
	}

	switch r.Strategy {
	case config.StrategyLocal:
		return Resolved{Action: a, Outcome: OutcomePush}, nil
	case config.StrategyRemote:
		return Resolved{Action: a, Outcome: OutcomePull}, nil
	case config.StrategySkip:
		return Resolved{Action: a, Outcome: OutcomeSkip}, nil
	case config.StrategyBackup:
		// Backup is performed by the Executor (it owns filesystem/transport
		// writes); the Resolver only decides the subsequent direction,
		// which backup treats identically to newest.
		return Resolved{Action: a, Outcome: newestOutcome(a)}, nil
	case config.StrategyNewest, "":
		return Resolved{Action: a, Outcome: newestOutcome(a)}, nil
	default:
		return Resolved{}, fmt.Errorf("unknown conflict strategy %q", r.Strategy)
	}
}

// newestOutcome implements the "newest" rule: greater mtime wins, ties
// resolve to local.
func newestOutcome(a differ.Action) Outcome {
	if a.Remote.MTime > a.Local.MTime {
		return OutcomePull
	}
	return OutcomePush
}

func (r *Resolver) contentsIdentical(ctx context.Context, relPath string) (bool, error) {
	localSum, err := hashLocalFile(r.LocalDir, relPath)
	if err != nil {
		return false, err
	}
	remoteBytes, err := r.Transport.ReadFile(ctx, r.RemoteDir, relPath)
	if err != nil {
		return false, err
	}
	remoteSum := sha256.Sum256(remoteBytes)
	return bytes.Equal(localSum[:], remoteSum[:]), nil
}

func hashLocalFile(localDir, relPath string) ([32]byte, error) {
	var sum [32]byte
	f, err := os.Open(filepath.Join(localDir, filepath.FromSlash(relPath)))
	if err != nil {
		return sum, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return sum, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}
