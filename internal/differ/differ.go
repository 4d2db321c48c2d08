// Package differ implements the three-way diff that classifies every path
// appearing in the previous, local, and remote manifests into a single
// Action.
package differ

import (
	"sort"

	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/manifest"
)

// Op is a tagged action variant.
type Op string

const (
	Push         Op = "PUSH"
	Pull         Op = "PULL"
	DeleteLocal  Op = "DELETE_LOCAL"
	DeleteRemote Op = "DELETE_REMOTE"
	Conflict     Op = "CONFLICT"
	Unchanged    Op = "UNCHANGED"
)

// Action is a single classified path. Local and Remote carry the entries
// observed on each side (zero value if absent) so the Resolver and Executor
// don't need to re-index the manifests.
type Action struct {
	Op     Op
	Path   string
	Local  manifest.Entry
	Remote manifest.Entry
	// HasLocal/HasRemote distinguish "absent" from a zero-value entry,
	// which is meaningful since size/mtime 0 are valid values.
	HasLocal  bool
	HasRemote bool
}

// Diff classifies every path present in any of prev, local, remote. The
// returned ActionList is sorted lexicographically by path, satisfying
// making runs reproducible.
func Diff(prev, local, remote manifest.Manifest, propagateDeletes bool) []Action {
	paths := unionPaths(prev, local, remote)
	actions := make([]Action, 0, len(paths))

	for _, p := range paths {
		prevEntry, hasPrev := prev[p]
		localEntry, hasLocal := local[p]
		remoteEntry, hasRemote := remote[p]

		a := Action{
			Path:      p,
			Local:     localEntry,
			Remote:    remoteEntry,
			HasLocal:  hasLocal,
			HasRemote: hasRemote,
		}

		switch {
		case hasPrev && hasLocal && hasRemote:
			a.Op = classifyBothPresent(prevEntry, localEntry, remoteEntry)

		case !hasPrev && hasLocal && hasRemote:
			if localEntry.Equal(remoteEntry) {
				a.Op = Unchanged
			} else {
				a.Op = Conflict
			}

		case !hasPrev && hasLocal && !hasRemote:
			a.Op = Push

		case !hasPrev && !hasLocal && hasRemote:
			a.Op = Pull

		case hasPrev && hasLocal && !hasRemote:
			if propagateDeletes {
				a.Op = DeleteLocal
			} else {
				a.Op = Push
			}

		case hasPrev && !hasLocal && hasRemote:
			if propagateDeletes {
				a.Op = DeleteRemote
			} else {
				a.Op = Pull
			}

		case hasPrev && !hasLocal && !hasRemote:
			// Deleted on both sides independently: no action, per
			// invariant 3 this path never reappears in the ActionList.
			continue

		default:
			// hasPrev with neither local nor remote handled above;
			// every other combination is exhaustive.
			continue
		}

		actions = append(actions, a)
	}

	return actions
}

func classifyBothPresent(prevEntry, localEntry, remoteEntry manifest.Entry) Op {
	localChanged := !localEntry.Equal(prevEntry)
	remoteChanged := !remoteEntry.Equal(prevEntry)

	switch {
	case !localChanged && !remoteChanged:
		return Unchanged
	case localChanged && !remoteChanged:
		return Push
	case !localChanged && remoteChanged:
		return Pull
	default: // both changed
		if localEntry.Equal(remoteEntry) {
			return Unchanged
		}
		return Conflict
	}
}

func unionPaths(manifests ...manifest.Manifest) []string {
	seen := make(map[string]struct{})
	for _, m := range manifests {
		for p := range m {
			seen[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
