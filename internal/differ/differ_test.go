package differ

import (
	"testing"

	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/manifest"
)

func f(mtime, size int64) manifest.Entry {
	return manifest.Entry{MTime: mtime, Size: size, Kind: manifest.KindFile}
}

func actionsByPath(actions []Action) map[string]Action {
	m := make(map[string]Action, len(actions))
	for _, a := range actions {
		m[a.Path] = a
	}
	return m
}

// S1 — first sync, disjoint trees.
func TestFirstSyncDisjointTrees(t *testing.T) {
	local := manifest.Manifest{"a.txt": f(100, 1), "b.txt": f(200, 2)}
	remote := manifest.Manifest{"c.txt": f(300, 3)}

	actions := Diff(nil, local, remote, true)
	if len(actions) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(actions))
	}
	by := actionsByPath(actions)
	if by["a.txt"].Op != Push || by["b.txt"].Op != Push {
		t.Fatalf("expected a.txt and b.txt to be PUSH, got %+v", by)
	}
	if by["c.txt"].Op != Pull {
		t.Fatalf("expected c.txt to be PULL, got %+v", by["c.txt"])
	}

	// Sort order check.
	if actions[0].Path != "a.txt" || actions[1].Path != "b.txt" || actions[2].Path != "c.txt" {
		t.Fatalf("expected sorted output, got %v", []string{actions[0].Path, actions[1].Path, actions[2].Path})
	}
}

// S2 — safe delete.
func TestSafeDelete(t *testing.T) {
	prev := manifest.Manifest{"x": f(100, 1), "y": f(100, 1)}
	local := manifest.Manifest{"x": f(100, 1)}
	remote := manifest.Manifest{"x": f(100, 1), "y": f(100, 1)}

	actions := Diff(prev, local, remote, true)
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d: %+v", len(actions), actions)
	}
	if actions[0].Path != "y" || actions[0].Op != DeleteRemote {
		t.Fatalf("expected DELETE_REMOTE y, got %+v", actions[0])
	}
}

// S3 — first-sync new-on-both, identical metadata.
func TestFirstSyncNewOnBothIdentical(t *testing.T) {
	local := manifest.Manifest{"k": f(500, 10)}
	remote := manifest.Manifest{"k": f(500, 10)}

	actions := Diff(nil, local, remote, true)
	if len(actions) != 1 || actions[0].Op != Unchanged {
		t.Fatalf("expected single UNCHANGED action, got %+v", actions)
	}
}

// S4 — conflict: both sides changed the same path differently.
func TestConflictBothChanged(t *testing.T) {
	prev := manifest.Manifest{"m": f(100, 1)}
	local := manifest.Manifest{"m": f(200, 1)}
	remote := manifest.Manifest{"m": f(300, 1)}

	actions := Diff(prev, local, remote, true)
	if len(actions) != 1 || actions[0].Op != Conflict {
		t.Fatalf("expected CONFLICT, got %+v", actions)
	}
}

// S6 — propagate-deletes false turns a delete into a pull-back.
func TestPropagateDeletesFalse(t *testing.T) {
	prev := manifest.Manifest{"z": f(100, 1)}
	local := manifest.Manifest{}
	remote := manifest.Manifest{"z": f(100, 1)}

	actions := Diff(prev, local, remote, false)
	if len(actions) != 1 || actions[0].Op != Pull {
		t.Fatalf("expected PULL when propagate_deletes=false, got %+v", actions)
	}
}

func TestDeletedOnBothSidesProducesNoAction(t *testing.T) {
	prev := manifest.Manifest{"gone": f(1, 1)}
	local := manifest.Manifest{}
	remote := manifest.Manifest{}

	actions := Diff(prev, local, remote, true)
	if len(actions) != 0 {
		t.Fatalf("expected no actions, got %+v", actions)
	}
}

func TestNoPreviousNoDeletions(t *testing.T) {
	// Invariant 6: with prev empty, no DELETE_* action is ever produced,
	// and every path in local∪remote appears in exactly one action.
	local := manifest.Manifest{"a": f(1, 1), "shared": f(2, 2)}
	remote := manifest.Manifest{"b": f(3, 3), "shared": f(2, 2)}

	actions := Diff(nil, local, remote, true)
	if len(actions) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(actions))
	}
	for _, a := range actions {
		if a.Op == DeleteLocal || a.Op == DeleteRemote {
			t.Fatalf("unexpected deletion on first sync: %+v", a)
		}
	}
}

func TestDeterminism(t *testing.T) {
	prev := manifest.Manifest{"a": f(1, 1)}
	local := manifest.Manifest{"a": f(2, 1), "b": f(5, 5)}
	remote := manifest.Manifest{"a": f(1, 1), "c": f(9, 9)}

	first := Diff(prev, local, remote, true)
	second := Diff(prev, local, remote, true)

	if len(first) != len(second) {
		t.Fatalf("non-deterministic length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("non-deterministic at index %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestNoDuplicatePaths(t *testing.T) {
	prev := manifest.Manifest{"a": f(1, 1)}
	local := manifest.Manifest{"a": f(1, 1)}
	remote := manifest.Manifest{"a": f(1, 1)}

	actions := Diff(prev, local, remote, true)
	seen := make(map[string]bool)
	for _, a := range actions {
		if seen[a.Path] {
			t.Fatalf("duplicate path %q in output", a.Path)
		}
		seen[a.Path] = true
	}
}

func TestSkippedConflictReclassifiesNextRun(t *testing.T) {
	// Per the open-question resolution: a skipped conflict keeps its
	// previous manifest entry, and next run re-detects CONFLICT at the same path.
	prev := manifest.Manifest{"m": f(100, 1)}
	local := manifest.Manifest{"m": f(200, 1)}
	remote := manifest.Manifest{"m": f(300, 1)}

	first := Diff(prev, local, remote, true)
	if first[0].Op != Conflict {
		t.Fatalf("expected conflict, got %+v", first[0])
	}

	// Simulate the persisted "previous" after the skip: the coordinator keeps
	// the path's previous entry while the two sides still diverge.
	nextPrev := manifest.Manifest{"m": f(100, 1)}
	second := Diff(nextPrev, local, remote, true)
	if second[0].Op != Conflict {
		t.Fatalf("expected conflict to persist across runs, got %+v", second[0])
	}
}
