package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/config"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/state"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/transport"
)

func newTestCoordinator(t *testing.T) (*Coordinator, string, string) {
	t.Helper()
	localDir := t.TempDir()
	remoteDir := t.TempDir()
	stateDir := t.TempDir()

	profile := state.Resolve(stateDir, "test")
	cfg := &config.Config{
		Sync: config.SyncConfig{
			LocalDir:         localDir,
			RemoteDir:        remoteDir,
			ConflictStrategy: config.StrategyNewest,
			PropagateDeletes: true,
			MaxRetries:       1,
		},
	}
	tr := &transport.FakeTransport{}
	return New(profile, cfg, tr, nil), localDir, remoteDir
}

func TestSyncFirstRunPushesNewLocalFile(t *testing.T) {
	c, localDir, remoteDir := newTestCoordinator(t)
	if err := os.WriteFile(filepath.Join(localDir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed local: %v", err)
	}

	report := c.Sync(context.Background())
	if report.Err != nil {
		t.Fatalf("unexpected error: %v", report.Err)
	}
	if report.Pushed != 1 {
		t.Fatalf("expected 1 pushed, got %d", report.Pushed)
	}
	if _, err := os.Stat(filepath.Join(remoteDir, "a.txt")); err != nil {
		t.Fatalf("expected remote copy: %v", err)
	}

	if _, err := os.Stat(c.Profile.ManifestPath); err != nil {
		t.Fatalf("expected persisted manifest after success: %v", err)
	}
}

func TestSyncIsIdempotentOnRepeatedRuns(t *testing.T) {
	c, localDir, _ := newTestCoordinator(t)
	if err := os.WriteFile(filepath.Join(localDir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed local: %v", err)
	}

	first := c.Sync(context.Background())
	if first.Err != nil {
		t.Fatalf("first sync: %v", first.Err)
	}

	second := c.Sync(context.Background())
	if second.Err != nil {
		t.Fatalf("second sync: %v", second.Err)
	}
	if second.Pushed != 0 || second.Pulled != 0 {
		t.Fatalf("expected second run to be a no-op, got pushed=%d pulled=%d", second.Pushed, second.Pulled)
	}
}

func TestSyncPropagatesDeletionAfterPreviousManifest(t *testing.T) {
	c, localDir, remoteDir := newTestCoordinator(t)
	if err := os.WriteFile(filepath.Join(localDir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed local: %v", err)
	}
	if first := c.Sync(context.Background()); first.Err != nil {
		t.Fatalf("first sync: %v", first.Err)
	}

	if err := os.Remove(filepath.Join(localDir, "a.txt")); err != nil {
		t.Fatalf("remove local: %v", err)
	}

	second := c.Sync(context.Background())
	if second.Err != nil {
		t.Fatalf("second sync: %v", second.Err)
	}
	if second.DeletedRemote != 1 {
		t.Fatalf("expected deletion propagated to remote, got %d", second.DeletedRemote)
	}
	if _, err := os.Stat(filepath.Join(remoteDir, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected remote file removed, stat err = %v", err)
	}
}

func TestSyncDryRunLeavesManifestAbsent(t *testing.T) {
	c, localDir, remoteDir := newTestCoordinator(t)
	c.Config.DryRun = true
	if err := os.WriteFile(filepath.Join(localDir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed local: %v", err)
	}

	report := c.Sync(context.Background())
	if report.Err != nil {
		t.Fatalf("unexpected error: %v", report.Err)
	}
	if report.Pushed != 1 {
		t.Fatalf("expected dry-run to still count the action, got %d", report.Pushed)
	}
	if _, err := os.Stat(filepath.Join(remoteDir, "a.txt")); !os.IsNotExist(err) {
		t.Fatal("dry-run must not write to the remote")
	}
	if _, err := os.Stat(c.Profile.ManifestPath); !os.IsNotExist(err) {
		t.Fatal("dry-run must not persist a manifest")
	}
}

func TestSyncFailsWhenLocalDirMissing(t *testing.T) {
	c, localDir, _ := newTestCoordinator(t)
	if err := os.RemoveAll(localDir); err != nil {
		t.Fatalf("remove local dir: %v", err)
	}

	report := c.Sync(context.Background())
	if report.Err == nil {
		t.Fatal("expected error when local sync root is missing")
	}
}

func TestStatusReportsWithoutMutating(t *testing.T) {
	c, localDir, remoteDir := newTestCoordinator(t)
	if err := os.WriteFile(filepath.Join(localDir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed local: %v", err)
	}

	actions, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(actions) != 1 || actions[0].Path != "a.txt" {
		t.Fatalf("expected one pending push for a.txt, got %+v", actions)
	}
	if _, err := os.Stat(filepath.Join(remoteDir, "a.txt")); !os.IsNotExist(err) {
		t.Fatal("status must not transfer anything")
	}
}

func TestResetStateRemovesPersistedManifest(t *testing.T) {
	c, localDir, _ := newTestCoordinator(t)
	if err := os.WriteFile(filepath.Join(localDir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed local: %v", err)
	}
	if report := c.Sync(context.Background()); report.Err != nil {
		t.Fatalf("sync: %v", report.Err)
	}

	if err := c.ResetState(); err != nil {
		t.Fatalf("reset-state: %v", err)
	}
	if _, err := os.Stat(c.Profile.ManifestPath); !os.IsNotExist(err) {
		t.Fatal("expected manifest removed after reset-state")
	}
}

func TestSyncRunsOnCompleteHook(t *testing.T) {
	c, localDir, _ := newTestCoordinator(t)
	marker := filepath.Join(t.TempDir(), "ran")
	c.Config.Hooks.OnComplete = "touch " + marker
	if err := os.WriteFile(filepath.Join(localDir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed local: %v", err)
	}

	if report := c.Sync(context.Background()); report.Err != nil {
		t.Fatalf("sync: %v", report.Err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("expected ON_COMPLETE hook to run: %v", err)
	}
}
