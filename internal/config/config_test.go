package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sync.ConflictStrategy != StrategyNewest {
		t.Fatalf("expected default strategy newest, got %q", cfg.Sync.ConflictStrategy)
	}
	if cfg.Remote.Port != 22 {
		t.Fatalf("expected default port 22, got %d", cfg.Remote.Port)
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
remote:
  user: deploy
  host: example.com
  port: 2222
sync:
  local_dir: /home/deploy/site
  remote_dir: /srv/site
  conflict_strategy: backup
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Remote.Host != "example.com" || cfg.Remote.Port != 2222 {
		t.Fatalf("unexpected remote config: %+v", cfg.Remote)
	}
	if cfg.Sync.ConflictStrategy != StrategyBackup {
		t.Fatalf("expected backup strategy, got %q", cfg.Sync.ConflictStrategy)
	}
	// Defaults not present in the file must survive the overlay.
	if cfg.Sync.MaxRetries != 3 {
		t.Fatalf("expected default max_retries to survive overlay, got %d", cfg.Sync.MaxRetries)
	}
}

func TestValidateRequiresHost(t *testing.T) {
	cfg := defaults()
	cfg.Sync.LocalDir = "/tmp/a"
	cfg.Sync.RemoteDir = "/tmp/b"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing remote host")
	}
}

func TestValidateRejectsBadStrategy(t *testing.T) {
	cfg := defaults()
	cfg.Remote.Host = "h"
	cfg.Sync.LocalDir = "/tmp/a"
	cfg.Sync.RemoteDir = "/tmp/b"
	cfg.Sync.ConflictStrategy = "yolo"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for bad conflict strategy")
	}
}

func TestValidateRejectsRelativeDirs(t *testing.T) {
	cfg := defaults()
	cfg.Remote.Host = "h"
	cfg.Sync.LocalDir = "relative/path"
	cfg.Sync.RemoteDir = "/tmp/b"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for relative local_dir")
	}
}

func TestValidatePassesWithRequiredFields(t *testing.T) {
	cfg := defaults()
	cfg.Remote.Host = "example.com"
	cfg.Sync.LocalDir = "/tmp/a"
	cfg.Sync.RemoteDir = "/tmp/b"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}
