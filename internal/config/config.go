// Package config provides the typed view of the options the core consumes,
// loaded from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ConflictStrategy enumerates the Resolver strategies recognised by
// CONFLICT_STRATEGY.
type ConflictStrategy string

const (
	StrategyNewest ConflictStrategy = "newest"
	StrategySkip   ConflictStrategy = "skip"
	StrategyBackup ConflictStrategy = "backup"
	StrategyLocal  ConflictStrategy = "local"
	StrategyRemote ConflictStrategy = "remote"
)

func (s ConflictStrategy) valid() bool {
	switch s {
	case StrategyNewest, StrategySkip, StrategyBackup, StrategyLocal, StrategyRemote:
		return true
	default:
		return false
	}
}

// Config is the typed view of every recognised option.
type Config struct {
	Remote RemoteConfig `yaml:"remote"`
	Sync   SyncConfig   `yaml:"sync"`
	Hooks  HooksConfig  `yaml:"hooks"`

	DryRun  bool `yaml:"dry_run"`
	Verbose bool `yaml:"verbose"`
}

// RemoteConfig identifies the remote endpoint.
type RemoteConfig struct {
	User     string `yaml:"user"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Identity string `yaml:"identity,omitempty"`
}

// SyncConfig controls diff, transfer, and retry behaviour.
type SyncConfig struct {
	LocalDir         string           `yaml:"local_dir"`
	RemoteDir        string           `yaml:"remote_dir"`
	ExcludePatterns  []string         `yaml:"exclude_patterns"`
	ConflictStrategy ConflictStrategy `yaml:"conflict_strategy"`
	PropagateDeletes bool             `yaml:"propagate_deletes"`
	BackupOnConflict bool             `yaml:"backup_on_conflict"`
	ChecksumVerify   bool             `yaml:"checksum_verify"`

	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	SSHTimeout   time.Duration `yaml:"ssh_timeout"`
	RsyncTimeout time.Duration `yaml:"rsync_timeout"`

	BandwidthLimitKB int   `yaml:"bandwidth_limit_kb"`
	MaxFileSize      int64 `yaml:"max_file_size"`
}

// HooksConfig names optional shell commands run after a sync completes.
type HooksConfig struct {
	OnComplete string `yaml:"on_complete,omitempty"`
	OnFailure  string `yaml:"on_failure,omitempty"`
}

// Manager loads and resolves configuration for a given --config path (or the
// default location).
type Manager struct {
	configPath string
}

// DefaultConfigPath returns ~/.config/rsync-sync/config.yaml, falling back to
// the current directory if the home directory can't be resolved.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".config", "rsync-sync", "config.yaml")
}

// NewManager returns a Manager for the given config path, or the default
// path when configPath is empty.
func NewManager(configPath string) *Manager {
	if configPath == "" {
		configPath = DefaultConfigPath()
	}
	return &Manager{configPath: configPath}
}

func defaults() *Config {
	return &Config{
		Remote: RemoteConfig{Port: 22},
		Sync: SyncConfig{
			ExcludePatterns:  []string{".DS_Store", "Thumbs.db", ".git/**"},
			ConflictStrategy: StrategyNewest,
			PropagateDeletes: true,
			MaxRetries:       3,
			RetryDelay:       2 * time.Second,
			SSHTimeout:       10 * time.Second,
			RsyncTimeout:     5 * time.Minute,
		},
	}
}

// Load reads configPath and overlays it onto the defaults. A missing file is
// not an error: it returns the defaults, tolerating a first run with no
// config on disk yet, though an rsync-sync profile still needs
// LOCAL_DIR/REMOTE_DIR/REMOTE_HOST set somewhere before Validate will pass.
func (m *Manager) Load() (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", m.configPath, err)
	}
	return cfg, nil
}

// Path returns the configuration file path this Manager was built with.
func (m *Manager) Path() string {
	return m.configPath
}

// Validate checks the required keys, reporting the first problem found:
// required keys missing, bad enum value, bad port.
func (c *Config) Validate() error {
	if c.Remote.Host == "" {
		return fmt.Errorf("config invalid: remote.host is required")
	}
	if c.Remote.Port <= 0 || c.Remote.Port > 65535 {
		return fmt.Errorf("config invalid: remote.port %d out of range", c.Remote.Port)
	}
	if c.Sync.LocalDir == "" || !filepath.IsAbs(c.Sync.LocalDir) {
		return fmt.Errorf("config invalid: sync.local_dir must be an absolute path")
	}
	if c.Sync.RemoteDir == "" || !filepath.IsAbs(c.Sync.RemoteDir) {
		return fmt.Errorf("config invalid: sync.remote_dir must be an absolute path")
	}
	if !c.Sync.ConflictStrategy.valid() {
		return fmt.Errorf("config invalid: conflict_strategy %q is not one of newest|skip|backup|local|remote", c.Sync.ConflictStrategy)
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("config invalid: max_retries must be >= 0")
	}
	return nil
}
