// Package state resolves the per-profile filesystem layout: manifest file,
// lock file, cached remote version, and log directory, all rooted at a
// configurable STATE_DIR.
package state

import (
	"os"
	"path/filepath"
)

// Profile is the tuple of paths a sync profile needs on disk, plus the
// ambient per-profile log directory.
type Profile struct {
	Name string

	ManifestPath      string
	LockPath          string
	RemoteVersionPath string
	LogDir            string
}

// DefaultStateDir returns ~/.config/rsync-sync/state, falling back to the
// current directory if the home directory can't be resolved.
func DefaultStateDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".config", "rsync-sync", "state")
}

// Resolve computes the ProfileState for profile name under stateDir.
// Distinct profiles are independent: every path is namespaced by name.
func Resolve(stateDir, name string) Profile {
	if name == "" {
		name = "default"
	}
	return Profile{
		Name:              name,
		ManifestPath:      filepath.Join(stateDir, name+".manifest"),
		LockPath:          filepath.Join(stateDir, name+".lock"),
		RemoteVersionPath: filepath.Join(stateDir, name+".remote-version"),
		LogDir:            filepath.Join(stateDir, "logs"),
	}
}

// EnsureDirs creates the state and log directories if absent.
func (p Profile) EnsureDirs() error {
	if err := os.MkdirAll(filepath.Dir(p.ManifestPath), 0o755); err != nil {
		return err
	}
	return os.MkdirAll(p.LogDir, 0o755)
}

// LogPath returns this profile's append-only log file path.
func (p Profile) LogPath() string {
	return filepath.Join(p.LogDir, p.Name+".log")
}
