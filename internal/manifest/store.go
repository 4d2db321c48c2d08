package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store persists and loads the per-profile last-successful-sync manifest.
type Store struct {
	path string // full path to the profile's .manifest file
}

// NewStore returns a Store backed by the given manifest file path.
func NewStore(manifestPath string) *Store {
	return &Store{path: manifestPath}
}

// Load reads and parses the persisted manifest. A missing file is not an
// error: it signals first-sync and yields an empty manifest.
func (s *Store) Load() (Manifest, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("open manifest %s: %w", s.path, err)
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", s.path, err)
	}
	return m, nil
}

// Save writes the manifest atomically: serialize to a sibling temp file,
// fsync, then rename over the destination, so a crash mid-write never
// leaves a truncated manifest in place.
func (s *Store) Save(m Manifest) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir %s: %w", dir, err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(s.path), uuid.NewString()))
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temp manifest %s: %w", tmpPath, err)
	}

	if err := m.Serialize(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("serialize manifest: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp manifest: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp manifest into place: %w", err)
	}
	return nil
}

// Delete removes the persisted manifest, if any. Used by reset-state.
func (s *Store) Delete() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove manifest %s: %w", s.path, err)
	}
	return nil
}

// Merge produces the post-sync snapshot used for persistence: the union of
// local and remote entries (preferring local's entry on overlap, since they
// should agree after a successful sync), minus every path named in a
// DELETE_LOCAL or DELETE_REMOTE action. The result is canonicalised by
// virtue of Manifest always serializing in sorted order.
func Merge(local, remote Manifest, deleted map[string]bool) Manifest {
	out := New()
	for p, e := range remote {
		out[p] = e
	}
	for p, e := range local {
		out[p] = e
	}
	for p := range deleted {
		delete(out, p)
	}
	return out
}
