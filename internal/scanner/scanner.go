// Package scanner produces the canonical manifest.Manifest for a directory
// tree.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-pkgz/lgr"

	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/manifest"
)

// alwaysExcluded names the internal subtrees that are never part of a scan
// or a transfer, regardless of the configured exclude patterns.
var alwaysExcluded = []string{".sync-backups", ".sync-state"}

// Scan walks root recursively and returns one entry per regular file and
// symlink found. Directories are descended into but never recorded.
// Exclusion rules are applied during traversal so that excluding a directory
// prunes its entire subtree rather than merely hiding its contents.
//
// A missing root returns an empty manifest and a nil error, matching the
// "remote not yet created" case; callers that need scan errors
// to be fatal (the local side) should check os.Stat first.
func Scan(root string, excludes *ExcludeSet, log lgr.L) (manifest.Manifest, error) {
	if log == nil {
		log = lgr.NoOp
	}

	m := manifest.New()

	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("stat scan root %s: %w", root, err)
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Logf("WARN scan: skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return fmt.Errorf("relativize %s against %s: %w", path, root, relErr)
		}
		rel = filepath.ToSlash(rel)

		if excludes.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			log.Logf("WARN scan: stat %s: %v", path, infoErr)
			return nil
		}

		entry, ok := entryFromInfo(rel, info)
		if !ok {
			return nil
		}
		m[rel] = entry
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scan %s: %w", root, walkErr)
	}

	return m, nil
}

func entryFromInfo(rel string, info fs.FileInfo) (manifest.Entry, bool) {
	mode := info.Mode()
	switch {
	case mode&os.ModeSymlink != 0:
		return manifest.Entry{
			Path:  rel,
			MTime: info.ModTime().Unix(),
			Size:  0,
			Kind:  manifest.KindSymlink,
		}, true
	case mode.IsRegular():
		return manifest.Entry{
			Path:  rel,
			MTime: info.ModTime().Unix(),
			Size:  info.Size(),
			Kind:  manifest.KindFile,
		}, true
	default:
		// Not a regular file or symlink (device, socket, etc): not tracked.
		return manifest.Entry{}, false
	}
}
