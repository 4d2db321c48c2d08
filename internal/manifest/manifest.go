// Package manifest defines the canonical directory-state snapshot that the
// differ compares across three points in time: previous, local, remote.
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Kind distinguishes the two entry types the scanner ever records.
// Directories are not first-class: their existence is implied by the
// paths contained within them.
type Kind string

const (
	KindFile    Kind = "f"
	KindSymlink Kind = "l"
)

// Entry is a single (path, mtime, size, kind) record. Entries are created by
// a scan and never mutated in place; a new scan produces a fresh set.
type Entry struct {
	Path  string // relative to the sync root, forward slashes, no leading "./"
	MTime int64  // whole-second POSIX epoch
	Size  int64  // byte length; 0 for symlinks
	Kind  Kind
}

// Equal compares the structural fields the differ treats as identity:
// mtime, size, and kind. Path equality is the map key and isn't repeated here.
func (e Entry) Equal(other Entry) bool {
	return e.MTime == other.MTime && e.Size == other.Size && e.Kind == other.Kind
}

// Manifest maps a relative path to its entry. Keys are unique by construction.
type Manifest map[string]Entry

// New returns an empty manifest, distinct from a nil map so callers can
// range over it unconditionally.
func New() Manifest {
	return make(Manifest)
}

// SortedPaths returns the manifest's keys in byte-lexicographic order.
func (m Manifest) SortedPaths() []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Serialize renders the manifest to its canonical tab-separated form: one
// sorted line per entry, terminated by a trailing newline. An empty manifest
// serializes to an empty byte slice.
func (m Manifest) Serialize(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, p := range m.SortedPaths() {
		e := m[p]
		if _, err := fmt.Fprintf(bw, "%s\t%d\t%d\t%s\n", e.Path, e.MTime, e.Size, e.Kind); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Parse reads the canonical tab-separated form produced by Serialize.
// A blank input yields an empty, non-nil Manifest.
func Parse(r io.Reader) (Manifest, error) {
	m := New()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return nil, fmt.Errorf("manifest line %d: expected 4 tab-separated fields, got %d", lineNo, len(fields))
		}
		mtime, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: bad mtime %q: %w", lineNo, fields[1], err)
		}
		size, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: bad size %q: %w", lineNo, fields[2], err)
		}
		kind := Kind(fields[3])
		if kind != KindFile && kind != KindSymlink {
			return nil, fmt.Errorf("manifest line %d: bad kind %q", lineNo, fields[3])
		}
		path := fields[0]
		m[path] = Entry{Path: path, MTime: mtime, Size: size, Kind: kind}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}
