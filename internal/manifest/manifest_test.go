package manifest

import (
	"bytes"
	"strings"
	"testing"
)

func TestSerializeSortsAndFormats(t *testing.T) {
	m := Manifest{
		"b.txt":       {Path: "b.txt", MTime: 200, Size: 2, Kind: KindFile},
		"a.txt":       {Path: "a.txt", MTime: 100, Size: 1, Kind: KindFile},
		"link/c.link": {Path: "link/c.link", MTime: 300, Size: 0, Kind: KindSymlink},
	}

	var buf bytes.Buffer
	if err := m.Serialize(&buf); err != nil {
		t.Fatalf("serialize: %v", err)
	}

	want := "a.txt\t100\t1\tf\nb.txt\t200\t2\tf\nlink/c.link\t300\t0\tl\n"
	if buf.String() != want {
		t.Fatalf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestRoundTrip(t *testing.T) {
	m := Manifest{
		"x": {Path: "x", MTime: 1, Size: 1, Kind: KindFile},
		"y": {Path: "y", MTime: 2, Size: 0, Kind: KindSymlink},
	}

	var buf bytes.Buffer
	if err := m.Serialize(&buf); err != nil {
		t.Fatalf("serialize: %v", err)
	}

	got, err := Parse(&buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if len(got) != len(m) {
		t.Fatalf("got %d entries, want %d", len(got), len(m))
	}
	for p, e := range m {
		ge, ok := got[p]
		if !ok {
			t.Fatalf("missing path %q after round-trip", p)
		}
		if !ge.Equal(e) {
			t.Fatalf("round-trip mismatch for %q: got %+v, want %+v", p, ge, e)
		}
	}
}

func TestParseEmptyIsEmptyManifest(t *testing.T) {
	m, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty manifest, got %d entries", len(m))
	}
}

func TestParseRejectsMalformedLine(t *testing.T) {
	_, err := Parse(strings.NewReader("a.txt\t100\t1\n"))
	if err == nil {
		t.Fatal("expected error for malformed line")
	}
}

func TestParseRejectsBadKind(t *testing.T) {
	_, err := Parse(strings.NewReader("a.txt\t100\t1\tz\n"))
	if err == nil {
		t.Fatal("expected error for bad kind")
	}
}

func TestEntryEqual(t *testing.T) {
	a := Entry{Path: "a", MTime: 1, Size: 2, Kind: KindFile}
	b := Entry{Path: "a", MTime: 1, Size: 2, Kind: KindFile}
	c := Entry{Path: "a", MTime: 1, Size: 3, Kind: KindFile}

	if !a.Equal(b) {
		t.Fatal("expected equal entries to compare equal")
	}
	if a.Equal(c) {
		t.Fatal("expected differing size to compare unequal")
	}
}
