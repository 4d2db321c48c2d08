package scanner

import (
	"github.com/gobwas/glob"
)

// ExcludeSet compiles the configured glob patterns plus the always-excluded
// internal directories once per scan, so Match is cheap per path.
type ExcludeSet struct {
	compiled []glob.Glob
}

// NewExcludeSet compiles patterns (typically from Config.ExcludePatterns)
// together with the sync-root internal directories that are always
// excluded regardless of configuration.
func NewExcludeSet(patterns []string) *ExcludeSet {
	all := make([]string, 0, len(patterns)+len(alwaysExcluded)*2)
	all = append(all, patterns...)
	for _, dir := range alwaysExcluded {
		all = append(all, dir, dir+"/**")
	}

	es := &ExcludeSet{compiled: make([]glob.Glob, 0, len(all))}
	for _, p := range all {
		g, err := glob.Compile(p, '/')
		if err != nil {
			// An unparseable pattern is treated as a literal path match
			// rather than aborting the whole scan.
			g = glob.MustCompile(glob.QuoteMeta(p), '/')
		}
		es.compiled = append(es.compiled, g)
	}
	return es
}

// Match reports whether rel (a forward-slash path relative to the scan
// root, no leading "./") matches any configured or internal exclusion.
// A nil ExcludeSet matches nothing.
func (es *ExcludeSet) Match(rel string) bool {
	if es == nil {
		return false
	}
	for _, g := range es.compiled {
		if g.Match(rel) {
			return true
		}
	}
	return false
}
