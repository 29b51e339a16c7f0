// Package ignorelist decides whether a captured backtrace should
// suppress dependency processing for one lock acquisition, per
// spec.md §4.2. It is loaded once at startup and is then immutable,
// so reads never take a lock; Load replaces the table with a single
// atomic pointer swap, the same "classify once, read lock-free forever" shape as
// rtcheck/lockclass.go's LockClassAnalysis table.
package ignorelist

import (
	"path"
	"sort"
	"sync/atomic"
)

type table struct {
	exact    []string // sorted, for binary search
	patterns []string // matched linearly with path.Match
}

var current atomic.Pointer[table]

func init() {
	current.Store(&table{})
}

// Load installs a new exact-match set and glob-pattern set, replacing
// whatever was loaded before. Exact is sorted internally so ShouldSkip
// can binary search it.
func Load(exact, patterns []string) {
	sorted := append([]string(nil), exact...)
	sort.Strings(sorted)
	current.Store(&table{
		exact:    sorted,
		patterns: append([]string(nil), patterns...),
	})
}

// Exact returns the currently loaded exact-match frame names.
func Exact() []string {
	return append([]string(nil), current.Load().exact...)
}

// Patterns returns the currently loaded glob patterns.
func Patterns() []string {
	return append([]string(nil), current.Load().patterns...)
}

// ShouldSkip reports whether any of frames matches an exact name or a
// glob pattern in the loaded ignore-list.
func ShouldSkip(frames []string) bool {
	t := current.Load()
	if len(t.exact) == 0 && len(t.patterns) == 0 {
		return false
	}
	for _, f := range frames {
		if matchExact(t.exact, f) {
			return true
		}
		for _, pat := range t.patterns {
			if ok, err := path.Match(pat, f); ok && err == nil {
				return true
			}
		}
	}
	return false
}

func matchExact(sorted []string, name string) bool {
	i := sort.SearchStrings(sorted, name)
	return i < len(sorted) && sorted[i] == name
}
