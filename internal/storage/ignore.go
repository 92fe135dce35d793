package storage

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreList matches vault-relative paths against glob patterns. Patterns
// follow doublestar semantics, so `**` crosses directory boundaries. A
// pattern without a slash is also matched against the base name alone,
// which makes entries like `.DS_Store` or `*.log` apply at any depth.
type IgnoreList struct {
	patterns []string
}

// NewIgnoreList compiles an ignore list. Invalid patterns are dropped.
func NewIgnoreList(patterns []string) *IgnoreList {
	il := &IgnoreList{}
	for _, p := range patterns {
		if doublestar.ValidatePattern(p) {
			il.patterns = append(il.patterns, p)
		}
	}
	return il
}

// With returns a copy of the list extended by the given patterns.
func (il *IgnoreList) With(patterns ...string) *IgnoreList {
	return NewIgnoreList(append(append([]string(nil), il.patterns...), patterns...))
}

// Match reports whether the vault-relative path should be ignored.
func (il *IgnoreList) Match(rel string) bool {
	rel = path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	base := path.Base(rel)
	for _, p := range il.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if !strings.Contains(p, "/") {
			if ok, _ := doublestar.Match(p, base); ok {
				return true
			}
		}
	}
	return false
}
