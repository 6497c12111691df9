// Package pathutil matches request paths against skip lists.
package pathutil

import "strings"

// NewPathMatcher returns a predicate reporting whether path is in paths
// or starts with one of prefixes.
func NewPathMatcher(paths, prefixes []string) func(path string) bool {
	exact := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		exact[p] = struct{}{}
	}
	return func(path string) bool {
		if _, ok := exact[path]; ok {
			return true
		}
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(path, p) {
				return true
			}
		}
		return false
	}
}
