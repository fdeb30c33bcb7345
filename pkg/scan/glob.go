// twine matches key names and list items against Redis-style glob patterns (KEYS, LFIND); the following module
// validates patterns with the v.io glob parser and matches whole values the way Redis does.

package scan

import (
	"errors"
	"fmt"
	"iter"

	"github.com/tidwall/match"
	"v.io/v23/glob"
)

// GlobPredicate compiles `pattern` into a predicate reporting whether a value matches it.
// Patterns are matched against the whole value; '*' and '?' also match a '/' separator.
func GlobPredicate(pattern string) (func(string) bool, error) {
	if pattern == "" {
		return nil, errors.New("expected a non-empty glob pattern")
	}
	if _, err := glob.Parse(pattern); err != nil {
		return nil, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
	}
	return func(value string) bool { return match.Match(value, pattern) }, nil
}

// MatchGlob lazily filters the `values` stream with the given glob `pattern`.
func MatchGlob(pattern string, values iter.Seq[string]) iter.Seq[string] {
	matches, err := GlobPredicate(pattern)
	if err != nil { // If pattern is invalid, return empty sequence.
		return func(yield func(string) bool) {}
	}
	return func(yield func(string) bool) {
		for value := range values {
			if matches(value) {
				if !yield(value) {
					return
				}
			}
		}
	}
}
