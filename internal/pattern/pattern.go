// Package pattern provides the pre-compiled string predicates used to filter
// build events.
package pattern

import (
	"fmt"
	"regexp"
)

// Matcher reports whether a string satisfies a configured predicate.
type Matcher interface {
	Matches(s string) bool
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(string) bool

// Matches calls f(s).
func (f MatcherFunc) Matches(s string) bool {
	return f(s)
}

// Set matches a string if any of its patterns matches it.
// Patterns are unanchored; use ^ and $ to anchor.
//
// An empty Set matches nothing.
type Set struct {
	patterns []string
	res      []*regexp.Regexp
}

// Compile compiles every pattern into a Set.
// Returns the first compilation failure, naming the offending pattern.
func Compile(patterns []string) (*Set, error) {
	s := &Set{
		patterns: make([]string, 0, len(patterns)),
		res:      make([]*regexp.Regexp, 0, len(patterns)),
	}
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern[%d] %q: %w", i, p, err)
		}
		s.patterns = append(s.patterns, p)
		s.res = append(s.res, re)
	}
	return s, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// package-level defaults.
func MustCompile(patterns ...string) *Set {
	s, err := Compile(patterns)
	if err != nil {
		panic(err)
	}
	return s
}

// Matches reports whether any pattern matches s.
func (s *Set) Matches(str string) bool {
	if s == nil {
		return false
	}
	for _, re := range s.res {
		if re.MatchString(str) {
			return true
		}
	}
	return false
}

// Patterns returns a copy of the source patterns in the order given.
func (s *Set) Patterns() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.patterns))
	copy(out, s.patterns)
	return out
}

// All matches every string.
var All Matcher = MatcherFunc(func(string) bool { return true })
