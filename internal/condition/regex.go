package condition

import (
	"regexp"
	"sync"
)

// MaxPatternLength is the longest path pattern accepted for matching.
const MaxPatternLength = 512

// nestedQuantifier detects a quantified group that itself contains a
// quantifier, the classic catastrophic-backtracking shape ((a+)+ etc.).
// Go's RE2 engine cannot backtrack, but definitions are shared with host
// SDKs whose engines can, so such patterns are rejected outright.
var nestedQuantifier = regexp.MustCompile(`\([^()]*[+*{][^()]*\)[+*{]`)

// regexCache keeps compiled patterns for the hot evaluation path.
// Expected value type is *regexp.Regexp.
var regexCache sync.Map

// MatchPath reports whether value matches the given pattern.
// Unsafe patterns (overlong or backtracking-prone) and patterns that fail
// to compile match nothing.
func MatchPath(pattern, value string) bool {
	rx, ok := compilePattern(pattern)
	if !ok {
		return false
	}
	return rx.MatchString(value)
}

// SafePattern reports whether pattern passes the hardening checks and
// compiles. Used at definition time to reject patterns early.
func SafePattern(pattern string) bool {
	_, ok := compilePattern(pattern)
	return ok
}

func compilePattern(pattern string) (*regexp.Regexp, bool) {
	if pattern == "" || len(pattern) > MaxPatternLength {
		return nil, false
	}
	if nestedQuantifier.MatchString(pattern) {
		return nil, false
	}

	if cached, ok := regexCache.Load(pattern); ok {
		rx, ok := cached.(*regexp.Regexp)
		return rx, ok
	}

	rx, err := regexp.Compile(pattern)
	if err != nil {
		return nil, false
	}
	regexCache.Store(pattern, rx)
	return rx, true
}
