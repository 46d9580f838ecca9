// Package condition provides safe boolean predicate evaluation for
// guidance targeting. Expressions are plain data trees evaluated against a
// read-only context; evaluation never panics, never returns an error, and
// degrades to false on missing data, type mismatches, or malformed nodes.
package condition

import "strings"

// Context is the evaluation context assembled by the host: nested
// JSON-like key/value data (telemetry fields, route fields, custom
// attributes). It is read-only during evaluation.
type Context map[string]any

// Lookup walks a dot-separated path through nested maps.
// Any missing intermediate key yields (nil, false), never an error.
func (c Context) Lookup(path string) (any, bool) {
	if c == nil || path == "" {
		return nil, false
	}

	var current any = map[string]any(c)
	for _, part := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			if ctx, ok := current.(Context); ok {
				node = map[string]any(ctx)
			} else {
				return nil, false
			}
		}
		next, ok := node[part]
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}
