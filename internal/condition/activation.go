package condition

// Activation describes when a guidance content item activates for a
// resolved context. All present parts must hold (logical AND):
//
//   - ErrorIDs: the context's telemetry error id must equal one of them
//   - PathPattern: a hardened regex matched against the route path
//   - Expression: a predicate tree over the whole context
//
// An all-empty Activation never activates; content with no condition can
// never be surfaced, which is a definition warning, not an error.
type Activation struct {
	ErrorIDs    []string    `json:"errorIds,omitempty" yaml:"errorIds,omitempty"`
	PathPattern string      `json:"pathPattern,omitempty" yaml:"pathPattern,omitempty"`
	Expression  *Expression `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// Context paths consulted by Activates.
const (
	errorIDPath   = "telemetry.errorId"
	routePathPath = "route.path"
)

// Empty reports whether no condition part is present.
func (a Activation) Empty() bool {
	return len(a.ErrorIDs) == 0 && a.PathPattern == "" && a.Expression == nil
}

// Lint returns non-fatal definition warnings for a.
func (a Activation) Lint() []string {
	var warnings []string
	if a.Empty() {
		warnings = append(warnings, "activation has no conditions and can never activate")
	}
	if a.PathPattern != "" && !SafePattern(a.PathPattern) {
		warnings = append(warnings, "path pattern is rejected by the hardened matcher and can never activate")
	}
	return warnings
}

// Activates reports whether the content guarded by a should surface for ctx.
func (e *Evaluator) Activates(a Activation, ctx Context) bool {
	if a.Empty() {
		return false
	}

	if len(a.ErrorIDs) > 0 {
		raw, ok := ctx.Lookup(errorIDPath)
		if !ok {
			return false
		}
		errorID, ok := raw.(string)
		if !ok {
			return false
		}
		matched := false
		for _, id := range a.ErrorIDs {
			if id == errorID {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if a.PathPattern != "" {
		raw, ok := ctx.Lookup(routePathPath)
		if !ok {
			return false
		}
		path, ok := raw.(string)
		if !ok {
			return false
		}
		if !MatchPath(a.PathPattern, path) {
			return false
		}
	}

	if a.Expression != nil && !e.Evaluate(*a.Expression, ctx) {
		return false
	}

	return true
}
