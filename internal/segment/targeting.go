package segment

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/diegoholiveira/jsonlogic/v3"

	"github.com/nik-kale/guidekit/internal/condition"
	"github.com/nik-kale/guidekit/internal/identity"
)

// Targeting composes audience gates for experiments and flows:
// inclusion segments/cohorts (OR among them), exclusion segments/cohorts
// (any match vetoes), an optional host-registered custom predicate, and an
// optional JSON Logic expression over the evaluation context. Exclusions
// always take precedence over inclusions.
type Targeting struct {
	IncludeSegments []string `json:"includeSegments,omitempty" yaml:"includeSegments,omitempty"`
	IncludeCohorts  []string `json:"includeCohorts,omitempty" yaml:"includeCohorts,omitempty"`
	ExcludeSegments []string `json:"excludeSegments,omitempty" yaml:"excludeSegments,omitempty"`
	ExcludeCohorts  []string `json:"excludeCohorts,omitempty" yaml:"excludeCohorts,omitempty"`

	// CustomLogicID names a predicate registered on the engine by the
	// host. The definition carries only the id, never a callable.
	CustomLogicID string `json:"customLogicId,omitempty" yaml:"customLogicId,omitempty"`

	// Expression is an optional JSON Logic document (data, not code)
	// evaluated against the evaluation context.
	Expression *string `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// CustomPredicate is a host-supplied targeting extension point.
type CustomPredicate func(id identity.Identity, ctx condition.Context) bool

// RegisterPredicate registers a custom predicate under the given id,
// replacing any previous registration.
func (e *Engine) RegisterPredicate(id string, fn CustomPredicate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.predicates == nil {
		e.predicates = make(map[string]CustomPredicate)
	}
	e.predicates[id] = fn
}

// EvaluateTargeting decides whether the identity passes t for the given
// evaluation context. Missing custom predicates and invalid expressions
// degrade to false (no match) with a diagnostic.
func (e *Engine) EvaluateTargeting(t Targeting, id identity.Identity, ctx condition.Context) bool {
	key, _ := id.Key()

	e.mu.RLock()
	var p *Profile
	if key != "" {
		p = e.profiles[key]
	}
	fn := e.predicates[t.CustomLogicID]
	e.mu.RUnlock()

	inSegment := func(segID string) bool {
		if p == nil {
			return false
		}
		_, ok := p.Segments[segID]
		return ok
	}
	inCohort := func(cohortID string) bool {
		if p == nil {
			return false
		}
		_, ok := p.Cohorts[cohortID]
		return ok
	}

	// Exclusions veto before anything else.
	for _, segID := range t.ExcludeSegments {
		if inSegment(segID) {
			return false
		}
	}
	for _, cohortID := range t.ExcludeCohorts {
		if inCohort(cohortID) {
			return false
		}
	}

	if len(t.IncludeSegments) > 0 || len(t.IncludeCohorts) > 0 {
		included := false
		for _, segID := range t.IncludeSegments {
			if inSegment(segID) {
				included = true
				break
			}
		}
		if !included {
			for _, cohortID := range t.IncludeCohorts {
				if inCohort(cohortID) {
					included = true
					break
				}
			}
		}
		if !included {
			return false
		}
	}

	if t.CustomLogicID != "" {
		if fn == nil {
			e.log.Warn().Str("customLogicId", t.CustomLogicID).Msg("custom predicate not registered, targeting fails closed")
			return false
		}
		if !fn(id, ctx) {
			return false
		}
	}

	if t.Expression != nil {
		ok, err := evaluateExpression(*t.Expression, ctx)
		if err != nil {
			e.log.Warn().Err(err).Msg("targeting expression failed, targeting fails closed")
			return false
		}
		if !ok {
			return false
		}
	}

	return true
}

// evaluateExpression applies a JSON Logic document to the context and
// converts the result with JavaScript-like truthiness.
func evaluateExpression(expression string, ctx condition.Context) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return false, nil
	}

	dataBytes, err := json.Marshal(map[string]any(ctx))
	if err != nil {
		return false, err
	}

	var resultBuf bytes.Buffer
	if err := jsonlogic.Apply(strings.NewReader(expression), bytes.NewReader(dataBytes), &resultBuf); err != nil {
		return false, err
	}

	var result any
	if err := json.Unmarshal(resultBuf.Bytes(), &result); err != nil {
		return false, err
	}
	return isTruthy(result), nil
}

func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}
