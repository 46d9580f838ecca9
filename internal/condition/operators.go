package condition

import (
	"encoding/json"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Operator represents a comparison operator used in predicate expressions
// and segment conditions (string values for clean JSON serialization).
type Operator string

const (
	OpEquals        Operator = "equals"
	OpNotEquals     Operator = "notEquals"
	OpContains      Operator = "contains"
	OpGreaterThan   Operator = "greaterThan"
	OpLessThan      Operator = "lessThan"
	OpIn            Operator = "in"
	OpNotIn         Operator = "notIn"
	OpExists        Operator = "exists"
	OpNotExists     Operator = "notExists"
	OpSemVerGreater Operator = "semverGreaterThan"
	OpSemVerLess    Operator = "semverLessThan"

	OpAnd Operator = "and"
	OpOr  Operator = "or"
	OpNot Operator = "not"
)

// OperatorHandler evaluates one comparison operator.
type OperatorHandler interface {
	Check(contextValue, ruleValue any) bool
}

var operatorHandlers = map[Operator]OperatorHandler{
	OpEquals:        equalsHandler{},
	OpNotEquals:     notEqualsHandler{},
	OpContains:      containsHandler{},
	OpGreaterThan:   numericCompareHandler{cmp: func(a, b float64) bool { return a > b }},
	OpLessThan:      numericCompareHandler{cmp: func(a, b float64) bool { return a < b }},
	OpIn:            inHandler{},
	OpNotIn:         notInHandler{},
	OpSemVerGreater: semverCompareHandler{cmp: func(a, b *semver.Version) bool { return a.GreaterThan(b) }},
	OpSemVerLess:    semverCompareHandler{cmp: func(a, b *semver.Version) bool { return a.LessThan(b) }},
}

// Compare applies op to a context value and a rule value.
// Unknown operators and type mismatches yield false.
// OpExists / OpNotExists are presence checks and are handled by callers
// that know whether the field resolved; Compare treats them as unknown.
func Compare(op Operator, contextValue, ruleValue any) bool {
	h, ok := operatorHandlers[op]
	if !ok {
		return false
	}
	return h.Check(contextValue, ruleValue)
}

// IsComparison reports whether op is a value-comparison operator
// (as opposed to a combinator or presence check).
func IsComparison(op Operator) bool {
	_, ok := operatorHandlers[op]
	return ok
}

type equalsHandler struct{}

func (equalsHandler) Check(contextValue, ruleValue any) bool {
	if user, ok := toString(contextValue); ok {
		rule, ok := toString(ruleValue)
		return ok && user == rule
	}
	if user, ok := toFloat64(contextValue); ok {
		rule, ok := toFloat64(ruleValue)
		return ok && user == rule
	}
	if user, ok := contextValue.(bool); ok {
		rule, ok := ruleValue.(bool)
		return ok && user == rule
	}
	return false
}

type notEqualsHandler struct{}

// notEquals is conservative: the values must be of a comparable pair of
// types and differ. A type mismatch is false, not "trivially unequal".
func (notEqualsHandler) Check(contextValue, ruleValue any) bool {
	if user, ok := toString(contextValue); ok {
		rule, ok := toString(ruleValue)
		return ok && user != rule
	}
	if user, ok := toFloat64(contextValue); ok {
		rule, ok := toFloat64(ruleValue)
		return ok && user != rule
	}
	if user, ok := contextValue.(bool); ok {
		rule, ok := ruleValue.(bool)
		return ok && user != rule
	}
	return false
}

type containsHandler struct{}

// contains accepts string-substring or array-membership semantics.
func (containsHandler) Check(contextValue, ruleValue any) bool {
	if user, ok := toString(contextValue); ok {
		rule, ok := toString(ruleValue)
		return ok && strings.Contains(user, rule)
	}
	if list, ok := toSlice(contextValue); ok {
		eq := equalsHandler{}
		for _, item := range list {
			if eq.Check(item, ruleValue) {
				return true
			}
		}
	}
	return false
}

type numericCompareHandler struct {
	cmp func(a, b float64) bool
}

func (h numericCompareHandler) Check(contextValue, ruleValue any) bool {
	user, ok := toFloat64(contextValue)
	if !ok {
		return false
	}
	rule, ok := toFloat64(ruleValue)
	if !ok {
		return false
	}
	return h.cmp(user, rule)
}

type inHandler struct{}

func (inHandler) Check(contextValue, ruleValue any) bool {
	list, ok := toSlice(ruleValue)
	if !ok {
		return false
	}
	eq := equalsHandler{}
	for _, item := range list {
		if eq.Check(contextValue, item) {
			return true
		}
	}
	return false
}

type notInHandler struct{}

func (notInHandler) Check(contextValue, ruleValue any) bool {
	if _, ok := toSlice(ruleValue); !ok {
		return false
	}
	return !inHandler{}.Check(contextValue, ruleValue)
}

type semverCompareHandler struct {
	cmp func(a, b *semver.Version) bool
}

func (h semverCompareHandler) Check(contextValue, ruleValue any) bool {
	userStr, ok := toString(contextValue)
	if !ok {
		return false
	}
	ruleStr, ok := toString(ruleValue)
	if !ok {
		return false
	}
	userVer, err := semver.NewVersion(userStr)
	if err != nil {
		return false
	}
	ruleVer, err := semver.NewVersion(ruleStr)
	if err != nil {
		return false
	}
	return h.cmp(userVer, ruleVer)
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toSlice(v any) ([]any, bool) {
	switch values := v.(type) {
	case []any:
		return values, true
	case []string:
		result := make([]any, len(values))
		for i, s := range values {
			result[i] = s
		}
		return result, true
	case []int:
		result := make([]any, len(values))
		for i, n := range values {
			result[i] = n
		}
		return result, true
	case []float64:
		result := make([]any, len(values))
		for i, f := range values {
			result[i] = f
		}
		return result, true
	default:
		return nil, false
	}
}
