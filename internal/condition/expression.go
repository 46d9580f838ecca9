package condition

import (
	"github.com/rs/zerolog"
)

// MaxDepth bounds recursive descent through an expression tree. Trees are
// acyclic by construction, but the depth limit is the robust defense
// regardless of how a definition was assembled: a subtree deeper than this
// evaluates to false.
const MaxDepth = 50

// Expression is one node of a boolean predicate tree. Leaf operators
// (equals, notEquals, contains, greaterThan, lessThan) read Field from the
// context and compare against Value; combinators (and, or, not) evaluate
// Operands.
type Expression struct {
	Operator Operator     `json:"operator" yaml:"operator"`
	Field    string       `json:"field,omitempty" yaml:"field,omitempty"`
	Value    any          `json:"value,omitempty" yaml:"value,omitempty"`
	Operands []Expression `json:"operands,omitempty" yaml:"operands,omitempty"`
}

// Evaluator evaluates predicate expressions against evaluation contexts.
// It carries an injected logger for evaluation-time diagnostics.
type Evaluator struct {
	log zerolog.Logger
}

// NewEvaluator returns an Evaluator that reports diagnostics to log.
func NewEvaluator(log zerolog.Logger) *Evaluator {
	return &Evaluator{log: log}
}

// Evaluate computes the boolean value of expr against ctx.
// It never returns an error: missing fields, type mismatches, malformed
// nodes, and depth-limit violations all evaluate to false.
func (e *Evaluator) Evaluate(expr Expression, ctx Context) bool {
	return e.eval(expr, ctx, 0)
}

func (e *Evaluator) eval(expr Expression, ctx Context, depth int) bool {
	if depth > MaxDepth {
		e.log.Warn().Int("depth", depth).Msg("predicate depth limit exceeded, subtree evaluates false")
		return false
	}

	switch expr.Operator {
	case OpAnd:
		// Empty operand list is false, not vacuously true.
		if len(expr.Operands) == 0 {
			return false
		}
		for _, op := range expr.Operands {
			if !e.eval(op, ctx, depth+1) {
				return false
			}
		}
		return true

	case OpOr:
		for _, op := range expr.Operands {
			if e.eval(op, ctx, depth+1) {
				return true
			}
		}
		return false

	case OpNot:
		if len(expr.Operands) != 1 {
			e.log.Debug().Int("operands", len(expr.Operands)).Msg("not operator requires exactly one operand")
			return false
		}
		return !e.eval(expr.Operands[0], ctx, depth+1)

	case OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan:
		if expr.Field == "" {
			e.log.Debug().Str("operator", string(expr.Operator)).Msg("leaf operator missing field")
			return false
		}
		value, ok := ctx.Lookup(expr.Field)
		if !ok {
			return false
		}
		return Compare(expr.Operator, value, expr.Value)

	case "":
		e.log.Debug().Msg("malformed predicate operand: missing operator")
		return false

	default:
		e.log.Debug().Str("operator", string(expr.Operator)).Msg("unknown predicate operator")
		return false
	}
}
