package condition

import (
	"testing"

	"github.com/rs/zerolog"
)

func testEvaluator() *Evaluator {
	return NewEvaluator(zerolog.Nop())
}

func TestEvaluate_Leaves(t *testing.T) {
	ctx := Context{
		"plan":  "premium",
		"loginCount": 12,
		"user": map[string]any{
			"profile": map[string]any{
				"country": "US",
			},
		},
	}

	tests := []struct {
		name string
		expr Expression
		want bool
	}{
		{
			name: "equals top-level field",
			expr: Expression{Operator: OpEquals, Field: "plan", Value: "premium"},
			want: true,
		},
		{
			name: "dot path into nested maps",
			expr: Expression{Operator: OpEquals, Field: "user.profile.country", Value: "US"},
			want: true,
		},
		{
			name: "missing field is false",
			expr: Expression{Operator: OpEquals, Field: "user.profile.city", Value: "NYC"},
			want: false,
		},
		{
			name: "traversal through non-map is false",
			expr: Expression{Operator: OpEquals, Field: "plan.tier", Value: "gold"},
			want: false,
		},
		{
			name: "type mismatch is false",
			expr: Expression{Operator: OpGreaterThan, Field: "plan", Value: 5},
			want: false,
		},
		{
			name: "numeric comparison",
			expr: Expression{Operator: OpGreaterThan, Field: "loginCount", Value: 10},
			want: true,
		},
		{
			name: "leaf without field is false",
			expr: Expression{Operator: OpEquals, Value: "premium"},
			want: false,
		},
		{
			name: "missing operator is false",
			expr: Expression{Field: "plan", Value: "premium"},
			want: false,
		},
		{
			name: "unknown operator is false",
			expr: Expression{Operator: Operator("like"), Field: "plan", Value: "premium"},
			want: false,
		},
	}

	e := testEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Evaluate(tt.expr, ctx); got != tt.want {
				t.Fatalf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_Combinators(t *testing.T) {
	ctx := Context{"a": 1, "b": 2}

	eqA := Expression{Operator: OpEquals, Field: "a", Value: 1}
	eqB := Expression{Operator: OpEquals, Field: "b", Value: 2}
	neq := Expression{Operator: OpEquals, Field: "a", Value: 99}

	tests := []struct {
		name string
		expr Expression
		want bool
	}{
		{name: "and all true", expr: Expression{Operator: OpAnd, Operands: []Expression{eqA, eqB}}, want: true},
		{name: "and one false", expr: Expression{Operator: OpAnd, Operands: []Expression{eqA, neq}}, want: false},
		{name: "empty and is false", expr: Expression{Operator: OpAnd}, want: false},
		{name: "or one true", expr: Expression{Operator: OpOr, Operands: []Expression{neq, eqB}}, want: true},
		{name: "or all false", expr: Expression{Operator: OpOr, Operands: []Expression{neq, neq}}, want: false},
		{name: "empty or is false", expr: Expression{Operator: OpOr}, want: false},
		{name: "not inverts", expr: Expression{Operator: OpNot, Operands: []Expression{neq}}, want: true},
		{name: "not of true", expr: Expression{Operator: OpNot, Operands: []Expression{eqA}}, want: false},
		{name: "not with zero operands is false", expr: Expression{Operator: OpNot}, want: false},
		{name: "not with two operands is false", expr: Expression{Operator: OpNot, Operands: []Expression{eqA, eqB}}, want: false},
		{
			name: "nested combinators",
			expr: Expression{Operator: OpAnd, Operands: []Expression{
				eqA,
				{Operator: OpOr, Operands: []Expression{neq, eqB}},
			}},
			want: true,
		},
	}

	e := testEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Evaluate(tt.expr, ctx); got != tt.want {
				t.Fatalf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_DepthLimit(t *testing.T) {
	// A chain of not operators deeper than MaxDepth must evaluate to
	// false without exhausting the stack.
	leaf := Expression{Operator: OpEquals, Field: "a", Value: 1}
	expr := leaf
	for i := 0; i < MaxDepth+10; i++ {
		expr = Expression{Operator: OpNot, Operands: []Expression{expr}}
	}

	e := testEvaluator()
	if e.Evaluate(expr, Context{"a": 1}) {
		t.Fatal("expected over-deep tree to evaluate false")
	}

	// A tree exactly at the limit still evaluates normally.
	expr = leaf
	for i := 0; i < MaxDepth-1; i++ {
		expr = Expression{Operator: OpAnd, Operands: []Expression{expr}}
	}
	if !e.Evaluate(expr, Context{"a": 1}) {
		t.Fatal("expected tree within depth limit to evaluate true")
	}
}

func TestEvaluate_NilContext(t *testing.T) {
	e := testEvaluator()
	expr := Expression{Operator: OpEquals, Field: "plan", Value: "premium"}
	if e.Evaluate(expr, nil) {
		t.Fatal("expected false against nil context")
	}
}
