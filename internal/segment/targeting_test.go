package segment

import (
	"testing"

	"github.com/nik-kale/guidekit/internal/condition"
	"github.com/nik-kale/guidekit/internal/identity"
)

func strptr(s string) *string { return &s }

// targetingEngine seeds an engine with one premium user in the
// premium-users segment and the beta cohort.
func targetingEngine(t *testing.T) *Engine {
	t.Helper()
	e := testEngine()
	if err := e.DefineSegment(premiumSegment()); err != nil {
		t.Fatalf("DefineSegment: %v", err)
	}
	if _, err := e.UpdateAttributes(user("u1"), AttributePatch{User: map[string]any{"plan": "premium"}}); err != nil {
		t.Fatalf("UpdateAttributes: %v", err)
	}
	if err := e.AddUserToCohort(user("u1"), "beta", "Beta"); err != nil {
		t.Fatalf("AddUserToCohort: %v", err)
	}
	return e
}

func TestEvaluateTargeting(t *testing.T) {
	e := targetingEngine(t)

	tests := []struct {
		name      string
		targeting Targeting
		id        identity.Identity
		want      bool
	}{
		{name: "empty targeting passes everyone", targeting: Targeting{}, id: user("u1"), want: true},
		{name: "empty targeting passes unknown users", targeting: Targeting{}, id: user("ghost"), want: true},
		{
			name:      "include segment match",
			targeting: Targeting{IncludeSegments: []string{"premium-users"}},
			id:        user("u1"),
			want:      true,
		},
		{
			name:      "include segment miss",
			targeting: Targeting{IncludeSegments: []string{"premium-users"}},
			id:        user("ghost"),
			want:      false,
		},
		{
			name:      "include cohort match",
			targeting: Targeting{IncludeCohorts: []string{"beta"}},
			id:        user("u1"),
			want:      true,
		},
		{
			name:      "includes are OR across segments and cohorts",
			targeting: Targeting{IncludeSegments: []string{"no-such"}, IncludeCohorts: []string{"beta"}},
			id:        user("u1"),
			want:      true,
		},
		{
			name:      "exclusion vetoes inclusion",
			targeting: Targeting{IncludeSegments: []string{"premium-users"}, ExcludeCohorts: []string{"beta"}},
			id:        user("u1"),
			want:      false,
		},
		{
			name:      "exclude segment",
			targeting: Targeting{ExcludeSegments: []string{"premium-users"}},
			id:        user("u1"),
			want:      false,
		},
		{
			name:      "exclusion of non-member passes",
			targeting: Targeting{ExcludeSegments: []string{"premium-users"}},
			id:        user("ghost"),
			want:      true,
		},
		{
			name:      "unregistered custom predicate fails closed",
			targeting: Targeting{CustomLogicID: "nope"},
			id:        user("u1"),
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.EvaluateTargeting(tt.targeting, tt.id, nil); got != tt.want {
				t.Fatalf("EvaluateTargeting() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateTargeting_CustomPredicate(t *testing.T) {
	e := targetingEngine(t)
	e.RegisterPredicate("weekday-only", func(id identity.Identity, ctx condition.Context) bool {
		day, _ := ctx.Lookup("day")
		return day == "monday"
	})

	tr := Targeting{CustomLogicID: "weekday-only"}
	if !e.EvaluateTargeting(tr, user("u1"), condition.Context{"day": "monday"}) {
		t.Fatal("expected predicate to pass")
	}
	if e.EvaluateTargeting(tr, user("u1"), condition.Context{"day": "sunday"}) {
		t.Fatal("expected predicate to fail")
	}
}

func TestEvaluateTargeting_Expression(t *testing.T) {
	e := targetingEngine(t)
	ctx := condition.Context{"age": 25, "country": "US"}

	tests := []struct {
		name       string
		expression string
		want       bool
	}{
		{name: "comparison true", expression: `{">": [{"var": "age"}, 18]}`, want: true},
		{name: "comparison false", expression: `{">": [{"var": "age"}, 30]}`, want: false},
		{name: "and of vars", expression: `{"and": [{">": [{"var": "age"}, 18]}, {"==": [{"var": "country"}, "US"]}]}`, want: true},
		{name: "invalid json fails closed", expression: `{">": [`, want: false},
		{name: "blank fails closed", expression: `   `, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := Targeting{Expression: strptr(tt.expression)}
			if got := e.EvaluateTargeting(tr, user("u1"), ctx); got != tt.want {
				t.Fatalf("EvaluateTargeting() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTruthy(t *testing.T) {
	tests := []struct {
		value any
		want  bool
	}{
		{nil, false},
		{true, true},
		{false, false},
		{0.0, false},
		{1.5, true},
		{"", false},
		{"x", true},
		{[]any{}, false},
		{[]any{1}, true},
		{map[string]any{}, false},
		{map[string]any{"k": 1}, true},
	}
	for _, tt := range tests {
		if got := isTruthy(tt.value); got != tt.want {
			t.Errorf("isTruthy(%v) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
