package experiment

import (
	"errors"
	"testing"
)

func twoArm() Experiment {
	return Experiment{
		ID: "checkout-cta",
		Variants: []Variant{
			{ID: "control", Weight: 50, IsControl: true},
			{ID: "bold-cta", Weight: 50},
		},
		Goals: []Goal{{ID: "purchase", Primary: true}},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Experiment)
		valid  bool
	}{
		{name: "valid two-arm", mutate: func(*Experiment) {}, valid: true},
		{name: "empty id", mutate: func(e *Experiment) { e.ID = "" }, valid: false},
		{name: "no variants", mutate: func(e *Experiment) { e.Variants = nil }, valid: false},
		{
			name:   "weights under 100",
			mutate: func(e *Experiment) { e.Variants[1].Weight = 40 },
			valid:  false,
		},
		{
			name:   "weights within tolerance",
			mutate: func(e *Experiment) { e.Variants[1].Weight = 50.005 },
			valid:  true,
		},
		{
			name:   "negative weight",
			mutate: func(e *Experiment) { e.Variants[0].Weight = -10; e.Variants[1].Weight = 110 },
			valid:  false,
		},
		{
			name:   "no control",
			mutate: func(e *Experiment) { e.Variants[0].IsControl = false },
			valid:  false,
		},
		{
			name:   "two controls",
			mutate: func(e *Experiment) { e.Variants[1].IsControl = true },
			valid:  false,
		},
		{
			name:   "duplicate variant id",
			mutate: func(e *Experiment) { e.Variants[1].ID = "control" },
			valid:  false,
		},
		{
			name:   "empty variant id",
			mutate: func(e *Experiment) { e.Variants[1].ID = "" },
			valid:  false,
		},
		{
			name:   "duplicate goal id",
			mutate: func(e *Experiment) { e.Goals = append(e.Goals, Goal{ID: "purchase"}) },
			valid:  false,
		},
		{
			name:   "confidence out of range",
			mutate: func(e *Experiment) { e.Settings.Confidence = 1.5 },
			valid:  false,
		},
		{
			name:   "zero confidence means default",
			mutate: func(e *Experiment) { e.Settings.Confidence = 0 },
			valid:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := twoArm()
			tt.mutate(&exp)
			err := Validate(exp)
			if tt.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.valid {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, ErrInvalidExperiment) {
					t.Fatalf("error %v is not ErrInvalidExperiment", err)
				}
			}
		})
	}
}

func TestControlAndPrimaryGoal(t *testing.T) {
	exp := twoArm()
	if c := exp.Control(); c == nil || c.ID != "control" {
		t.Fatalf("Control() = %v", c)
	}
	if g := exp.PrimaryGoal(); g == nil || g.ID != "purchase" {
		t.Fatalf("PrimaryGoal() = %v", g)
	}

	// Without an explicit primary the first goal wins.
	exp.Goals = []Goal{{ID: "signup"}, {ID: "purchase"}}
	if g := exp.PrimaryGoal(); g == nil || g.ID != "signup" {
		t.Fatalf("PrimaryGoal() = %v, want signup", g)
	}

	exp.Goals = nil
	if g := exp.PrimaryGoal(); g != nil {
		t.Fatalf("PrimaryGoal() = %v, want nil", g)
	}
}
