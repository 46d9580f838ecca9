// Package experiment assigns experiment variants deterministically, records
// goal conversions, and computes two-proportion significance over outcomes.
package experiment

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nik-kale/guidekit/internal/segment"
)

// Sentinel errors returned by experiment operations.
var (
	ErrInvalidExperiment = errors.New("invalid experiment")
	ErrNotFound          = errors.New("experiment not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Status is the experiment lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

// WeightTolerance is the allowed drift when variant weights are summed.
const WeightTolerance = 0.01

// Variant is one arm of an experiment. Weight is a percentage (0-100);
// weights across an experiment must sum to 100 within WeightTolerance, and
// exactly one variant must be the control.
type Variant struct {
	ID        string         `json:"id" yaml:"id"`
	Weight    float64        `json:"weight" yaml:"weight"`
	Config    map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	IsControl bool           `json:"isControl" yaml:"isControl"`
}

// Goal is a conversion metric. The primary goal drives significance
// analysis; when none is marked primary the first goal is used.
type Goal struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Primary bool   `json:"primary,omitempty" yaml:"primary,omitempty"`
}

// Settings carries per-experiment analysis and assignment knobs.
// TimeoutMS is declared but not enforced by any evaluation path; see
// DESIGN.md.
type Settings struct {
	Confidence        float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	MinimumSampleSize int     `json:"minimumSampleSize,omitempty" yaml:"minimumSampleSize,omitempty"`
	Persist           bool    `json:"persist,omitempty" yaml:"persist,omitempty"`
	AutoWinner        bool    `json:"autoWinner,omitempty" yaml:"autoWinner,omitempty"`
	TimeoutMS         int64   `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
}

// DefaultConfidence applies when Settings.Confidence is zero.
const DefaultConfidence = 0.95

// Experiment is an immutable experiment definition; only Status changes
// after creation.
type Experiment struct {
	ID        string             `json:"id" yaml:"id"`
	Name      string             `json:"name,omitempty" yaml:"name,omitempty"`
	Variants  []Variant          `json:"variants" yaml:"variants"`
	Status    Status             `json:"status" yaml:"status"`
	Goals     []Goal             `json:"goals,omitempty" yaml:"goals,omitempty"`
	Targeting *segment.Targeting `json:"targeting,omitempty" yaml:"targeting,omitempty"`
	Settings  Settings           `json:"settings,omitempty" yaml:"settings,omitempty"`
	CreatedAt time.Time          `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt time.Time          `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// Control returns the control variant. Valid experiments always have one.
func (e Experiment) Control() *Variant {
	for i := range e.Variants {
		if e.Variants[i].IsControl {
			return &e.Variants[i]
		}
	}
	return nil
}

// PrimaryGoal returns the goal used for significance analysis, or nil when
// the experiment has no goals.
func (e Experiment) PrimaryGoal() *Goal {
	for i := range e.Goals {
		if e.Goals[i].Primary {
			return &e.Goals[i]
		}
	}
	if len(e.Goals) > 0 {
		return &e.Goals[0]
	}
	return nil
}

// Validate performs strict definition-time validation: weights sum to 100
// within tolerance, exactly one control, unique non-empty variant ids.
func Validate(e Experiment) error {
	if e.ID == "" {
		return fmt.Errorf("%w: id must not be empty", ErrInvalidExperiment)
	}
	if len(e.Variants) == 0 {
		return fmt.Errorf("%w: experiment %q must have at least one variant", ErrInvalidExperiment, e.ID)
	}

	totalWeight := 0.0
	controls := 0
	seen := make(map[string]bool, len(e.Variants))
	for i, v := range e.Variants {
		if v.ID == "" {
			return fmt.Errorf("%w: experiment %q variant[%d] id must not be empty", ErrInvalidExperiment, e.ID, i)
		}
		if seen[v.ID] {
			return fmt.Errorf("%w: experiment %q has duplicate variant id %q", ErrInvalidExperiment, e.ID, v.ID)
		}
		seen[v.ID] = true
		if v.Weight < 0 || v.Weight > 100 {
			return fmt.Errorf("%w: experiment %q variant %q weight %.2f must be between 0 and 100", ErrInvalidExperiment, e.ID, v.ID, v.Weight)
		}
		totalWeight += v.Weight
		if v.IsControl {
			controls++
		}
	}

	if math.Abs(totalWeight-100) > WeightTolerance {
		return fmt.Errorf("%w: experiment %q variant weights sum to %.2f, want 100", ErrInvalidExperiment, e.ID, totalWeight)
	}
	if controls != 1 {
		return fmt.Errorf("%w: experiment %q must have exactly one control variant, got %d", ErrInvalidExperiment, e.ID, controls)
	}

	seenGoals := make(map[string]bool, len(e.Goals))
	for i, g := range e.Goals {
		if g.ID == "" {
			return fmt.Errorf("%w: experiment %q goal[%d] id must not be empty", ErrInvalidExperiment, e.ID, i)
		}
		if seenGoals[g.ID] {
			return fmt.Errorf("%w: experiment %q has duplicate goal id %q", ErrInvalidExperiment, e.ID, g.ID)
		}
		seenGoals[g.ID] = true
	}

	if c := e.Settings.Confidence; c != 0 && (c <= 0 || c >= 1) {
		return fmt.Errorf("%w: experiment %q confidence %.3f must be in (0, 1)", ErrInvalidExperiment, e.ID, c)
	}
	return nil
}
