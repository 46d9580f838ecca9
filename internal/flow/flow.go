// Package flow drives per-user executions through branching step graphs,
// tracking progress, back-navigation, and checklists.
package flow

import (
	"errors"
	"fmt"

	"github.com/nik-kale/guidekit/internal/condition"
)

// Sentinel errors returned by flow operations.
var (
	ErrInvalidFlow     = errors.New("invalid flow")
	ErrFlowNotFound    = errors.New("flow not found")
	ErrExecNotFound    = errors.New("execution not found")
	ErrExecTerminal    = errors.New("execution is terminal")
	ErrNotPermitted    = errors.New("operation not permitted by flow settings")
	ErrNothingToGoBack = errors.New("no previous step to go back to")
)

// BranchKind names the condition evaluated on a branch.
type BranchKind string

const (
	// BranchUserAction compares the action string supplied to advance.
	BranchUserAction BranchKind = "userAction"
	// BranchCustomLogic delegates to a host-registered predicate.
	BranchCustomLogic BranchKind = "customLogic"
	// BranchEvent is an unsupported extension point that always
	// evaluates false. Event-matching semantics are an open product
	// decision; definitions using it validate with a warning.
	BranchEvent BranchKind = "event"
)

// Branch is a conditional edge from one step to another, chosen ahead of
// the default sequential order. Higher Priority wins; ties keep
// declaration order.
type Branch struct {
	Target   string     `json:"target" yaml:"target"`
	Priority int        `json:"priority,omitempty" yaml:"priority,omitempty"`
	Kind     BranchKind `json:"kind" yaml:"kind"`
	Action   string     `json:"action,omitempty" yaml:"action,omitempty"`
	LogicID  string     `json:"logicId,omitempty" yaml:"logicId,omitempty"`
}

// Step is one node of a flow. Order drives the default sequential
// progression; branches pre-empt it.
type Step struct {
	ID         string                `json:"id" yaml:"id"`
	Order      int                   `json:"order" yaml:"order"`
	Branches   []Branch              `json:"branches,omitempty" yaml:"branches,omitempty"`
	Criteria   *condition.Expression `json:"criteria,omitempty" yaml:"criteria,omitempty"`
	DelayMS    int64                 `json:"delayMs,omitempty" yaml:"delayMs,omitempty"`
	CallbackID string                `json:"callbackId,omitempty" yaml:"callbackId,omitempty"`
}

// Settings carries per-flow behavior toggles. TimeoutMS is declared but
// not enforced by any evaluation path; see DESIGN.md.
type Settings struct {
	AllowBack bool  `json:"allowBack,omitempty" yaml:"allowBack,omitempty"`
	AllowSkip bool  `json:"allowSkip,omitempty" yaml:"allowSkip,omitempty"`
	TimeoutMS int64 `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
}

// Flow is an immutable directed step graph definition.
type Flow struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name,omitempty" yaml:"name,omitempty"`
	Steps      []Step   `json:"steps" yaml:"steps"`
	StartStep  string   `json:"startStep" yaml:"startStep"`
	Settings   Settings `json:"settings,omitempty" yaml:"settings,omitempty"`
	CallbackID string   `json:"callbackId,omitempty" yaml:"callbackId,omitempty"`
}

// Validate checks that the start step and every branch target resolve to
// declared step ids; dangling references are definition-time errors.
// It returns non-fatal warnings alongside a nil error.
func Validate(f Flow) ([]string, error) {
	if f.ID == "" {
		return nil, fmt.Errorf("%w: id must not be empty", ErrInvalidFlow)
	}
	if len(f.Steps) == 0 {
		return nil, fmt.Errorf("%w: flow %q must have at least one step", ErrInvalidFlow, f.ID)
	}

	index := make(map[string]struct{}, len(f.Steps))
	for i, s := range f.Steps {
		if s.ID == "" {
			return nil, fmt.Errorf("%w: flow %q step[%d] id must not be empty", ErrInvalidFlow, f.ID, i)
		}
		if _, dup := index[s.ID]; dup {
			return nil, fmt.Errorf("%w: flow %q has duplicate step id %q", ErrInvalidFlow, f.ID, s.ID)
		}
		index[s.ID] = struct{}{}
	}

	if f.StartStep == "" {
		return nil, fmt.Errorf("%w: flow %q startStep must not be empty", ErrInvalidFlow, f.ID)
	}
	if _, ok := index[f.StartStep]; !ok {
		return nil, fmt.Errorf("%w: flow %q startStep %q does not reference a declared step", ErrInvalidFlow, f.ID, f.StartStep)
	}

	var warnings []string
	for _, s := range f.Steps {
		for bi, b := range s.Branches {
			if _, ok := index[b.Target]; !ok {
				return nil, fmt.Errorf("%w: flow %q step %q branch[%d] target %q does not reference a declared step", ErrInvalidFlow, f.ID, s.ID, bi, b.Target)
			}
			switch b.Kind {
			case BranchUserAction:
				if b.Action == "" {
					return nil, fmt.Errorf("%w: flow %q step %q branch[%d] userAction branch requires an action", ErrInvalidFlow, f.ID, s.ID, bi)
				}
			case BranchCustomLogic:
				if b.LogicID == "" {
					return nil, fmt.Errorf("%w: flow %q step %q branch[%d] customLogic branch requires a logicId", ErrInvalidFlow, f.ID, s.ID, bi)
				}
			case BranchEvent:
				warnings = append(warnings, fmt.Sprintf("flow %q step %q branch[%d] uses the event kind, which never fires", f.ID, s.ID, bi))
			default:
				return nil, fmt.Errorf("%w: flow %q step %q branch[%d] kind %q is not supported", ErrInvalidFlow, f.ID, s.ID, bi, b.Kind)
			}
		}
	}
	return warnings, nil
}
