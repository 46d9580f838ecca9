// Package segment classifies users into named audiences from attribute
// rules and explicit cohort membership, and evaluates targeting over the
// resulting audience data.
package segment

import (
	"errors"
	"fmt"

	"github.com/nik-kale/guidekit/internal/condition"
)

// Sentinel errors returned by segment validation.
var (
	ErrInvalidSegment   = errors.New("invalid segment")
	ErrInvalidRule      = errors.New("invalid segment rule")
	ErrInvalidCondition = errors.New("invalid segment condition")
)

// AttributeKind names the attribute category a condition reads.
type AttributeKind string

const (
	KindUser     AttributeKind = "user"
	KindCompany  AttributeKind = "company"
	KindBehavior AttributeKind = "behavior"
	KindCohort   AttributeKind = "cohort"
)

// RuleLogic combines the conditions of one rule.
type RuleLogic string

const (
	LogicAnd RuleLogic = "and"
	LogicOr  RuleLogic = "or"
)

// Condition is a single audience predicate over one attribute category.
// Cohort conditions test membership sets rather than attributes and accept
// only equals/in (member) and notEquals/notIn (non-member).
type Condition struct {
	Kind     AttributeKind      `json:"kind" yaml:"kind"`
	Field    string             `json:"field,omitempty" yaml:"field,omitempty"`
	Operator condition.Operator `json:"operator" yaml:"operator"`
	Value    any                `json:"value,omitempty" yaml:"value,omitempty"`
}

// Rule is a list of conditions combined by Logic (AND when empty).
type Rule struct {
	Logic      RuleLogic   `json:"logic,omitempty" yaml:"logic,omitempty"`
	Conditions []Condition `json:"conditions" yaml:"conditions"`
}

// Segment is a named audience. A user matches if any rule matches
// (OR across rules).
type Segment struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Rules    []Rule `json:"rules" yaml:"rules"`
	Priority int    `json:"priority,omitempty" yaml:"priority,omitempty"`
	Enabled  bool   `json:"enabled" yaml:"enabled"`
}

var cohortOperators = map[condition.Operator]struct{}{
	condition.OpEquals:    {},
	condition.OpIn:        {},
	condition.OpNotEquals: {},
	condition.OpNotIn:     {},
}

// Validate performs strict definition-time validation of s.
// It is a pure function: it never mutates s.
func Validate(s Segment) error {
	if s.ID == "" {
		return fmt.Errorf("%w: id must not be empty", ErrInvalidSegment)
	}
	if len(s.Rules) == 0 {
		return fmt.Errorf("%w: segment %q must have at least one rule", ErrInvalidSegment, s.ID)
	}

	for ri, rule := range s.Rules {
		switch rule.Logic {
		case "", LogicAnd, LogicOr:
		default:
			return fmt.Errorf("%w: segment %q rule[%d] logic %q is not supported", ErrInvalidRule, s.ID, ri, rule.Logic)
		}
		if len(rule.Conditions) == 0 {
			return fmt.Errorf("%w: segment %q rule[%d] must have at least one condition", ErrInvalidRule, s.ID, ri)
		}
		for ci, c := range rule.Conditions {
			if err := validateCondition(s.ID, ri, ci, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateCondition(segID string, ri, ci int, c Condition) error {
	switch c.Kind {
	case KindUser, KindCompany, KindBehavior:
		if c.Field == "" {
			return fmt.Errorf("%w: segment %q rule[%d] condition[%d] field must not be empty", ErrInvalidCondition, segID, ri, ci)
		}
		if c.Operator != condition.OpExists && c.Operator != condition.OpNotExists && !condition.IsComparison(c.Operator) {
			return fmt.Errorf("%w: segment %q rule[%d] condition[%d] operator %q is not supported", ErrInvalidCondition, segID, ri, ci, c.Operator)
		}
	case KindCohort:
		if _, ok := cohortOperators[c.Operator]; !ok {
			return fmt.Errorf("%w: segment %q rule[%d] condition[%d] cohort conditions support only equals/in/notEquals/notIn", ErrInvalidCondition, segID, ri, ci)
		}
		if c.Value == nil {
			return fmt.Errorf("%w: segment %q rule[%d] condition[%d] cohort condition requires a value", ErrInvalidCondition, segID, ri, ci)
		}
	default:
		return fmt.Errorf("%w: segment %q rule[%d] condition[%d] kind %q is not supported", ErrInvalidCondition, segID, ri, ci, c.Kind)
	}
	return nil
}
