package flow

import (
	"fmt"
	"math"
)

// ChecklistItem is one entry of a checklist. StepID optionally references
// a flow step for display purposes only; item completion is independent
// of step state.
type ChecklistItem struct {
	ID        string `json:"id" yaml:"id"`
	Label     string `json:"label,omitempty" yaml:"label,omitempty"`
	StepID    string `json:"stepId,omitempty" yaml:"stepId,omitempty"`
	Completed bool   `json:"completed" yaml:"completed"`
}

// Checklist is an ordered list of items. Progress is derived from item
// state on every read, never cached.
type Checklist struct {
	ID    string          `json:"id" yaml:"id"`
	Name  string          `json:"name,omitempty" yaml:"name,omitempty"`
	Items []ChecklistItem `json:"items" yaml:"items"`
}

// Percent returns the completed share of items, rounded.
func (c Checklist) Percent() int {
	if len(c.Items) == 0 {
		return 0
	}
	completed := 0
	for _, item := range c.Items {
		if item.Completed {
			completed++
		}
	}
	return int(math.Round(float64(completed) / float64(len(c.Items)) * 100))
}

// ValidateChecklist checks a checklist definition without storing it.
func ValidateChecklist(c Checklist) error {
	if c.ID == "" {
		return fmt.Errorf("%w: checklist id must not be empty", ErrInvalidFlow)
	}
	seen := make(map[string]bool, len(c.Items))
	for i, item := range c.Items {
		if item.ID == "" {
			return fmt.Errorf("%w: checklist %q item[%d] id must not be empty", ErrInvalidFlow, c.ID, i)
		}
		if seen[item.ID] {
			return fmt.Errorf("%w: checklist %q has duplicate item id %q", ErrInvalidFlow, c.ID, item.ID)
		}
		seen[item.ID] = true
	}
	return nil
}

// DefineChecklist validates and stores a checklist.
func (e *Engine) DefineChecklist(c Checklist) error {
	if err := ValidateChecklist(c); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	cp := c
	cp.Items = append([]ChecklistItem(nil), c.Items...)
	e.checklists[c.ID] = &cp
	return nil
}

// ToggleChecklistItem sets an item's completion flag and returns the
// checklist's recomputed progress percentage.
func (e *Engine) ToggleChecklistItem(checklistID, itemID string, completed bool) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.checklists[checklistID]
	if !ok {
		return 0, fmt.Errorf("%w: checklist %q not found", ErrExecNotFound, checklistID)
	}
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items[i].Completed = completed
			return c.Percent(), nil
		}
	}
	return 0, fmt.Errorf("%w: checklist %q item %q not found", ErrExecNotFound, checklistID, itemID)
}

// Checklist returns a copy of the stored checklist.
func (e *Engine) Checklist(checklistID string) (*Checklist, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.checklists[checklistID]
	if !ok {
		return nil, fmt.Errorf("%w: checklist %q not found", ErrExecNotFound, checklistID)
	}
	cp := *c
	cp.Items = append([]ChecklistItem(nil), c.Items...)
	return &cp, nil
}
