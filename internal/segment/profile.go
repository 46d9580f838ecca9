package segment

import (
	"sort"
	"time"

	"github.com/nik-kale/guidekit/internal/identity"
)

// Profile holds the known attributes and derived audience data for one
// user or session. Segments is recomputed on every attribute mutation;
// Cohorts is authoritative membership recorded by cohort add/remove.
type Profile struct {
	Identity identity.Identity
	User     map[string]any
	Company  map[string]any
	Behavior map[string]any
	Segments map[string]struct{}
	Cohorts  map[string]struct{}

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AttributePatch carries attribute updates, shallow-merged per category.
type AttributePatch struct {
	User     map[string]any `json:"user,omitempty"`
	Company  map[string]any `json:"company,omitempty"`
	Behavior map[string]any `json:"behavior,omitempty"`
}

func newProfile(id identity.Identity, now time.Time) *Profile {
	return &Profile{
		Identity:  id,
		User:      make(map[string]any),
		Company:   make(map[string]any),
		Behavior:  make(map[string]any),
		Segments:  make(map[string]struct{}),
		Cohorts:   make(map[string]struct{}),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (p *Profile) apply(patch AttributePatch, now time.Time) {
	for k, v := range patch.User {
		p.User[k] = v
	}
	for k, v := range patch.Company {
		p.Company[k] = v
	}
	for k, v := range patch.Behavior {
		p.Behavior[k] = v
	}
	p.UpdatedAt = now
}

// SegmentIDs returns the matched segment ids in stable order.
func (p *Profile) SegmentIDs() []string {
	ids := make([]string, 0, len(p.Segments))
	for id := range p.Segments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CohortIDs returns the cohort memberships in stable order.
func (p *Profile) CohortIDs() []string {
	ids := make([]string, 0, len(p.Cohorts))
	for id := range p.Cohorts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Cohort is an explicitly managed membership set, distinct from
// rule-derived segments.
type Cohort struct {
	ID        string
	Name      string
	Members   map[string]struct{}
	CreatedAt time.Time
	UpdatedAt time.Time
}
