package segment

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nik-kale/guidekit/internal/condition"
	"github.com/nik-kale/guidekit/internal/identity"
)

// Engine maintains profiles, cohorts, and segment definitions, and keeps
// every profile's segment membership current as attributes and definitions
// change.
type Engine struct {
	mu         sync.RWMutex
	log        zerolog.Logger
	segments   map[string]Segment
	profiles   map[string]*Profile
	cohorts    map[string]*Cohort
	predicates map[string]CustomPredicate
	now        func() time.Time
}

// NewEngine returns an empty segmentation engine reporting to log.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		log:        log.With().Str("component", "segment").Logger(),
		segments:   make(map[string]Segment),
		profiles:   make(map[string]*Profile),
		cohorts:    make(map[string]*Cohort),
		predicates: make(map[string]CustomPredicate),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// DefineSegment validates and stores a segment, then re-evaluates
// membership for every known profile so rule changes retroactively
// reclassify already-known users.
func (e *Engine) DefineSegment(s Segment) error {
	if err := Validate(s); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.segments[s.ID] = s
	for _, p := range e.profiles {
		e.reevaluate(p)
	}
	return nil
}

// SetSegmentEnabled toggles a stored segment and reclassifies all profiles.
func (e *Engine) SetSegmentEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.segments[id]
	if !ok {
		return fmt.Errorf("%w: segment %q not found", ErrInvalidSegment, id)
	}
	s.Enabled = enabled
	e.segments[id] = s
	for _, p := range e.profiles {
		e.reevaluate(p)
	}
	return nil
}

// UpdateAttributes shallow-merges patch into the identified profile
// (created lazily) and recomputes that user's segment membership.
func (e *Engine) UpdateAttributes(id identity.Identity, patch AttributePatch) (*Profile, error) {
	key, ok := id.Key()
	if !ok {
		return nil, fmt.Errorf("%w: identity requires a userId or sessionId", ErrInvalidSegment)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.profileLocked(key, id)
	p.apply(patch, e.now())
	e.reevaluate(p)
	return snapshotProfile(p), nil
}

// Profile returns a copy of the stored profile, or nil if unknown.
func (e *Engine) Profile(id identity.Identity) *Profile {
	key, ok := id.Key()
	if !ok {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.profiles[key]
	if !ok {
		return nil
	}
	return snapshotProfile(p)
}

// AddUserToCohort records membership on both the cohort and the profile,
// then re-evaluates segments for that one user only.
func (e *Engine) AddUserToCohort(id identity.Identity, cohortID, cohortName string) error {
	key, ok := id.Key()
	if !ok {
		return fmt.Errorf("%w: identity requires a userId or sessionId", ErrInvalidSegment)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	c, ok := e.cohorts[cohortID]
	if !ok {
		c = &Cohort{ID: cohortID, Name: cohortName, Members: make(map[string]struct{}), CreatedAt: now}
		e.cohorts[cohortID] = c
	}
	c.Members[key] = struct{}{}
	c.UpdatedAt = now

	p := e.profileLocked(key, id)
	p.Cohorts[cohortID] = struct{}{}
	p.UpdatedAt = now
	e.reevaluate(p)
	return nil
}

// RemoveUserFromCohort removes membership symmetrically and re-evaluates
// that user's segments.
func (e *Engine) RemoveUserFromCohort(id identity.Identity, cohortID string) error {
	key, ok := id.Key()
	if !ok {
		return fmt.Errorf("%w: identity requires a userId or sessionId", ErrInvalidSegment)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	if c, ok := e.cohorts[cohortID]; ok {
		delete(c.Members, key)
		c.UpdatedAt = now
	}
	if p, ok := e.profiles[key]; ok {
		delete(p.Cohorts, cohortID)
		p.UpdatedAt = now
		e.reevaluate(p)
	}
	return nil
}

// SegmentsFor returns the current segment ids for an identity, in stable
// order. Unknown identities belong to no segment.
func (e *Engine) SegmentsFor(id identity.Identity) []string {
	p := e.Profile(id)
	if p == nil {
		return nil
	}
	return p.SegmentIDs()
}

func (e *Engine) profileLocked(key string, id identity.Identity) *Profile {
	p, ok := e.profiles[key]
	if !ok {
		p = newProfile(id, e.now())
		e.profiles[key] = p
	}
	return p
}

// reevaluate recomputes the derived segment set for p. Callers hold e.mu.
func (e *Engine) reevaluate(p *Profile) {
	matched := make(map[string]struct{})
	for id, s := range e.segments {
		if e.matches(s, p) {
			matched[id] = struct{}{}
		}
	}
	p.Segments = matched
}

func (e *Engine) matches(s Segment, p *Profile) bool {
	if !s.Enabled {
		return false
	}
	for _, rule := range s.Rules {
		if e.ruleMatches(rule, p) {
			return true
		}
	}
	return false
}

func (e *Engine) ruleMatches(rule Rule, p *Profile) bool {
	if len(rule.Conditions) == 0 {
		return false
	}
	if rule.Logic == LogicOr {
		for _, c := range rule.Conditions {
			if e.conditionMatches(c, p) {
				return true
			}
		}
		return false
	}
	for _, c := range rule.Conditions {
		if !e.conditionMatches(c, p) {
			return false
		}
	}
	return true
}

func (e *Engine) conditionMatches(c Condition, p *Profile) bool {
	if c.Kind == KindCohort {
		return cohortConditionMatches(c, p)
	}

	var bag condition.Context
	switch c.Kind {
	case KindUser:
		bag = condition.Context(p.User)
	case KindCompany:
		bag = condition.Context(p.Company)
	case KindBehavior:
		bag = condition.Context(p.Behavior)
	default:
		e.log.Debug().Str("kind", string(c.Kind)).Msg("unknown condition kind, no match")
		return false
	}

	value, present := bag.Lookup(c.Field)
	switch c.Operator {
	case condition.OpExists:
		return present
	case condition.OpNotExists:
		return !present
	}
	if !present {
		return false
	}
	return condition.Compare(c.Operator, value, c.Value)
}

func cohortConditionMatches(c Condition, p *Profile) bool {
	member := func(v any) bool {
		id, ok := v.(string)
		if !ok {
			return false
		}
		_, in := p.Cohorts[id]
		return in
	}

	switch c.Operator {
	case condition.OpEquals:
		return member(c.Value)
	case condition.OpNotEquals:
		return !member(c.Value)
	case condition.OpIn, condition.OpNotIn:
		ids, ok := c.Value.([]any)
		if !ok {
			if strs, oks := c.Value.([]string); oks {
				ids = make([]any, len(strs))
				for i, s := range strs {
					ids[i] = s
				}
			} else {
				return false
			}
		}
		found := false
		for _, id := range ids {
			if member(id) {
				found = true
				break
			}
		}
		if c.Operator == condition.OpIn {
			return found
		}
		return !found
	default:
		return false
	}
}

func snapshotProfile(p *Profile) *Profile {
	cp := &Profile{
		Identity:  p.Identity,
		User:      copyBag(p.User),
		Company:   copyBag(p.Company),
		Behavior:  copyBag(p.Behavior),
		Segments:  copySet(p.Segments),
		Cohorts:   copySet(p.Cohorts),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	return cp
}

func copyBag(m map[string]any) map[string]any {
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func copySet(m map[string]struct{}) map[string]struct{} {
	cp := make(map[string]struct{}, len(m))
	for k := range m {
		cp[k] = struct{}{}
	}
	return cp
}
