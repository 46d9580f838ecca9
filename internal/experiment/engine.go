package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nik-kale/guidekit/internal/condition"
	"github.com/nik-kale/guidekit/internal/identity"
	"github.com/nik-kale/guidekit/internal/segment"
	"github.com/nik-kale/guidekit/internal/store"
)

// Assignment is one variant assignment for an (experiment, identity) pair.
type Assignment struct {
	ExperimentID string            `json:"experimentId"`
	VariantID    string            `json:"variantId"`
	Identity     identity.Identity `json:"identity"`
	Config       map[string]any    `json:"config,omitempty"`
	AssignedAt   time.Time         `json:"assignedAt"`
	Persistent   bool              `json:"persistent"`
}

// Engine stores experiments, assigns variants, records goal conversions,
// and analyzes outcomes. Assignments live in memory for the life of the
// experiment; when an experiment's settings enable persistence they are
// also written through to the configured store.
type Engine struct {
	mu        sync.Mutex
	log       zerolog.Logger
	salt      string
	segments  *segment.Engine
	store     store.Store
	randFloat func() float64
	now       func() time.Time

	experiments map[string]*Experiment
	assignments map[string]map[string]Assignment     // experimentID -> identity key
	conversions map[string]map[string]map[string]int // experimentID -> variantID -> goalID
}

// Option configures an Engine.
type Option func(*Engine)

// WithSegments wires the segmentation engine used for targeting
// evaluation. Without it, experiments with targeting rules never assign.
func WithSegments(se *segment.Engine) Option {
	return func(e *Engine) { e.segments = se }
}

// WithStore wires the persistence boundary for definitions and
// persistent assignments.
func WithStore(st store.Store) Option {
	return func(e *Engine) { e.store = st }
}

// WithRand replaces the uniform source used for anonymous-session
// allocation. Intended for tests.
func WithRand(fn func() float64) Option {
	return func(e *Engine) { e.randFloat = fn }
}

// NewEngine returns an experiment engine. The salt participates in the
// bucketing hash; changing it reshuffles every deterministic assignment.
func NewEngine(log zerolog.Logger, salt string, opts ...Option) *Engine {
	e := &Engine{
		log:         log.With().Str("component", "experiment").Logger(),
		salt:        salt,
		randFloat:   rand.Float64,
		now:         func() time.Time { return time.Now().UTC() },
		experiments: make(map[string]*Experiment),
		assignments: make(map[string]map[string]Assignment),
		conversions: make(map[string]map[string]map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create validates and stores an experiment in draft status.
// Invalid definitions are rejected and never stored.
func (e *Engine) Create(ctx context.Context, def Experiment) error {
	if err := Validate(def); err != nil {
		return err
	}

	e.mu.Lock()
	if _, exists := e.experiments[def.ID]; exists {
		e.mu.Unlock()
		return fmt.Errorf("%w: experiment %q already exists", ErrInvalidExperiment, def.ID)
	}
	now := e.now()
	def.Status = StatusDraft
	def.CreatedAt = now
	def.UpdatedAt = now
	e.experiments[def.ID] = &def
	e.assignments[def.ID] = make(map[string]Assignment)
	e.conversions[def.ID] = make(map[string]map[string]int)
	e.mu.Unlock()

	if e.store != nil {
		body, err := json.Marshal(def)
		if err == nil {
			err = e.store.SaveDocument(ctx, store.DocumentRecord{
				Kind: store.KindExperiment,
				ID:   def.ID,
				Body: body,
			})
		}
		if err != nil {
			e.log.Warn().Err(err).Str("experiment", def.ID).Msg("failed to persist experiment definition")
		}
	}
	return nil
}

// Get returns a copy of the experiment or ErrNotFound.
func (e *Engine) Get(id string) (*Experiment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exp, ok := e.experiments[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	cp := *exp
	return &cp, nil
}

// validTransitions for experiment lifecycle status changes.
var validTransitions = map[Status][]Status{
	StatusDraft:     {StatusRunning, StatusArchived},
	StatusRunning:   {StatusPaused, StatusCompleted, StatusArchived},
	StatusPaused:    {StatusRunning, StatusCompleted, StatusArchived},
	StatusCompleted: {StatusArchived},
}

// SetStatus transitions an experiment's lifecycle status.
func (e *Engine) SetStatus(id string, next Status) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	exp, ok := e.experiments[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	for _, allowed := range validTransitions[exp.Status] {
		if allowed == next {
			exp.Status = next
			exp.UpdatedAt = e.now()
			return nil
		}
	}
	return fmt.Errorf("%w: experiment %q cannot move %s -> %s", ErrInvalidTransition, id, exp.Status, next)
}

// Start moves an experiment into the running state.
func (e *Engine) Start(id string) error { return e.SetStatus(id, StatusRunning) }

// Pause suspends a running experiment.
func (e *Engine) Pause(id string) error { return e.SetStatus(id, StatusPaused) }

// Complete terminates an experiment.
func (e *Engine) Complete(id string) error { return e.SetStatus(id, StatusCompleted) }

// AssignVariant resolves the variant for an identity. It returns
// (nil, nil) when the experiment is not running, the identity is empty, or
// targeting excludes the identity. An existing assignment is always
// returned unchanged; otherwise one is computed deterministically when a
// userId is present, or by uniform random draw for anonymous sessions, and
// recorded.
func (e *Engine) AssignVariant(ctx context.Context, experimentID string, id identity.Identity, evalCtx condition.Context) (*Assignment, error) {
	e.mu.Lock()
	exp, ok := e.experiments[experimentID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrNotFound, experimentID)
	}
	if exp.Status != StatusRunning {
		e.mu.Unlock()
		return nil, nil
	}
	key, hasKey := id.Key()
	if !hasKey {
		e.mu.Unlock()
		return nil, nil
	}
	if existing, ok := e.assignments[experimentID][key]; ok {
		e.mu.Unlock()
		return &existing, nil
	}
	targeting := exp.Targeting
	variants := exp.Variants
	persist := exp.Settings.Persist
	e.mu.Unlock()

	// Targeting is evaluated outside the engine lock; it reads the
	// segmentation engine's state.
	if targeting != nil {
		if e.segments == nil {
			e.log.Warn().Str("experiment", experimentID).Msg("targeting configured but no segmentation engine wired, assignment skipped")
			return nil, nil
		}
		if !e.segments.EvaluateTargeting(*targeting, id, evalCtx) {
			return nil, nil
		}
	}

	var bucket float64
	if id.UserID != "" {
		bucket = float64(Bucket(id.UserID, experimentID, e.salt))
	} else {
		bucket = e.randFloat() * 100
	}

	variant := variantForBucket(bucket, variants)
	if variant == nil {
		return nil, nil
	}

	assignment := Assignment{
		ExperimentID: experimentID,
		VariantID:    variant.ID,
		Identity:     id,
		Config:       variant.Config,
		AssignedAt:   e.now(),
		Persistent:   persist,
	}

	e.mu.Lock()
	// Re-check: a concurrent call may have assigned while unlocked.
	if existing, ok := e.assignments[experimentID][key]; ok {
		e.mu.Unlock()
		return &existing, nil
	}
	e.assignments[experimentID][key] = assignment
	e.mu.Unlock()

	if persist && e.store != nil {
		err := e.store.SaveAssignment(ctx, store.AssignmentRecord{
			ExperimentID: experimentID,
			VariantID:    assignment.VariantID,
			UserID:       id.UserID,
			SessionID:    id.SessionID,
			AssignedAt:   assignment.AssignedAt,
			Persistent:   true,
		})
		if err != nil {
			e.log.Warn().Err(err).Str("experiment", experimentID).Msg("failed to persist assignment")
		}
	}

	return &assignment, nil
}

// LoadAssignments restores persisted assignments for an experiment from
// the store, typically at startup. In-memory assignments win on conflict.
func (e *Engine) LoadAssignments(ctx context.Context, experimentID string) error {
	if e.store == nil {
		return nil
	}
	records, err := e.store.ListAssignments(ctx, experimentID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	byKey, ok := e.assignments[experimentID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, experimentID)
	}
	for _, rec := range records {
		id := identity.Identity{UserID: rec.UserID, SessionID: rec.SessionID}
		key, hasKey := id.Key()
		if !hasKey {
			continue
		}
		if _, exists := byKey[key]; exists {
			continue
		}
		byKey[key] = Assignment{
			ExperimentID: rec.ExperimentID,
			VariantID:    rec.VariantID,
			Identity:     id,
			AssignedAt:   rec.AssignedAt,
			Persistent:   rec.Persistent,
		}
	}
	return nil
}

// TrackGoal increments the conversion counter for the identity's assigned
// variant. Calls for unknown experiments, non-running experiments, or
// identities with no assignment are legitimate no-ops, not errors: goal
// events routinely arrive for non-participants and must not pollute counts.
func (e *Engine) TrackGoal(experimentID, goalID string, id identity.Identity) {
	e.mu.Lock()
	defer e.mu.Unlock()

	exp, ok := e.experiments[experimentID]
	if !ok || exp.Status != StatusRunning {
		return
	}
	key, hasKey := id.Key()
	if !hasKey {
		return
	}
	assignment, ok := e.assignments[experimentID][key]
	if !ok {
		return
	}

	byVariant := e.conversions[experimentID]
	byGoal, ok := byVariant[assignment.VariantID]
	if !ok {
		byGoal = make(map[string]int)
		byVariant[assignment.VariantID] = byGoal
	}
	byGoal[goalID]++
}

// Analyze computes per-variant participation and conversion rates, and for
// the primary goal runs a two-proportion z-test between the control and
// each non-control variant. The winner is the significant variant with the
// largest positive lift.
func (e *Engine) Analyze(experimentID string) (*Analysis, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	exp, ok := e.experiments[experimentID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, experimentID)
	}

	analysis := &Analysis{ExperimentID: experimentID}
	if goal := exp.PrimaryGoal(); goal != nil {
		analysis.PrimaryGoal = goal.ID
	}

	participants := make(map[string]int, len(exp.Variants))
	for _, a := range e.assignments[experimentID] {
		participants[a.VariantID]++
	}

	total := 0
	var control *VariantStats
	for _, v := range exp.Variants {
		stats := VariantStats{
			VariantID:    v.ID,
			IsControl:    v.IsControl,
			Participants: participants[v.ID],
			Conversions:  make(map[string]int),
			Rates:        make(map[string]float64),
		}
		for goalID, count := range e.conversions[experimentID][v.ID] {
			stats.Conversions[goalID] = count
			if stats.Participants > 0 {
				stats.Rates[goalID] = float64(count) / float64(stats.Participants)
			}
		}
		total += stats.Participants
		analysis.Variants = append(analysis.Variants, stats)
		if v.IsControl {
			control = &analysis.Variants[len(analysis.Variants)-1]
		}
	}
	analysis.TotalParticipants = total

	if total < exp.Settings.MinimumSampleSize {
		analysis.Verdict = VerdictInsufficientData
		return analysis, nil
	}
	if analysis.PrimaryGoal == "" || control == nil {
		analysis.Verdict = VerdictNoDifference
		return analysis, nil
	}

	alpha := 1 - exp.Settings.Confidence
	if exp.Settings.Confidence == 0 {
		alpha = 1 - DefaultConfidence
	}

	controlRate := control.Rates[analysis.PrimaryGoal]
	bestLift := 0.0
	for _, stats := range analysis.Variants {
		if stats.IsControl {
			continue
		}
		z, p := TwoProportionZ(
			control.Conversions[analysis.PrimaryGoal], control.Participants,
			stats.Conversions[analysis.PrimaryGoal], stats.Participants,
		)
		cmp := Comparison{
			VariantID:   stats.VariantID,
			ControlRate: controlRate,
			VariantRate: stats.Rates[analysis.PrimaryGoal],
			Lift:        lift(controlRate, stats.Rates[analysis.PrimaryGoal]),
			Z:           z,
			PValue:      p,
			Significant: p < alpha,
		}
		analysis.Comparisons = append(analysis.Comparisons, cmp)

		if cmp.Significant && cmp.Lift > bestLift {
			bestLift = cmp.Lift
			analysis.Winner = cmp.VariantID
		}
	}

	if analysis.Winner != "" {
		analysis.Verdict = VerdictSignificant
	} else {
		analysis.Verdict = VerdictNoDifference
	}
	return analysis, nil
}

// CheckAutoWinner acts only when the experiment opts into automatic winner
// selection: if analysis finds a significant winner, the experiment is
// completed and the winning variant id returned.
func (e *Engine) CheckAutoWinner(experimentID string) (string, bool) {
	e.mu.Lock()
	exp, ok := e.experiments[experimentID]
	autoWinner := ok && exp.Settings.AutoWinner
	e.mu.Unlock()
	if !autoWinner {
		return "", false
	}

	analysis, err := e.Analyze(experimentID)
	if err != nil || analysis.Verdict != VerdictSignificant {
		return "", false
	}

	if err := e.SetStatus(experimentID, StatusCompleted); err != nil {
		e.log.Warn().Err(err).Str("experiment", experimentID).Msg("auto winner found but experiment could not be completed")
		return "", false
	}
	e.log.Info().Str("experiment", experimentID).Str("winner", analysis.Winner).Msg("auto winner selected")
	return analysis.Winner, true
}
