package flow

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nik-kale/guidekit/internal/identity"
	"github.com/nik-kale/guidekit/internal/store"
)

// Outcome is how the current step was resolved by an advance.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
)

// CallbackFunc is a host-supplied hook invoked on step or flow
// completion. Definitions reference callbacks only by id; the host
// registers the callable separately, and it is looked up at invocation
// time, never serialized.
type CallbackFunc func(exec *Execution, stepID string)

// LogicFunc is a host-registered predicate for customLogic branches,
// evaluated over the execution (current step, history, user data).
type LogicFunc func(exec *Execution) bool

// Engine stores flow definitions and drives executions through them.
type Engine struct {
	mu    sync.Mutex
	log   zerolog.Logger
	store store.Store
	now   func() time.Time

	flows      map[string]Flow
	stepIndex  map[string]map[string]int // flowID -> stepID -> index into Steps
	executions map[string]*Execution
	callbacks  map[string]CallbackFunc
	logic      map[string]LogicFunc
	checklists map[string]*Checklist
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithStore wires the persistence boundary for execution snapshots.
func WithStore(st store.Store) EngineOption {
	return func(e *Engine) { e.store = st }
}

// NewEngine returns an empty flow engine reporting to log.
func NewEngine(log zerolog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		log:        log.With().Str("component", "flow").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
		flows:      make(map[string]Flow),
		stepIndex:  make(map[string]map[string]int),
		executions: make(map[string]*Execution),
		callbacks:  make(map[string]CallbackFunc),
		logic:      make(map[string]LogicFunc),
		checklists: make(map[string]*Checklist),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterCallback registers a completion hook under the given id.
func (e *Engine) RegisterCallback(id string, fn CallbackFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbacks[id] = fn
}

// RegisterLogic registers a customLogic branch predicate under the given id.
func (e *Engine) RegisterLogic(id string, fn LogicFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logic[id] = fn
}

// Define validates and stores a flow definition. Branch targets are
// resolved to step indices at definition time, never live references.
// Returns non-fatal warnings alongside success.
func (e *Engine) Define(f Flow) ([]string, error) {
	warnings, err := Validate(f)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(f.Steps))
	for i, s := range f.Steps {
		index[s.ID] = i
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.flows[f.ID] = f
	e.stepIndex[f.ID] = index
	for _, w := range warnings {
		e.log.Warn().Str("flow", f.ID).Msg(w)
	}
	return warnings, nil
}

// Start creates a fresh active execution at the flow's start step.
func (e *Engine) Start(ctx context.Context, flowID string, id identity.Identity, userData map[string]any) (*Execution, error) {
	e.mu.Lock()
	f, ok := e.flows[flowID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrFlowNotFound, flowID)
	}

	exec := &Execution{
		ID:       uuid.NewString(),
		FlowID:   flowID,
		Identity: id,
		Status:   ExecActive,
		Ctx: ExecutionContext{
			CurrentStep: f.StartStep,
			Completed:   make(map[string]struct{}),
			Skipped:     make(map[string]struct{}),
			UserData:    userData,
		},
		StartTime: e.now(),
	}
	e.executions[exec.ID] = exec
	snap := snapshotExecution(exec)
	e.mu.Unlock()

	e.persist(ctx, snap)
	return snap, nil
}

// Advance records the current step as completed and moves the execution
// to the next step, preferring satisfied branches over sequential order.
func (e *Engine) Advance(ctx context.Context, executionID, action string) (*Execution, error) {
	return e.advance(ctx, executionID, action, OutcomeCompleted)
}

// SkipCurrentStep records the current step as skipped and advances.
// Only permitted when the flow's settings allow skipping.
func (e *Engine) SkipCurrentStep(ctx context.Context, executionID string) (*Execution, error) {
	e.mu.Lock()
	exec, ok := e.executions[executionID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrExecNotFound, executionID)
	}
	allowed := e.flows[exec.FlowID].Settings.AllowSkip
	e.mu.Unlock()
	if !allowed {
		return nil, fmt.Errorf("%w: flow %q does not allow skipping", ErrNotPermitted, exec.FlowID)
	}
	return e.advance(ctx, executionID, "", OutcomeSkipped)
}

func (e *Engine) advance(ctx context.Context, executionID, action string, outcome Outcome) (*Execution, error) {
	e.mu.Lock()
	exec, ok := e.executions[executionID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrExecNotFound, executionID)
	}
	if exec.Status.Terminal() {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: execution %q is %s", ErrExecTerminal, executionID, exec.Status)
	}
	if exec.Status != ExecActive {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: execution %q is %s", ErrNotPermitted, executionID, exec.Status)
	}

	f := e.flows[exec.FlowID]
	index := e.stepIndex[exec.FlowID]
	currentIdx, ok := index[exec.Ctx.CurrentStep]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: execution %q references unknown step %q", ErrInvalidFlow, executionID, exec.Ctx.CurrentStep)
	}
	current := f.Steps[currentIdx]

	// Record the outcome and push the step for back-navigation. A step
	// revisited via back-navigation may change outcome, so the sets stay
	// disjoint by removing it from the other one.
	switch outcome {
	case OutcomeSkipped:
		exec.Ctx.Skipped[current.ID] = struct{}{}
		delete(exec.Ctx.Completed, current.ID)
	default:
		exec.Ctx.Completed[current.ID] = struct{}{}
		delete(exec.Ctx.Skipped, current.ID)
	}
	exec.Ctx.History = append(exec.Ctx.History, current.ID)

	var stepCallback CallbackFunc
	if outcome == OutcomeCompleted && current.CallbackID != "" {
		stepCallback = e.callbacks[current.CallbackID]
	}

	next, found := e.nextStep(f, current, exec, action)
	var flowCallback CallbackFunc
	if found {
		exec.Ctx.CurrentStep = next
	} else {
		exec.Status = ExecCompleted
		end := e.now()
		exec.EndTime = &end
		exec.Duration = end.Sub(exec.StartTime)
		if f.CallbackID != "" {
			flowCallback = e.callbacks[f.CallbackID]
		}
	}

	snap := snapshotExecution(exec)
	e.mu.Unlock()

	// Callbacks run outside the engine lock so they may call back in.
	if stepCallback != nil {
		stepCallback(snap, current.ID)
	}
	if flowCallback != nil {
		flowCallback(snap, "")
	}

	e.persist(ctx, snap)
	return snap, nil
}

// nextStep resolves the step the execution moves to: the highest-priority
// satisfied branch of the current step, else the step with the smallest
// order strictly greater than the current step's order. Callers hold e.mu.
func (e *Engine) nextStep(f Flow, current Step, exec *Execution, action string) (string, bool) {
	if len(current.Branches) > 0 {
		// Sort by descending priority; ties keep declaration order.
		branches := append([]Branch(nil), current.Branches...)
		sort.SliceStable(branches, func(i, j int) bool {
			return branches[i].Priority > branches[j].Priority
		})
		for _, b := range branches {
			if e.branchSatisfied(b, exec, action) {
				return b.Target, true
			}
		}
	}

	bestIdx := -1
	for i, s := range f.Steps {
		if s.Order <= current.Order {
			continue
		}
		if bestIdx == -1 || s.Order < f.Steps[bestIdx].Order {
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return "", false
	}
	return f.Steps[bestIdx].ID, true
}

func (e *Engine) branchSatisfied(b Branch, exec *Execution, action string) bool {
	switch b.Kind {
	case BranchUserAction:
		return action != "" && b.Action == action
	case BranchCustomLogic:
		fn, ok := e.logic[b.LogicID]
		if !ok {
			e.log.Warn().Str("logicId", b.LogicID).Msg("customLogic branch predicate not registered, branch evaluates false")
			return false
		}
		return fn(snapshotExecution(exec))
	case BranchEvent:
		// Unsupported extension point: never fires.
		e.log.Debug().Str("target", b.Target).Msg("event branch kind is not supported, branch evaluates false")
		return false
	default:
		e.log.Debug().Str("kind", string(b.Kind)).Msg("unknown branch kind, branch evaluates false")
		return false
	}
}

// GoToPreviousStep pops the back-navigation stack. Only permitted when
// the flow's settings allow back-navigation and the stack is non-empty.
func (e *Engine) GoToPreviousStep(ctx context.Context, executionID string) (*Execution, error) {
	e.mu.Lock()
	exec, ok := e.executions[executionID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrExecNotFound, executionID)
	}
	if exec.Status.Terminal() {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: execution %q is %s", ErrExecTerminal, executionID, exec.Status)
	}
	if !e.flows[exec.FlowID].Settings.AllowBack {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: flow %q does not allow back-navigation", ErrNotPermitted, exec.FlowID)
	}
	if len(exec.Ctx.History) == 0 {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: execution %q", ErrNothingToGoBack, executionID)
	}

	last := len(exec.Ctx.History) - 1
	exec.Ctx.CurrentStep = exec.Ctx.History[last]
	exec.Ctx.History = exec.Ctx.History[:last]
	snap := snapshotExecution(exec)
	e.mu.Unlock()

	e.persist(ctx, snap)
	return snap, nil
}

// Pause moves an active execution to paused; a no-op in any other state.
func (e *Engine) Pause(ctx context.Context, executionID string) (*Execution, error) {
	return e.toggle(ctx, executionID, ExecActive, ExecPaused)
}

// Resume moves a paused execution back to active; a no-op otherwise.
func (e *Engine) Resume(ctx context.Context, executionID string) (*Execution, error) {
	return e.toggle(ctx, executionID, ExecPaused, ExecActive)
}

func (e *Engine) toggle(ctx context.Context, executionID string, from, to ExecStatus) (*Execution, error) {
	e.mu.Lock()
	exec, ok := e.executions[executionID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrExecNotFound, executionID)
	}
	changed := exec.Status == from
	if changed {
		exec.Status = to
	}
	snap := snapshotExecution(exec)
	e.mu.Unlock()

	if changed {
		e.persist(ctx, snap)
	}
	return snap, nil
}

// Stop aborts every non-terminal execution of the given flow definition
// and returns how many were aborted.
func (e *Engine) Stop(ctx context.Context, flowID string) int {
	e.mu.Lock()
	var stopped []*Execution
	now := e.now()
	for _, exec := range e.executions {
		if exec.FlowID != flowID || exec.Status.Terminal() {
			continue
		}
		exec.Status = ExecAborted
		end := now
		exec.EndTime = &end
		exec.Duration = end.Sub(exec.StartTime)
		stopped = append(stopped, snapshotExecution(exec))
	}
	e.mu.Unlock()

	for _, snap := range stopped {
		e.persist(ctx, snap)
	}
	return len(stopped)
}

// Execution returns a copy of the identified execution.
func (e *Engine) Execution(executionID string) (*Execution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, ok := e.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrExecNotFound, executionID)
	}
	return snapshotExecution(exec), nil
}

// GetFlowProgress reports completion percentage and the current step's
// index in declaration order.
func (e *Engine) GetFlowProgress(executionID string) (*Progress, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, ok := e.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrExecNotFound, executionID)
	}
	f := e.flows[exec.FlowID]
	index := e.stepIndex[exec.FlowID]

	total := len(f.Steps)
	completed := len(exec.Ctx.Completed)
	percent := 0
	if total > 0 {
		percent = int(math.Round(float64(completed) / float64(total) * 100))
	}

	return &Progress{
		ExecutionID:    exec.ID,
		FlowID:         exec.FlowID,
		Status:         string(exec.Status),
		CurrentStep:    exec.Ctx.CurrentStep,
		CurrentIndex:   index[exec.Ctx.CurrentStep],
		CompletedSteps: completed,
		SkippedSteps:   len(exec.Ctx.Skipped),
		TotalSteps:     total,
		Percent:        percent,
	}, nil
}

func (e *Engine) persist(ctx context.Context, snap *Execution) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveExecution(ctx, snap.Record()); err != nil {
		e.log.Warn().Err(err).Str("execution", snap.ID).Msg("failed to persist execution snapshot")
	}
}
