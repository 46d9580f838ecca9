package flow

import (
	"sort"
	"time"

	"github.com/nik-kale/guidekit/internal/identity"
	"github.com/nik-kale/guidekit/internal/store"
)

// ExecStatus is the state of one flow execution.
// active -> {paused <-> active, aborted (terminal), completed (terminal)}.
type ExecStatus string

const (
	ExecActive    ExecStatus = "active"
	ExecPaused    ExecStatus = "paused"
	ExecAborted   ExecStatus = "aborted"
	ExecCompleted ExecStatus = "completed"
)

// Terminal reports whether no further mutation of the execution is
// permitted.
func (s ExecStatus) Terminal() bool {
	return s == ExecAborted || s == ExecCompleted
}

// ExecutionContext tracks where an execution is and where it has been.
// Completed and Skipped are disjoint.
type ExecutionContext struct {
	CurrentStep string
	History     []string // back-navigation stack, oldest first
	Completed   map[string]struct{}
	Skipped     map[string]struct{}
	UserData    map[string]any
}

// Execution is one user's run through a flow.
type Execution struct {
	ID       string
	FlowID   string
	Identity identity.Identity
	Ctx      ExecutionContext
	Status   ExecStatus

	StartTime time.Time
	EndTime   *time.Time
	Duration  time.Duration
}

// Progress summarizes how far an execution has advanced.
type Progress struct {
	ExecutionID    string `json:"executionId"`
	FlowID         string `json:"flowId"`
	Status         string `json:"status"`
	CurrentStep    string `json:"currentStep"`
	CurrentIndex   int    `json:"currentIndex"` // index in declaration order
	CompletedSteps int    `json:"completedSteps"`
	SkippedSteps   int    `json:"skippedSteps"`
	TotalSteps     int    `json:"totalSteps"`
	Percent        int    `json:"percent"`
}

// Record converts the execution to its serializable form for the
// persistence boundary.
func (x *Execution) Record() store.ExecutionRecord {
	rec := store.ExecutionRecord{
		ExecutionID: x.ID,
		FlowID:      x.FlowID,
		UserID:      x.Identity.UserID,
		SessionID:   x.Identity.SessionID,
		Status:      string(x.Status),
		CurrentStep: x.Ctx.CurrentStep,
		History:     append([]string(nil), x.Ctx.History...),
		Completed:   setToSlice(x.Ctx.Completed),
		Skipped:     setToSlice(x.Ctx.Skipped),
		UserData:    x.Ctx.UserData,
		StartTime:   x.StartTime,
		EndTime:     x.EndTime,
		DurationMS:  x.Duration.Milliseconds(),
	}
	return rec
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func snapshotExecution(x *Execution) *Execution {
	cp := *x
	cp.Ctx.History = append([]string(nil), x.Ctx.History...)
	cp.Ctx.Completed = copyStepSet(x.Ctx.Completed)
	cp.Ctx.Skipped = copyStepSet(x.Ctx.Skipped)
	return &cp
}

func copyStepSet(set map[string]struct{}) map[string]struct{} {
	cp := make(map[string]struct{}, len(set))
	for id := range set {
		cp[id] = struct{}{}
	}
	return cp
}
