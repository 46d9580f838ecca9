// Package store defines the persistence boundary for the decisioning
// engines. Engines own their in-memory state; a Store receives plain
// serializable records so a host can persist assignments, flow progress,
// and definition documents between sessions.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// DocumentKind distinguishes stored definition documents.
type DocumentKind string

const (
	KindSegment    DocumentKind = "segment"
	KindExperiment DocumentKind = "experiment"
	KindFlow       DocumentKind = "flow"
	KindChecklist  DocumentKind = "checklist"
)

// DocumentRecord is a versioned definition document. Body is the
// JSON-serialized definition; round-tripping through it must reproduce
// identical validation results.
type DocumentRecord struct {
	Kind      DocumentKind `json:"kind"`
	ID        string       `json:"id"`
	Body      []byte       `json:"body"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// AssignmentRecord is one experiment variant assignment, keyed by
// (experiment, identity).
type AssignmentRecord struct {
	ExperimentID string    `json:"experimentId"`
	VariantID    string    `json:"variantId"`
	UserID       string    `json:"userId,omitempty"`
	SessionID    string    `json:"sessionId,omitempty"`
	AssignedAt   time.Time `json:"assignedAt"`
	Persistent   bool      `json:"persistent"`
}

// ExecutionRecord is a serializable snapshot of one flow execution.
type ExecutionRecord struct {
	ExecutionID string         `json:"executionId"`
	FlowID      string         `json:"flowId"`
	UserID      string         `json:"userId,omitempty"`
	SessionID   string         `json:"sessionId,omitempty"`
	Status      string         `json:"status"`
	CurrentStep string         `json:"currentStep"`
	History     []string       `json:"history,omitempty"`
	Completed   []string       `json:"completedSteps,omitempty"`
	Skipped     []string       `json:"skippedSteps,omitempty"`
	UserData    map[string]any `json:"userData,omitempty"`
	StartTime   time.Time      `json:"startTime"`
	EndTime     *time.Time     `json:"endTime,omitempty"`
	DurationMS  int64          `json:"durationMs,omitempty"`
}

// Store is the persistence interface. Implementations must be safe for
// concurrent use.
type Store interface {
	// SaveDocument creates or replaces a definition document.
	SaveDocument(ctx context.Context, rec DocumentRecord) error

	// GetDocument retrieves one document or ErrNotFound.
	GetDocument(ctx context.Context, kind DocumentKind, id string) (*DocumentRecord, error)

	// ListDocuments retrieves all documents of a kind; empty slice when none.
	ListDocuments(ctx context.Context, kind DocumentKind) ([]DocumentRecord, error)

	// DeleteDocument removes a document. Idempotent.
	DeleteDocument(ctx context.Context, kind DocumentKind, id string) error

	// SaveAssignment creates or replaces an assignment record.
	SaveAssignment(ctx context.Context, rec AssignmentRecord) error

	// ListAssignments retrieves all assignments for an experiment.
	ListAssignments(ctx context.Context, experimentID string) ([]AssignmentRecord, error)

	// SaveExecution creates or replaces an execution snapshot.
	SaveExecution(ctx context.Context, rec ExecutionRecord) error

	// GetExecution retrieves one execution snapshot or ErrNotFound.
	GetExecution(ctx context.Context, executionID string) (*ExecutionRecord, error)

	// Close releases any resources held by the store.
	Close() error
}
