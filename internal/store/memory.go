package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of the Store interface.
// It uses maps with an RWMutex for thread-safe concurrent access and is
// suitable for development, testing, or single-instance deployments.
type MemoryStore struct {
	mu          sync.RWMutex
	documents   map[DocumentKind]map[string]DocumentRecord
	assignments map[string]map[string]AssignmentRecord // experimentID -> identity key
	executions  map[string]ExecutionRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents:   make(map[DocumentKind]map[string]DocumentRecord),
		assignments: make(map[string]map[string]AssignmentRecord),
		executions:  make(map[string]ExecutionRecord),
	}
}

// SaveDocument creates or replaces a definition document.
func (m *MemoryStore) SaveDocument(ctx context.Context, rec DocumentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.documents[rec.Kind]
	if !ok {
		byID = make(map[string]DocumentRecord)
		m.documents[rec.Kind] = byID
	}
	rec.UpdatedAt = time.Now().UTC()
	byID[rec.ID] = rec
	return nil
}

// GetDocument retrieves one document by kind and id.
func (m *MemoryStore) GetDocument(ctx context.Context, kind DocumentKind, id string) (*DocumentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.documents[kind][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// ListDocuments retrieves all documents of a kind.
func (m *MemoryStore) ListDocuments(ctx context.Context, kind DocumentKind) ([]DocumentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]DocumentRecord, 0, len(m.documents[kind]))
	for _, rec := range m.documents[kind] {
		result = append(result, rec)
	}
	return result, nil
}

// DeleteDocument removes a document. Idempotent.
func (m *MemoryStore) DeleteDocument(ctx context.Context, kind DocumentKind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.documents[kind], id)
	return nil
}

// SaveAssignment creates or replaces an assignment record.
func (m *MemoryStore) SaveAssignment(ctx context.Context, rec AssignmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rec.UserID
	if key == "" {
		key = rec.SessionID
	}
	byIdentity, ok := m.assignments[rec.ExperimentID]
	if !ok {
		byIdentity = make(map[string]AssignmentRecord)
		m.assignments[rec.ExperimentID] = byIdentity
	}
	byIdentity[key] = rec
	return nil
}

// ListAssignments retrieves all assignments for an experiment.
func (m *MemoryStore) ListAssignments(ctx context.Context, experimentID string) ([]AssignmentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]AssignmentRecord, 0, len(m.assignments[experimentID]))
	for _, rec := range m.assignments[experimentID] {
		result = append(result, rec)
	}
	return result, nil
}

// SaveExecution creates or replaces an execution snapshot.
func (m *MemoryStore) SaveExecution(ctx context.Context, rec ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.executions[rec.ExecutionID] = rec
	return nil
}

// GetExecution retrieves one execution snapshot.
func (m *MemoryStore) GetExecution(ctx context.Context, executionID string) (*ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.executions[executionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Close is a no-op for MemoryStore as there are no resources to release.
func (m *MemoryStore) Close() error {
	return nil
}
