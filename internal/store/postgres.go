package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a PostgreSQL implementation of the Store interface.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// schema is applied by Migrate. Definitions, assignments, and execution
// snapshots are all id-keyed JSON documents plus the columns needed for
// lookups.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
	kind        TEXT NOT NULL,
	id          TEXT NOT NULL,
	body        JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (kind, id)
);

CREATE TABLE IF NOT EXISTS assignments (
	experiment_id TEXT NOT NULL,
	identity_key  TEXT NOT NULL,
	variant_id    TEXT NOT NULL,
	user_id       TEXT NOT NULL DEFAULT '',
	session_id    TEXT NOT NULL DEFAULT '',
	assigned_at   TIMESTAMPTZ NOT NULL,
	persistent    BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (experiment_id, identity_key)
);

CREATE TABLE IF NOT EXISTS executions (
	execution_id TEXT PRIMARY KEY,
	body         JSONB NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the store tables if they do not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schema)
	return err
}

// SaveDocument creates or replaces a definition document.
func (p *PostgresStore) SaveDocument(ctx context.Context, rec DocumentRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO documents (kind, id, body, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (kind, id) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`,
		string(rec.Kind), rec.ID, rec.Body)
	return err
}

// GetDocument retrieves one document by kind and id.
func (p *PostgresStore) GetDocument(ctx context.Context, kind DocumentKind, id string) (*DocumentRecord, error) {
	rec := DocumentRecord{Kind: kind, ID: id}
	err := p.pool.QueryRow(ctx,
		`SELECT body, updated_at FROM documents WHERE kind = $1 AND id = $2`,
		string(kind), id).Scan(&rec.Body, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ListDocuments retrieves all documents of a kind.
func (p *PostgresStore) ListDocuments(ctx context.Context, kind DocumentKind) ([]DocumentRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, body, updated_at FROM documents WHERE kind = $1`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DocumentRecord
	for rows.Next() {
		rec := DocumentRecord{Kind: kind}
		if err := rows.Scan(&rec.ID, &rec.Body, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// DeleteDocument removes a document. Idempotent.
func (p *PostgresStore) DeleteDocument(ctx context.Context, kind DocumentKind, id string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM documents WHERE kind = $1 AND id = $2`, string(kind), id)
	return err
}

// SaveAssignment creates or replaces an assignment record.
func (p *PostgresStore) SaveAssignment(ctx context.Context, rec AssignmentRecord) error {
	key := rec.UserID
	if key == "" {
		key = rec.SessionID
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO assignments (experiment_id, identity_key, variant_id, user_id, session_id, assigned_at, persistent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (experiment_id, identity_key)
		DO UPDATE SET variant_id = EXCLUDED.variant_id, assigned_at = EXCLUDED.assigned_at, persistent = EXCLUDED.persistent`,
		rec.ExperimentID, key, rec.VariantID, rec.UserID, rec.SessionID, rec.AssignedAt, rec.Persistent)
	return err
}

// ListAssignments retrieves all assignments for an experiment.
func (p *PostgresStore) ListAssignments(ctx context.Context, experimentID string) ([]AssignmentRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT variant_id, user_id, session_id, assigned_at, persistent
		FROM assignments WHERE experiment_id = $1`, experimentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AssignmentRecord
	for rows.Next() {
		rec := AssignmentRecord{ExperimentID: experimentID}
		if err := rows.Scan(&rec.VariantID, &rec.UserID, &rec.SessionID, &rec.AssignedAt, &rec.Persistent); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// SaveExecution creates or replaces an execution snapshot.
func (p *PostgresStore) SaveExecution(ctx context.Context, rec ExecutionRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO executions (execution_id, body, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (execution_id) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`,
		rec.ExecutionID, body)
	return err
}

// GetExecution retrieves one execution snapshot.
func (p *PostgresStore) GetExecution(ctx context.Context, executionID string) (*ExecutionRecord, error) {
	var body []byte
	var updatedAt time.Time
	err := p.pool.QueryRow(ctx,
		`SELECT body, updated_at FROM executions WHERE execution_id = $1`,
		executionID).Scan(&body, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var rec ExecutionRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Close releases the underlying connection pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
