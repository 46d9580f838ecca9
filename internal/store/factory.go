package store

import (
	"context"
	"fmt"

	"github.com/nik-kale/guidekit/internal/db"
)

// NewStore creates a store for the configured backend.
// Supported types: "memory", "postgres".
func NewStore(ctx context.Context, storeType, dsn string) (Store, error) {
	switch storeType {
	case "memory":
		return NewMemoryStore(), nil
	case "postgres":
		pool, err := db.NewPool(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		pg := NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to migrate postgres store: %w", err)
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}
