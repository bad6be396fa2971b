package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlEntries = `
CREATE TABLE IF NOT EXISTS kv_entries (
    key         TEXT         PRIMARY KEY,
    value       BYTEA        NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// ddlVectorsTemplate is formatted with the vector dimension.
const ddlVectorsTemplate = `
CREATE TABLE IF NOT EXISTS kv_vectors (
    namespace  TEXT         NOT NULL,
    name       TEXT         NOT NULL,
    embedding  vector(%d)   NOT NULL,
    PRIMARY KEY (namespace, name)
);
`

// Migrate creates the pgvector extension and both tables if they do not exist.
// It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool, vectorDimensions int) error {
	if vectorDimensions <= 0 {
		return fmt.Errorf("vector dimensions must be > 0, got %d", vectorDimensions)
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		ddlEntries,
		fmt.Sprintf(ddlVectorsTemplate, vectorDimensions),
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}
