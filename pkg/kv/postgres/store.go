// Package postgres provides a PostgreSQL-backed kv.Store and kv.VectorStore.
//
// Both share one [pgxpool.Pool]. The pgvector extension must be available in
// the target database; [Migrate] installs it via CREATE EXTENSION IF NOT EXISTS.
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
//	_ = kv.SetJSON(ctx, store, "reactionPreferences_v1", profile)
//	_ = store.SaveVectors(ctx, "text-embedding-3-small", centroids)
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/emotive/pkg/kv"
)

var (
	_ kv.Store       = (*Store)(nil)
	_ kv.VectorStore = (*Store)(nil)
)

// Store is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, registers pgvector types on every connection, and
// runs [Migrate]. vectorDimensions must match the embedding model; changing it
// after the first migration requires a manual schema change.
func NewStore(ctx context.Context, dsn string, vectorDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("kv postgres: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("kv postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("kv postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool, vectorDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("kv postgres: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Get implements kv.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv postgres: get %q: %w", key, err)
	}
	return value, nil
}

// Set implements kv.Store.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_entries (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("kv postgres: set %q: %w", key, err)
	}
	return nil
}

// LoadVectors implements kv.VectorStore.
func (s *Store) LoadVectors(ctx context.Context, namespace string) (map[string][]float32, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, embedding FROM kv_vectors WHERE namespace = $1`, namespace)
	if err != nil {
		return nil, fmt.Errorf("kv postgres: load vectors: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var (
			name string
			vec  pgvector.Vector
		)
		if err := rows.Scan(&name, &vec); err != nil {
			return nil, fmt.Errorf("kv postgres: scan vector: %w", err)
		}
		out[name] = vec.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kv postgres: load vectors: %w", err)
	}
	return out, nil
}

// SaveVectors implements kv.VectorStore. All vectors are written in a single
// batch.
func (s *Store) SaveVectors(ctx context.Context, namespace string, vecs map[string][]float32) error {
	if len(vecs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for name, v := range vecs {
		batch.Queue(`
			INSERT INTO kv_vectors (namespace, name, embedding) VALUES ($1, $2, $3)
			ON CONFLICT (namespace, name) DO UPDATE SET embedding = EXCLUDED.embedding`,
			namespace, name, pgvector.NewVector(v))
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("kv postgres: save vectors: %w", err)
	}
	return nil
}

// Ping verifies the pool can reach the database. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements kv.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
