// Package pgcache is an optional durable backing store for the content
// provider's profile cache and wearable catalogue, over PostgreSQL +
// pgvector. It mirrors the teacher's pkg/memory/postgres package: a single
// pgxpool.Pool, one struct per concern, idempotent migration on startup.
//
// Nothing in internal/content requires this package — Cache's in-memory
// promise map (spec §4.A) is the hot path for every fetch. pgcache exists so
// a deployment can survive a process restart without re-downloading every
// avatar profile and wearable catalogue entry from the realm's content
// servers, and so fetch_wearables can offer "similar wearables" lookups
// against a cached embedding catalogue instead of only exact-URN lookups.
package pgcache

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Store is the PostgreSQL-backed durable cache. It holds a single
// pgxpool.Pool and exposes the profile cache and wearable catalogue as
// separate sub-types, following the teacher's Store.L1()/L2() split (a
// single struct cannot implement two interfaces that both define a method
// named Search with different signatures).
type Store struct {
	pool      *pgxpool.Pool
	profiles  *ProfileCache
	wearables *WearableCatalogue
}

// NewStore opens a connection pool against dsn, registers pgvector types on
// every connection, and runs Migrate. embeddingDimensions must match the
// wearable tag embedding model in use; changing it after the first migration
// requires a manual schema change, exactly as in the teacher's store.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgcache: parse dsn: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgcache: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgcache: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgcache: migrate: %w", err)
	}

	return &Store{
		pool:      pool,
		profiles:  &ProfileCache{pool: pool},
		wearables: &WearableCatalogue{pool: pool},
	}, nil
}

// Profiles returns the durable avatar-profile cache.
func (s *Store) Profiles() *ProfileCache { return s.profiles }

// Wearables returns the wearable catalogue's similarity-search index.
func (s *Store) Wearables() *WearableCatalogue { return s.wearables }

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}
