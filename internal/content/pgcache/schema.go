package pgcache

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlProfiles = `
CREATE TABLE IF NOT EXISTS profile_cache (
    address    TEXT         PRIMARY KEY,
    version    INTEGER      NOT NULL,
    raw        JSONB        NOT NULL DEFAULT '{}',
    cached_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_profile_cache_cached_at
    ON profile_cache (cached_at);
`

// ddlWearables returns the wearable catalogue DDL with the embedding
// dimension baked into the vector column type, matching the teacher's
// ddlL2 pattern.
func ddlWearables(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS wearable_catalogue (
    urn        TEXT         PRIMARY KEY,
    category   TEXT         NOT NULL DEFAULT '',
    tags       TEXT[]       NOT NULL DEFAULT '{}',
    embedding  vector(%d),
    updated_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_wearable_catalogue_category
    ON wearable_catalogue (category);

CREATE INDEX IF NOT EXISTS idx_wearable_catalogue_embedding
    ON wearable_catalogue USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures every table and extension this package needs
// exists. Idempotent; safe to call on every process start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlProfiles,
		ddlWearables(embeddingDimensions),
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgcache migrate: %w", err)
		}
	}
	return nil
}
