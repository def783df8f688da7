package pgcache

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// WearableEntry is one indexed wearable in the catalogue: its content URN,
// category (e.g. "upper_body", "hat"), free-text tags, and a tag embedding
// used for similarity search.
type WearableEntry struct {
	URN       string
	Category  string
	Tags      []string
	Embedding []float32
}

// WearableMatch pairs a catalogue entry with its cosine distance from a
// query embedding (smaller is more similar).
type WearableMatch struct {
	WearableEntry
	Distance float32
}

// WearableCatalogue is a pgvector-backed nearest-neighbour index over
// wearable tag embeddings. It enriches fetch_wearables (spec §4.A) with a
// "wearables similar to this one" lookup; exact-URN resolution still goes
// through content.Cache.FetchWearables against the realm's live catalogue.
// Obtain one via [Store.Wearables] rather than constructing directly.
type WearableCatalogue struct {
	pool *pgxpool.Pool
}

// Index upserts entry into the catalogue.
func (w *WearableCatalogue) Index(ctx context.Context, entry WearableEntry) error {
	const q = `
		INSERT INTO wearable_catalogue (urn, category, tags, embedding, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (urn) DO UPDATE SET
		    category   = EXCLUDED.category,
		    tags       = EXCLUDED.tags,
		    embedding  = EXCLUDED.embedding,
		    updated_at = now()`

	vec := pgvector.NewVector(entry.Embedding)
	if _, err := w.pool.Exec(ctx, q, entry.URN, entry.Category, entry.Tags, vec); err != nil {
		return fmt.Errorf("pgcache: index wearable: %w", err)
	}
	return nil
}

// SearchSimilar finds the topK catalogue entries whose embeddings are
// closest (cosine distance) to embedding, optionally restricted to
// category. Results are ordered by ascending distance (most similar first).
func (w *WearableCatalogue) SearchSimilar(ctx context.Context, embedding []float32, topK int, category string) ([]WearableMatch, error) {
	queryVec := pgvector.NewVector(embedding)

	args := []any{queryVec}
	where := ""
	if category != "" {
		args = append(args, category)
		where = fmt.Sprintf("WHERE category = $%d", len(args))
	}
	args = append(args, topK)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT urn, category, tags, embedding, embedding <=> $1 AS distance
		FROM   wearable_catalogue
		%s
		ORDER  BY distance
		LIMIT  %s`, where, limitArg)

	rows, err := w.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pgcache: search wearables: %w", err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (WearableMatch, error) {
		var (
			m   WearableMatch
			vec pgvector.Vector
		)
		if err := row.Scan(&m.URN, &m.Category, &m.Tags, &vec, &m.Distance); err != nil {
			return WearableMatch{}, err
		}
		m.Embedding = vec.Slice()
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("pgcache: scan wearable matches: %w", err)
	}
	if matches == nil {
		matches = []WearableMatch{}
	}
	return matches, nil
}

// CategoryLabel normalises a free-text wearable category for storage,
// matching the lowercase-underscore convention the realm's catalogue API
// uses (e.g. "Upper Body" -> "upper_body").
func CategoryLabel(category string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(category), " ", "_"))
}
