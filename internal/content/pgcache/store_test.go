package pgcache_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/openworld-client/realm-runtime/internal/content/pgcache"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if REALM_RUNTIME_TEST_POSTGRES_DSN is not set. These are integration
// tests against a real PostgreSQL + pgvector instance, not run by default.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("REALM_RUNTIME_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("REALM_RUNTIME_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *pgcache.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool := mustPool(t, ctx, dsn)
	t.Cleanup(cleanPool.Close)
	dropSchema(t, ctx, cleanPool)

	store, err := pgcache.NewStore(ctx, dsn, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func mustPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_ = pgxvec.RegisterTypes(ctx, conn)
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	return pool
}

func dropSchema(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS wearable_catalogue CASCADE",
		"DROP TABLE IF EXISTS profile_cache CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("dropSchema %q: %v", stmt, err)
		}
	}
}

func TestProfileCache_UpsertAndLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	profiles := store.Profiles()

	_, ok, err := profiles.Lookup(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Lookup before insert: %v", err)
	}
	if ok {
		t.Fatal("expected no cached profile before insert")
	}

	err = profiles.Upsert(ctx, pgcache.CachedProfile{
		Address: "0xabc",
		Version: 1,
		Raw:     map[string]any{"name": "Alice"},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	cp, ok, err := profiles.Lookup(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok {
		t.Fatal("expected a cached profile after insert")
	}
	if cp.Version != 1 {
		t.Errorf("Version = %d, want 1", cp.Version)
	}
	if cp.Raw["name"] != "Alice" {
		t.Errorf("Raw[name] = %v, want Alice", cp.Raw["name"])
	}

	if err := profiles.Upsert(ctx, pgcache.CachedProfile{Address: "0xabc", Version: 2, Raw: map[string]any{"name": "Alice2"}}); err != nil {
		t.Fatalf("Upsert (update): %v", err)
	}
	cp, _, err = profiles.Lookup(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Lookup after update: %v", err)
	}
	if cp.Version != 2 {
		t.Errorf("Version after update = %d, want 2", cp.Version)
	}
}

func TestProfileCache_Evict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	profiles := store.Profiles()

	if err := profiles.Upsert(ctx, pgcache.CachedProfile{Address: "0xdef", Version: 1, Raw: map[string]any{}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := profiles.Evict(ctx, "0xdef"); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	_, ok, err := profiles.Lookup(ctx, "0xdef")
	if err != nil {
		t.Fatalf("Lookup after evict: %v", err)
	}
	if ok {
		t.Fatal("expected profile to be gone after Evict")
	}
}

func TestWearableCatalogue_SearchSimilar(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	wearables := store.Wearables()

	entries := []pgcache.WearableEntry{
		{URN: "urn:wearable:red-hat", Category: "hat", Tags: []string{"red", "festive"}, Embedding: []float32{1, 0, 0, 0}},
		{URN: "urn:wearable:blue-hat", Category: "hat", Tags: []string{"blue", "formal"}, Embedding: []float32{0, 1, 0, 0}},
		{URN: "urn:wearable:red-shirt", Category: "upper_body", Tags: []string{"red"}, Embedding: []float32{0.9, 0.1, 0, 0}},
	}
	for _, e := range entries {
		if err := wearables.Index(ctx, e); err != nil {
			t.Fatalf("Index(%s): %v", e.URN, err)
		}
	}

	matches, err := wearables.SearchSimilar(ctx, []float32{1, 0, 0, 0}, 2, "")
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	if matches[0].URN != "urn:wearable:red-hat" {
		t.Errorf("closest match = %s, want urn:wearable:red-hat", matches[0].URN)
	}

	filtered, err := wearables.SearchSimilar(ctx, []float32{1, 0, 0, 0}, 5, "upper_body")
	if err != nil {
		t.Fatalf("SearchSimilar (filtered): %v", err)
	}
	if len(filtered) != 1 || filtered[0].URN != "urn:wearable:red-shirt" {
		t.Fatalf("filtered matches = %v, want exactly urn:wearable:red-shirt", filtered)
	}
}

func TestCategoryLabel(t *testing.T) {
	cases := map[string]string{
		"Upper Body": "upper_body",
		" Hat ":      "hat",
		"FEET":       "feet",
	}
	for in, want := range cases {
		if got := pgcache.CategoryLabel(in); got != want {
			t.Errorf("CategoryLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
