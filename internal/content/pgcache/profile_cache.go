package pgcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CachedProfile is a durably stored avatar profile, keyed by address.
type CachedProfile struct {
	Address  string
	Version  int
	Raw      map[string]any
	CachedAt time.Time
}

// ProfileCache is the durable backing store for content.Cache's in-memory
// profile fetches. Obtain one via [Store.Profiles] rather than constructing
// directly. All methods are safe for concurrent use.
type ProfileCache struct {
	pool *pgxpool.Pool
}

// Upsert persists profile, replacing any prior cached entry for the same
// address regardless of version (the realm's profile endpoint is the
// source of truth; this is a cache, not a history log).
func (p *ProfileCache) Upsert(ctx context.Context, profile CachedProfile) error {
	raw, err := json.Marshal(profile.Raw)
	if err != nil {
		return fmt.Errorf("pgcache: encode profile raw: %w", err)
	}

	const q = `
		INSERT INTO profile_cache (address, version, raw, cached_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (address) DO UPDATE SET
		    version   = EXCLUDED.version,
		    raw       = EXCLUDED.raw,
		    cached_at = now()`

	if _, err := p.pool.Exec(ctx, q, profile.Address, profile.Version, raw); err != nil {
		return fmt.Errorf("pgcache: upsert profile: %w", err)
	}
	return nil
}

// Lookup returns the cached profile for address, or ok=false if none is
// stored. Callers still treat a cache hit as needing revalidation against
// the realm's profile version number (spec §4.F) before trusting it as
// current.
func (p *ProfileCache) Lookup(ctx context.Context, address string) (CachedProfile, bool, error) {
	const q = `SELECT address, version, raw, cached_at FROM profile_cache WHERE address = $1`

	row := p.pool.QueryRow(ctx, q, address)
	var (
		cp  CachedProfile
		raw []byte
	)
	if err := row.Scan(&cp.Address, &cp.Version, &raw, &cp.CachedAt); err != nil {
		if err == pgx.ErrNoRows {
			return CachedProfile{}, false, nil
		}
		return CachedProfile{}, false, fmt.Errorf("pgcache: lookup profile: %w", err)
	}
	if err := json.Unmarshal(raw, &cp.Raw); err != nil {
		return CachedProfile{}, false, fmt.Errorf("pgcache: decode profile raw: %w", err)
	}
	return cp, true, nil
}

// Evict removes address's cached profile, e.g. after a gatekeeper-reported
// profile revocation.
func (p *ProfileCache) Evict(ctx context.Context, address string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM profile_cache WHERE address = $1`, address); err != nil {
		return fmt.Errorf("pgcache: evict profile: %w", err)
	}
	return nil
}
