package content

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/openworld-client/realm-runtime/internal/types"
)

// OptimisedCache is the "mobile-optimised" subcache of spec §4.A: a
// separate set of hashes, each with a declared dependency map of zip files.
// Fetching one hash downloads every undownloaded dependency zip in
// parallel, then merges them into the resource namespace. Dependency zips
// are merged idempotently via a loaded set.
type OptimisedCache struct {
	cache *Cache

	mu           sync.Mutex
	dependencies map[types.Hash][]types.Hash
	loaded       map[types.Hash]struct{}
}

// NewOptimisedCache returns an OptimisedCache backed by cache for downloads.
func NewOptimisedCache(cache *Cache) *OptimisedCache {
	return &OptimisedCache{
		cache:        cache,
		dependencies: make(map[types.Hash][]types.Hash),
		loaded:       make(map[types.Hash]struct{}),
	}
}

// Declare registers hash's dependency zip hashes. Must be called before
// Fetch for hash.
func (o *OptimisedCache) Declare(hash types.Hash, deps []types.Hash) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dependencies[hash] = deps
}

// Fetch downloads every undownloaded dependency zip for hash in parallel
// and merges each into the resource namespace exactly once.
func (o *OptimisedCache) Fetch(ctx context.Context, hash types.Hash, mapping types.ContentMapping) error {
	o.mu.Lock()
	deps := o.dependencies[hash]
	var pending []types.Hash
	for _, dep := range deps {
		if _, done := o.loaded[dep]; !done {
			pending = append(pending, dep)
		}
	}
	o.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, dep := range pending {
		dep := dep
		eg.Go(func() error {
			url := mapping.ContentURL(dep)
			p := o.cache.FetchFile(egCtx, dep, url)
			_, err := Await[[]byte](egCtx, p)
			if err != nil {
				return fmt.Errorf("optimised subcache: fetch %s: %w", dep, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	o.mu.Lock()
	for _, dep := range pending {
		o.loaded[dep] = struct{}{}
	}
	o.mu.Unlock()
	return nil
}

// IsLoaded reports whether dep has already been merged into the resource
// namespace.
func (o *OptimisedCache) IsLoaded(dep types.Hash) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.loaded[dep]
	return ok
}
