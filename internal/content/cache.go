package content

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openworld-client/realm-runtime/internal/resilience"
)

// entry is the cache's per-hash record: {promise, last_access_time} from
// spec §3's ContentEntry.
type entry struct {
	promise    *Promise[any]
	lastAccess atomic.Int64 // unix nanoseconds
}

func (e *entry) touch() {
	e.lastAccess.Store(time.Now().UnixNano())
}

// Cache is the content-addressed, single-flight resource cache described in
// spec §4.A. Multiple concurrent callers for the same Hash share one
// Promise; the cache's own mutation (insert-if-absent) and promise creation
// are one critical section, but no lock is held across the download itself.
type Cache struct {
	downloader Downloader
	breaker    *resilience.CircuitBreaker

	mu      sync.Mutex
	entries map[Hash]*entry

	evictAfter  time.Duration
	maxBytes    int64
	currentSize atomic.Int64

	stop chan struct{}
	once sync.Once
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithEvictAfter overrides the idle duration after which a resolved,
// unreferenced entry becomes eligible for eviction. Default 30s, per spec
// §4.A.
func WithEvictAfter(d time.Duration) CacheOption {
	return func(c *Cache) { c.evictAfter = d }
}

// WithMaxCacheBytes stores an on-disk size bound on the Cache. Eviction does
// not use it: entries are evicted only by idle time and reference count, and
// no size-based or oldest-first eviction of on-disk files takes place.
func WithMaxCacheBytes(n int64) CacheOption {
	return func(c *Cache) { c.maxBytes = n }
}

// NewCache constructs a Cache backed by downloader, with network fetches
// guarded by breaker (spec §7: a misbehaving realm content server trips the
// breaker rather than being hammered).
func NewCache(downloader Downloader, breaker *resilience.CircuitBreaker, opts ...CacheOption) *Cache {
	c := &Cache{
		downloader: downloader,
		breaker:    breaker,
		entries:    make(map[Hash]*entry),
		evictAfter: 30 * time.Second,
		stop:       make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// loader produces the in-memory artifact for a hash. It is invoked without
// the cache lock held.
type loader func(ctx context.Context) (any, error)

// getOrLoad implements the cache-lookup / single-flight algorithm of spec
// §4.A: "If entry exists: bump last_access, return its promise. Else create
// a new pending promise, insert, then spawn the loader asynchronously."
func (c *Cache) getOrLoad(ctx context.Context, hash Hash, load loader) *Promise[any] {
	c.mu.Lock()
	if e, ok := c.entries[hash]; ok {
		e.touch()
		c.mu.Unlock()
		return e.promise
	}

	e := &entry{promise: NewPromise[any]()}
	e.touch()
	c.entries[hash] = e
	c.mu.Unlock()

	go func() {
		value, err := load(ctx)
		if err != nil {
			// Storage-layer IO errors do not poison the cache: remove the
			// entry so a subsequent call retries (spec §4.A failure semantics).
			c.mu.Lock()
			delete(c.entries, hash)
			c.mu.Unlock()
			e.promise.Reject(err)
			return
		}
		e.promise.Resolve(value)
	}()

	return e.promise
}

// fetchBytes downloads hash from url through the circuit breaker, falling
// back to the local disk cache first and persisting a successful download.
func (c *Cache) fetchBytes(ctx context.Context, hash Hash, url string) ([]byte, error) {
	if data, err := c.downloader.Load(ctx, hash); err == nil {
		return data, nil
	}

	var data []byte
	err := c.breaker.Execute(func() error {
		var dlErr error
		data, dlErr = c.downloader.Download(ctx, hash, url)
		return dlErr
	})
	if err != nil {
		return nil, fmt.Errorf("content: fetch %s: %w", hash, err)
	}

	if err := c.downloader.Store(ctx, hash, data); err != nil {
		// Best-effort persistence: a failed write does not fail the fetch,
		// it only means the next fetch re-downloads instead of hitting disk.
	}
	return data, nil
}

// Await blocks on p and type-asserts its resolved value to T. It returns a
// wrapped error if the promise rejected or resolved to an unexpected type.
func Await[T any](ctx context.Context, p *Promise[any]) (T, error) {
	var zero T
	select {
	case <-p.Done():
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	value, err := p.Wait()
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("content: unexpected artifact type %T", value)
	}
	return typed, nil
}

// Evict runs one pass of the eviction algorithm (spec §4.A): entries whose
// last_access is older than evictAfter AND whose promise is resolved are
// dropped if nothing outside the cache still references the value.
func (c *Cache) Evict() {
	now := time.Now()

	c.mu.Lock()
	var stale []Hash
	for hash, e := range c.entries {
		if now.Sub(time.Unix(0, e.lastAccess.Load())) < c.evictAfter {
			continue
		}
		value, _, settled := e.promise.Peek()
		if !settled {
			continue
		}
		if rc, ok := value.(interface{ ExternalRefs() int64 }); ok && rc.ExternalRefs() > 0 {
			continue
		}
		stale = append(stale, hash)
	}
	for _, hash := range stale {
		delete(c.entries, hash)
	}
	c.mu.Unlock()
}

// RunEvictionLoop runs Evict once per second until ctx is cancelled or Stop
// is called.
func (c *Cache) RunEvictionLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.Evict()
		}
	}
}

// Stop halts RunEvictionLoop.
func (c *Cache) Stop() {
	c.once.Do(func() { close(c.stop) })
}
