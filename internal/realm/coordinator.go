// Package realm implements the scene entity coordinator (spec §4.B): the
// component that decides, from player position and realm configuration,
// which scenes are loadable, which are kept alive, and which parcels are
// confirmed empty.
package realm

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/openworld-client/realm-runtime/internal/resilience"
	"github.com/openworld-client/realm-runtime/internal/types"
)

// Mode selects how the coordinator discovers candidate scenes.
type Mode int

const (
	// CityMode polls a realm's entities/active endpoint for every parcel in
	// range of the player.
	CityMode Mode = iota
	// FloatingIslandsMode fetches a fixed, pre-known list of scene hashes.
	FloatingIslandsMode
)

// emptyMark is the sentinel stored in cacheCityPointers for a coordinate
// confirmed to hold no scene.
const emptyMark types.Hash = ""

// ActiveEntity is one realm-reported scene: its content hash and the
// parcels it declares.
type ActiveEntity struct {
	Hash    types.Hash
	Parcels []types.Coord
}

// EntitiesActiveFetcher fetches the set of active scene entities covering a
// batch of parcel pointers from the realm's entities/active endpoint.
type EntitiesActiveFetcher interface {
	FetchActive(ctx context.Context, pointers []types.Coord) ([]ActiveEntity, error)
}

// FixedEntityFetcher fetches a single scene entity by hash, used in
// floating-islands mode (GET {base}{hash}).
type FixedEntityFetcher interface {
	FetchByHash(ctx context.Context, hash types.Hash) (ActiveEntity, error)
}

// Config holds the coordinator's realm-derived configuration (spec §4.B
// "Inputs"). Calling Coordinator.Configure with a new Config clears all
// request bookkeeping, discarding stale requests from the previous realm.
type Config struct {
	Mode Mode

	// Radius is the inner-ring radius (N in "N×N ring") around the player.
	Radius int

	// FixedURNs are floating-islands mode's pre-known scene hashes.
	FixedURNs []types.Hash

	// GlobalURNs are portable-experience scene hashes, always loadable once
	// cached regardless of position or mode.
	GlobalURNs []types.Hash
}

// Coordinator derives the loadable/keep-alive/empty-parcels sets described
// in spec §4.B. It is safe for concurrent use.
type Coordinator struct {
	active EntitiesActiveFetcher
	fixed  FixedEntityFetcher
	sf     singleflight.Group
	cb     *resilience.CircuitBreaker

	mu       sync.RWMutex
	cfg      Config
	position types.Coord

	cacheCityPointers map[types.Coord]types.Hash
	globalCache       map[types.Hash]struct{}

	loadable     map[types.Hash]struct{}
	keepAlive    map[types.Hash]struct{}
	emptyParcels map[types.Coord]struct{}
	version      uint64

	requestedCityPointers map[types.Coord]struct{}
	requestedEntity       map[types.Hash]struct{}
}

// NewCoordinator constructs a Coordinator. cb guards every entities/active
// and fixed-entity HTTP call (spec §7: a misbehaving realm is left idle,
// not hammered).
func NewCoordinator(active EntitiesActiveFetcher, fixed FixedEntityFetcher, cb *resilience.CircuitBreaker) *Coordinator {
	return &Coordinator{
		active:                active,
		fixed:                 fixed,
		cb:                    cb,
		cacheCityPointers:     make(map[types.Coord]types.Hash),
		globalCache:           make(map[types.Hash]struct{}),
		loadable:              make(map[types.Hash]struct{}),
		keepAlive:             make(map[types.Hash]struct{}),
		emptyParcels:          make(map[types.Coord]struct{}),
		requestedCityPointers: make(map[types.Coord]struct{}),
		requestedEntity:       make(map[types.Hash]struct{}),
	}
}

// Configure installs a new realm configuration, clearing all request
// bookkeeping and cached pointer/entity state (spec §4.B "Request
// bookkeeping": stale requests from previous realms are discarded
// implicitly because config() clears both tables).
func (c *Coordinator) Configure(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg = cfg
	c.cacheCityPointers = make(map[types.Coord]types.Hash)
	c.globalCache = make(map[types.Hash]struct{})
	c.loadable = make(map[types.Hash]struct{})
	c.keepAlive = make(map[types.Hash]struct{})
	c.emptyParcels = make(map[types.Coord]struct{})
	c.requestedCityPointers = make(map[types.Coord]struct{})
	c.requestedEntity = make(map[types.Hash]struct{})
	c.version++
}

// Version returns the current derived-set version. Consumers poll on
// version change rather than subscribing to individual set mutations.
func (c *Coordinator) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Snapshot returns the current loadable, keep-alive, and empty-parcel sets
// together with the version they were derived at.
func (c *Coordinator) Snapshot() (loadable, keepAlive []types.Hash, emptyParcels []types.Coord, version uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for h := range c.loadable {
		loadable = append(loadable, h)
	}
	for h := range c.keepAlive {
		keepAlive = append(keepAlive, h)
	}
	for p := range c.emptyParcels {
		emptyParcels = append(emptyParcels, p)
	}
	return loadable, keepAlive, emptyParcels, c.version
}

// HashAtParcel returns the scene hash cached for a single city-mode parcel
// coordinate, if any is currently known. Used by the avatar scene projector
// to resolve which live scene currently owns a world position (spec §4.F's
// "scene-visibility pass").
func (c *Coordinator) HashAtParcel(coord types.Coord) (types.Hash, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hash, ok := c.cacheCityPointers[coord]
	if !ok || hash == emptyMark {
		return "", false
	}
	return hash, true
}

// ParcelForHash returns a city-mode parcel coordinate known to map to hash,
// so a scene's base parcel can be recovered for local-position conversion
// (spec §4.F). When several parcels map to the same hash (a multi-parcel
// scene) any one of them is returned; base-parcel math only needs one
// reference point per scene.
func (c *Coordinator) ParcelForHash(hash types.Hash) (types.Coord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for coord, h := range c.cacheCityPointers {
		if h == hash {
			return coord, true
		}
	}
	return types.Coord{}, false
}

// ring enumerates the coordinates at exactly DistanceRing(center) == n.
func ring(center types.Coord, n int) []types.Coord {
	if n == 0 {
		return []types.Coord{center}
	}
	var coords []types.Coord
	for dx := -n; dx <= n; dx++ {
		for dy := -n; dy <= n; dy++ {
			if dx != -n && dx != n && dy != -n && dy != n {
				continue
			}
			coords = append(coords, types.Coord{X: center.X + int32(dx), Y: center.Y + int32(dy)})
		}
	}
	return coords
}

// diskWithin enumerates every coordinate within Chebyshev radius n of
// center, inclusive.
func diskWithin(center types.Coord, n int) []types.Coord {
	var coords []types.Coord
	for i := 0; i <= n; i++ {
		coords = append(coords, ring(center, i)...)
	}
	return coords
}

// SetPosition updates the player's position and, in city mode, requests any
// in-range coordinates not yet cached. It always re-derives the loadable
// sets afterward (spec §4.B "Derivation ... runs whenever ... position
// changes").
func (c *Coordinator) SetPosition(ctx context.Context, pos types.Coord) error {
	c.mu.Lock()
	c.position = pos
	mode := c.cfg.Mode
	radius := c.cfg.Radius
	c.mu.Unlock()

	var err error
	switch mode {
	case CityMode:
		err = c.refreshCity(ctx, pos, radius)
	case FloatingIslandsMode:
		err = c.refreshIslands(ctx, pos, radius)
	}
	c.derive()
	return err
}

// refreshCity implements spec §4.B's city-mode batching: every inner- and
// outer-ring coordinate not yet cached or in flight is POSTed in one batch.
func (c *Coordinator) refreshCity(ctx context.Context, pos types.Coord, radius int) error {
	c.mu.Lock()
	var pending []types.Coord
	for _, coord := range diskWithin(pos, radius+1) {
		if _, cached := c.cacheCityPointers[coord]; cached {
			continue
		}
		if _, inFlight := c.requestedCityPointers[coord]; inFlight {
			continue
		}
		pending = append(pending, coord)
		c.requestedCityPointers[coord] = struct{}{}
	}
	c.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	var entities []ActiveEntity
	err := c.cb.Execute(func() error {
		var fetchErr error
		entities, fetchErr = c.active.FetchActive(ctx, pending)
		return fetchErr
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, coord := range pending {
		delete(c.requestedCityPointers, coord)
	}
	if err != nil {
		// Spec §4.B failure semantics: HTTP errors drop the request id only;
		// affected coords remain unknown and are re-requested next time.
		return fmt.Errorf("realm: entities/active: %w", err)
	}

	seen := make(map[types.Coord]struct{}, len(pending))
	for _, entity := range entities {
		for _, p := range entity.Parcels {
			c.cacheCityPointers[p] = entity.Hash
			seen[p] = struct{}{}
		}
	}
	for _, coord := range pending {
		if _, ok := seen[coord]; !ok {
			c.cacheCityPointers[coord] = emptyMark
		}
	}
	return nil
}

// refreshIslands implements spec §4.B's floating-islands mode: fetch every
// fixed URN not yet cached or in flight, plus the genesis-city fallback
// (player's own parcel) when no fixed entities are configured.
func (c *Coordinator) refreshIslands(ctx context.Context, pos types.Coord, radius int) error {
	c.mu.Lock()
	targets := c.cfg.FixedURNs
	if len(targets) == 0 {
		targets = []types.Hash{} // fallback handled below by coord, not hash
	}
	var pending []types.Hash
	for _, hash := range targets {
		if _, cached := c.globalCache[hash]; cached {
			continue
		}
		if _, inFlight := c.requestedEntity[hash]; inFlight {
			continue
		}
		pending = append(pending, hash)
		c.requestedEntity[hash] = struct{}{}
	}
	fallback := len(c.cfg.FixedURNs) == 0
	c.mu.Unlock()

	if fallback {
		return c.refreshCity(ctx, pos, 0)
	}

	for _, hash := range pending {
		hash := hash
		key := string(hash)
		_, err, _ := c.sf.Do(key, func() (any, error) {
			var entity ActiveEntity
			fetchErr := c.cb.Execute(func() error {
				var e error
				entity, e = c.fixed.FetchByHash(ctx, hash)
				return e
			})
			if fetchErr != nil {
				return nil, fetchErr
			}
			c.mu.Lock()
			c.globalCache[entity.Hash] = struct{}{}
			c.mu.Unlock()
			return entity, nil
		})

		c.mu.Lock()
		delete(c.requestedEntity, hash)
		c.mu.Unlock()

		if err != nil {
			continue
		}
	}
	return nil
}

// derive recomputes loadable/keepAlive/emptyParcels from the current cache
// state and bumps version iff any set actually changed (spec §8 testable
// property 6: "The set returned by get_desired_scenes() changes ⇒ version
// strictly increased").
func (c *Coordinator) derive() {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos, radius, mode := c.position, c.cfg.Radius, c.cfg.Mode

	newLoadable := make(map[types.Hash]struct{})
	newKeepAlive := make(map[types.Hash]struct{})
	newEmpty := make(map[types.Coord]struct{})

	inner := diskWithin(pos, radius)
	innerSet := make(map[types.Coord]struct{}, len(inner))
	for _, p := range inner {
		innerSet[p] = struct{}{}
	}
	outer := diskWithin(pos, radius+1)

	switch mode {
	case CityMode:
		for coord, hash := range c.cacheCityPointers {
			if hash == emptyMark {
				if _, ok := innerSet[coord]; ok {
					newEmpty[coord] = struct{}{}
				}
				continue
			}
			if _, ok := innerSet[coord]; ok {
				newLoadable[hash] = struct{}{}
			}
		}
		for _, coord := range outer {
			hash, ok := c.cacheCityPointers[coord]
			if !ok || hash == emptyMark {
				continue
			}
			if _, ok := newLoadable[hash]; !ok {
				newKeepAlive[hash] = struct{}{}
			}
		}
	case FloatingIslandsMode:
		for hash := range c.globalCache {
			newLoadable[hash] = struct{}{}
		}
		for coord := range innerSet {
			if hash, ok := c.cacheCityPointers[coord]; ok && hash != emptyMark {
				newLoadable[hash] = struct{}{}
			} else if !ok {
				newEmpty[coord] = struct{}{}
			}
		}
	}

	for hash := range c.globalCache {
		newLoadable[hash] = struct{}{}
	}

	changed := !sameHashSet(c.loadable, newLoadable) ||
		!sameHashSet(c.keepAlive, newKeepAlive) ||
		!sameCoordSet(c.emptyParcels, newEmpty)

	c.loadable = newLoadable
	c.keepAlive = newKeepAlive
	c.emptyParcels = newEmpty
	if changed {
		c.version++
	}
}

func sameHashSet(a, b map[types.Hash]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func sameCoordSet(a, b map[types.Coord]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
