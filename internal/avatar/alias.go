// Package avatar implements the avatar scene projector (spec §4.F): the
// global alias→entity allocator, per-alias transform supersession, the
// scene-visibility fan-out, profile projection, emote playback, and
// first-sync snapshotting.
package avatar

import (
	"sync"

	"github.com/openworld-client/realm-runtime/internal/types"
)

// AliasPool allocates one entity number in [AvatarEntityRangeStart,
// AvatarEntityRangeEnd) per comms alias, globally rather than per-scene
// (spec §4.F: "the first scene that observes an alias allocates a new id ...
// by scanning for the first non-live slot"). Grounded on the teacher's
// mutex-guarded map-of-state convention (internal/entity/memstore.go).
type AliasPool struct {
	mu sync.Mutex

	// byAlias maps a comms alias to its allocated entity id. The id's
	// Version() is bumped on removal so any writes still in flight under
	// the old version are dropped by the CRDT (spec §3 kill_entity).
	byAlias map[string]types.SceneEntityId
	// liveNumbers tracks which entity numbers are currently allocated, to
	// find the first free slot.
	liveNumbers map[uint16]bool
	// versions remembers the next version to hand out for a given number,
	// so a number freed then reused still bumps forward rather than
	// reusing version 0 and colliding with stale writes.
	versions map[uint16]uint16
}

// NewAliasPool constructs an empty pool.
func NewAliasPool() *AliasPool {
	return &AliasPool{
		byAlias:     make(map[string]types.SceneEntityId),
		liveNumbers: make(map[uint16]bool),
		versions:    make(map[uint16]uint16),
	}
}

// AddAvatar allocates (or returns the existing) entity id for alias.
// Idempotent: calling it again for an already-live alias returns the same
// id without allocating a new slot.
func (p *AliasPool) AddAvatar(alias string) (types.SceneEntityId, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.byAlias[alias]; ok {
		return id, true
	}

	for n := types.AvatarEntityRangeStart; n < types.AvatarEntityRangeEnd; n++ {
		if p.liveNumbers[n] {
			continue
		}
		id := types.NewSceneEntityId(n, p.versions[n])
		p.byAlias[alias] = id
		p.liveNumbers[n] = true
		return id, true
	}
	return 0, false // pool exhausted: MaxConcurrentAvatarsPerScene reached
}

// RemoveAvatar frees alias's slot, bumping its version for the next
// occupant. Idempotent: removing an alias that was never added is a no-op.
func (p *AliasPool) RemoveAvatar(alias string) (types.SceneEntityId, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.byAlias[alias]
	if !ok {
		return 0, false
	}
	n := id.Number()
	delete(p.byAlias, alias)
	delete(p.liveNumbers, n)
	p.versions[n] = id.Version() + 1
	return id.Bumped(), true
}

// Lookup returns the entity id currently allocated to alias, if any.
func (p *AliasPool) Lookup(alias string) (types.SceneEntityId, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byAlias[alias]
	return id, ok
}

// Aliases returns a snapshot of every currently live alias.
func (p *AliasPool) Aliases() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.byAlias))
	for alias := range p.byAlias {
		out = append(out, alias)
	}
	return out
}
