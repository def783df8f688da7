package interaction

import (
	"sync"

	"github.com/openworld-client/realm-runtime/internal/crdt"
	"github.com/openworld-client/realm-runtime/internal/types"
)

// ComponentTriggerEvents is the GOS component trigger enter/exit
// transitions are appended to (spec §4.H "Trigger areas").
const ComponentTriggerEvents crdt.ComponentId = 2000

// AreaRID identifies one trigger area, allocated from a pool shared across
// every live scene.
type AreaRID uint32

// AreaPool allocates AreaRIDs from a single global counter and tracks which
// scene owns each one, so every RID a scene allocated can be released in
// one call on scene death (spec §4.H: "released on scene death").
type AreaPool struct {
	mu      sync.Mutex
	next    AreaRID
	byScene map[types.SceneId][]AreaRID
	owner   map[AreaRID]types.SceneId
}

// NewAreaPool returns an empty pool.
func NewAreaPool() *AreaPool {
	return &AreaPool{
		byScene: make(map[types.SceneId][]AreaRID),
		owner:   make(map[AreaRID]types.SceneId),
	}
}

// Allocate returns a fresh AreaRID owned by sceneID.
func (p *AreaPool) Allocate(sceneID types.SceneId) AreaRID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	rid := p.next
	p.byScene[sceneID] = append(p.byScene[sceneID], rid)
	p.owner[rid] = sceneID
	return rid
}

// ReleaseScene frees every AreaRID owned by sceneID, returning them so the
// caller can also drop any per-area overlap state it keeps.
func (p *AreaPool) ReleaseScene(sceneID types.SceneId) []AreaRID {
	p.mu.Lock()
	defer p.mu.Unlock()
	rids := p.byScene[sceneID]
	delete(p.byScene, sceneID)
	for _, rid := range rids {
		delete(p.owner, rid)
	}
	return rids
}

// Box is an axis-aligned overlap volume in scene-local coordinates.
type Box struct {
	Min, Max [3]float32
}

// Contains reports whether p lies within the closed box.
func (b Box) Contains(p [3]float32) bool {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// overlapKey identifies one (area, subject) pair being tracked for
// enter/exit transitions.
type overlapKey struct {
	Area    AreaRID
	Subject string
}

// CRDTLookup resolves a live scene's CRDT state so trigger transitions can
// be appended to it.
type CRDTLookup interface {
	CRDT(sceneID types.SceneId) (*crdt.State, bool)
}

// Tracker evaluates trigger-area overlap and appends enter/exit events to
// the owning scene's CRDT, per spec §4.H.
type Tracker struct {
	pool   *AreaPool
	lookup CRDTLookup

	mu     sync.Mutex
	inside map[overlapKey]bool
}

// NewTracker constructs a Tracker backed by pool for RID allocation and
// lookup for resolving a scene's CRDT state.
func NewTracker(pool *AreaPool, lookup CRDTLookup) *Tracker {
	return &Tracker{
		pool:   pool,
		lookup: lookup,
		inside: make(map[overlapKey]bool),
	}
}

// Evaluate checks whether subject (identified by an opaque key such as an
// avatar alias or "entity:<id>") is inside area's box this frame, emitting
// an enter/exit CRDT append to sceneID's trigger-events GOS if its
// containment state flipped since the previous call.
func (t *Tracker) Evaluate(sceneID types.SceneId, areaEntity types.SceneEntityId, area AreaRID, box Box, subject string, point [3]float32) {
	nowInside := box.Contains(point)

	t.mu.Lock()
	key := overlapKey{Area: area, Subject: subject}
	wasInside, known := t.inside[key]
	if known && wasInside == nowInside {
		t.mu.Unlock()
		return
	}
	t.inside[key] = nowInside
	t.mu.Unlock()

	if !known && !nowInside {
		// First observation and already outside: not a transition.
		return
	}

	state, ok := t.lookup.CRDT(sceneID)
	if !ok {
		return
	}
	state.AppendGOS(ComponentTriggerEvents, areaEntity, encodeTriggerEvent(area, nowInside))
}

// ReleaseScene frees sceneID's area RIDs and drops any overlap bookkeeping
// for them.
func (t *Tracker) ReleaseScene(sceneID types.SceneId) {
	rids := t.pool.ReleaseScene(sceneID)
	if len(rids) == 0 {
		return
	}
	freed := make(map[AreaRID]bool, len(rids))
	for _, rid := range rids {
		freed[rid] = true
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.inside {
		if freed[key.Area] {
			delete(t.inside, key)
		}
	}
}

// encodeTriggerEvent packs an area RID and an enter(1)/exit(0) flag into
// the trigger-events GOS wire value.
func encodeTriggerEvent(area AreaRID, enter bool) []byte {
	buf := make([]byte, 5)
	buf[0] = byte(area >> 24)
	buf[1] = byte(area >> 16)
	buf[2] = byte(area >> 8)
	buf[3] = byte(area)
	if enter {
		buf[4] = 1
	}
	return buf
}
