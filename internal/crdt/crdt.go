// Package crdt implements the per-scene Last-Write-Wins and Grow-Only-Set
// state shared between the scene runtime orchestrator and a scene sandbox.
//
// Two endpoints (host and scene) each hold an independent copy of the same
// State and exchange Operations over an append-only log. Applying the same
// operation set in any order converges both copies to the same value, which
// is what makes the state usable across a restart-prone sandbox boundary.
package crdt

import (
	"bytes"
	"sync"

	"github.com/openworld-client/realm-runtime/internal/types"
)

// ComponentId identifies a CRDT component kind (transform, mesh renderer,
// pointer events, ...). The scripting ecosystem's component numbering is
// authoritative; this package treats it as an opaque key.
type ComponentId uint32

// OpKind enumerates the three CRDT operation shapes carried on the wire.
type OpKind uint32

const (
	OpPutLWW OpKind = iota
	OpAppendGOS
	OpDeleteEntity
)

// lwwCell holds one Last-Write-Wins value: a Lamport timestamp paired with
// either a value or a tombstone (nil Value means deleted).
type lwwCell struct {
	Lamport uint64
	Value   []byte
}

// outrankedBy reports whether (ts, bytes) strictly outranks this cell under the
// spec's (timestamp, then lexicographic bytes) tie-break.
func (c lwwCell) outrankedBy(ts uint64, value []byte) bool {
	if ts != c.Lamport {
		return ts > c.Lamport
	}
	return bytes.Compare(value, c.Value) > 0
}

type entityState struct {
	live    bool
	version uint16
}

// State is one side's copy of a scene's CRDT data: LWW cells and GOS lists,
// both keyed by (component, entity), plus per-entity liveness/version.
//
// State is safe for concurrent use; every exported method acquires its own
// lock. Callers must not share a State across scenes.
type State struct {
	mu sync.Mutex

	dirtyKilled map[types.SceneEntityId]struct{}
	lww         map[cellKey]lwwCell
	gos         map[cellKey][][]byte
	entities    map[types.SceneEntityId]*entityState
	dirty       map[cellKey]struct{}
}

type cellKey struct {
	Component ComponentId
	Entity    types.SceneEntityId
}

// NewState returns an empty CRDT state.
func NewState() *State {
	return &State{
		dirtyKilled: make(map[types.SceneEntityId]struct{}),
		lww:         make(map[cellKey]lwwCell),
		gos:         make(map[cellKey][][]byte),
		entities:    make(map[types.SceneEntityId]*entityState),
		dirty:       make(map[cellKey]struct{}),
	}
}

// entityLocked returns (creating if absent) the liveness record for id.
// Callers must hold mu.
func (s *State) entityLocked(id types.SceneEntityId) *entityState {
	e, ok := s.entities[id]
	if !ok {
		e = &entityState{live: true, version: id.Version()}
		s.entities[id] = e
	}
	return e
}

// writeAllowedLocked reports whether a write addressed at entity id's
// version may still be applied: the entity must either be unknown (first
// write) or live at a version no lower than its current one. Callers must
// hold mu.
func (s *State) writeAllowedLocked(id types.SceneEntityId) bool {
	e, ok := s.entities[id]
	if !ok {
		return true
	}
	return e.live && id.Version() >= e.version
}

// PutLWW applies a Last-Write-Wins write. It is silently dropped if the
// entity has been killed at or above this version, or if the incoming
// (lamport, bytes) pair does not strictly outrank the stored cell.
func (s *State) PutLWW(component ComponentId, entity types.SceneEntityId, lamport uint64, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.writeAllowedLocked(entity) {
		return
	}
	key := cellKey{Component: component, Entity: entity}
	cell, exists := s.lww[key]
	if exists && !cell.outrankedBy(lamport, value) {
		return
	}
	s.lww[key] = lwwCell{Lamport: lamport, Value: value}
	s.entityLocked(entity)
	s.dirty[key] = struct{}{}
}

// GetLWW returns the current value for a cell and whether it has ever been
// written (a tombstone is reported as ok=true, value=nil).
func (s *State) GetLWW(component ComponentId, entity types.SceneEntityId) (value []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cell, ok := s.lww[cellKey{Component: component, Entity: entity}]
	if !ok {
		return nil, false
	}
	return cell.Value, true
}

// AppendGOS appends a value to a Grow-Only-Set cell. Insertion order is
// preserved and duplicates are allowed, per the spec's GOS semantics.
func (s *State) AppendGOS(component ComponentId, entity types.SceneEntityId, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.writeAllowedLocked(entity) {
		return
	}
	key := cellKey{Component: component, Entity: entity}
	s.gos[key] = append(s.gos[key], value)
	s.entityLocked(entity)
	s.dirty[key] = struct{}{}
}

// GetGOS returns the append-only list for a cell. The returned slice is a
// defensive copy; mutating it does not affect the State.
func (s *State) GetGOS(component ComponentId, entity types.SceneEntityId) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.gos[cellKey{Component: component, Entity: entity}]
	out := make([][]byte, len(values))
	copy(out, values)
	return out
}

// DeleteEntity marks entity dead and bumps its version. Any write addressed
// at the old version or lower is dropped by subsequent PutLWW/AppendGOS
// calls until a new entity is created at the bumped version.
func (s *State) DeleteEntity(entity types.SceneEntityId) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entityLocked(entity)
	e.live = false
	e.version = entity.Bumped().Version()
	s.dirtyKilled[entity] = struct{}{}
}

// IsLive reports whether entity is currently live.
func (s *State) IsLive(entity types.SceneEntityId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[entity]
	return !ok || e.live
}

// Operation is a decoded CRDT wire operation, as exchanged on the host↔scene
// channel (§4.D). Component/Entity/Lamport are zero for DeleteEntity beyond
// what Entity requires.
type Operation struct {
	Kind      OpKind
	Component ComponentId
	Entity    types.SceneEntityId
	Lamport   uint64
	Value     []byte
}

// Apply applies a decoded Operation to the state, dispatching by Kind.
func (s *State) Apply(op Operation) {
	switch op.Kind {
	case OpPutLWW:
		s.PutLWW(op.Component, op.Entity, op.Lamport, op.Value)
	case OpAppendGOS:
		s.AppendGOS(op.Component, op.Entity, op.Value)
	case OpDeleteEntity:
		s.DeleteEntity(op.Entity)
	}
}

// DrainDirty returns every (component, entity) pair touched since the last
// drain, clearing the dirty set. This is the host/scene tick's canonical
// batch source (§4.C step 4, §4.D).
func (s *State) DrainDirty() []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()

	ops := make([]Operation, 0, len(s.dirty)+len(s.dirtyKilled))
	for entity := range s.dirtyKilled {
		ops = append(ops, Operation{Kind: OpDeleteEntity, Entity: entity})
		delete(s.dirtyKilled, entity)
	}
	for key := range s.dirty {
		if cell, ok := s.lww[key]; ok {
			ops = append(ops, Operation{
				Kind:      OpPutLWW,
				Component: key.Component,
				Entity:    key.Entity,
				Lamport:   cell.Lamport,
				Value:     cell.Value,
			})
			continue
		}
		if values := s.gos[key]; len(values) > 0 {
			ops = append(ops, Operation{
				Kind:      OpAppendGOS,
				Component: key.Component,
				Entity:    key.Entity,
				Value:     values[len(values)-1],
			})
		}
	}
	for key := range s.dirty {
		delete(s.dirty, key)
	}
	return ops
}
