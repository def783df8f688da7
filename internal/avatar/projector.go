package avatar

import (
	"sync"
	"sync/atomic"

	"github.com/openworld-client/realm-runtime/internal/comms"
	"github.com/openworld-client/realm-runtime/internal/crdt"
	"github.com/openworld-client/realm-runtime/internal/types"
)

var _ comms.AvatarSink = (*Projector)(nil)

// SceneRegistry is the host-side view of live scenes the projector needs to
// fan updates out to: which scenes are global, which scene (if any)
// currently contains a world position, and each scene's CRDT state.
type SceneRegistry interface {
	GlobalScenes() []types.SceneId
	SceneContaining(pos Transform) (types.SceneId, bool)
	BaseParcel(sceneID types.SceneId) (x, y int32, ok bool)
	CRDT(sceneID types.SceneId) (*crdt.State, bool)
}

type avatarState struct {
	entity      types.SceneEntityId
	lastPos     Transform
	visibleIn   map[types.SceneId]bool
	profileHash []byte
}

// Projector implements spec §4.F: it owns the global alias→entity
// allocation, applies the per-alias transform supersession rules, computes
// each transform update's scene-visibility set, and fans avatar state into
// every affected scene's CRDT.
//
// Projector is safe for concurrent use; comms delivers updates from
// multiple room-pump goroutines.
type Projector struct {
	aliases      *AliasPool
	supersession *supersessionState
	registry     SceneRegistry
	lamportClock atomic.Uint64

	mu     sync.Mutex
	states map[string]*avatarState // keyed by alias
}

// NewProjector constructs a Projector against registry.
func NewProjector(registry SceneRegistry) *Projector {
	return &Projector{
		aliases:      NewAliasPool(),
		supersession: newSupersessionState(),
		registry:     registry,
		states:       make(map[string]*avatarState),
	}
}

func (p *Projector) nextLamport() uint64 { return p.lamportClock.Add(1) }

// AddAvatar idempotently allocates an entity id for alias (spec §4.F).
func (p *Projector) AddAvatar(alias string) (types.SceneEntityId, bool) {
	id, ok := p.aliases.AddAvatar(alias)
	if !ok {
		return 0, false
	}
	p.mu.Lock()
	if _, exists := p.states[alias]; !exists {
		p.states[alias] = &avatarState{entity: id, visibleIn: make(map[types.SceneId]bool)}
	}
	p.mu.Unlock()
	return id, true
}

// RemoveAvatar idempotently frees alias's slot, kills its CRDT entity in
// every scene it was visible in, and pushes a DeletedEntities marker (spec
// §4.F: "On removal the CRDT entity is killed and a DeletedEntities marker
// is pushed into every scene's pending batch").
func (p *Projector) RemoveAvatar(alias string) {
	bumped, existed := p.aliases.RemoveAvatar(alias)
	if !existed {
		return
	}

	p.mu.Lock()
	st, ok := p.states[alias]
	delete(p.states, alias)
	p.mu.Unlock()
	p.supersession.forget(alias)
	if !ok {
		return
	}

	// bumped is the entity id at its post-removal version; DeleteEntity
	// below marks the pre-bump id dead, which DrainDirty surfaces to each
	// scene as the "DeletedEntities" marker spec §4.F calls for.
	_ = bumped
	for sceneID := range st.visibleIn {
		state, ok := p.registry.CRDT(sceneID)
		if !ok {
			continue
		}
		state.DeleteEntity(st.entity)
	}
}

// HandleMovement implements comms.AvatarSink.
func (p *Projector) HandleMovement(alias string, timestampMs int64, payload []byte) {
	if !p.supersession.acceptMovement(alias, timestampMs) {
		return
	}
	p.applyTransform(alias, payload, 8)
}

// HandlePosition implements comms.AvatarSink.
func (p *Projector) HandlePosition(alias string, index uint32, payload []byte) {
	if !p.supersession.acceptPosition(alias, index) {
		return
	}
	p.applyTransform(alias, payload, 4)
}

// HandleMovementCompressed implements comms.AvatarSink. Compressed movement
// carries the same 8-byte timestamp header as Movement and is subject to the
// same supersession rule.
func (p *Projector) HandleMovementCompressed(alias string, timestampMs int64, payload []byte) {
	if !p.supersession.acceptMovement(alias, timestampMs) {
		return
	}
	p.applyTransform(alias, payload, 8)
}

// HandleVoice and HandleInitVoice implement comms.AvatarSink. Voice channel
// attachment is delegated to the comms/audio boundary (out of this module's
// CRDT-facing scope); the projector only needs to know the entity exists.
func (p *Projector) HandleVoice(alias string, _ []byte)     { p.aliases.AddAvatar(alias) }
func (p *Projector) HandleInitVoice(alias string, _ []byte) { p.aliases.AddAvatar(alias) }

// applyTransform decodes a world position from payload, runs the
// scene-visibility pass, and fans the resulting per-scene transform updates
// out (spec §4.F "Scene-visibility pass").
func (p *Projector) applyTransform(alias string, payload []byte, headerLen int) {
	pos, ok := decodeWorldPosition(payload, headerLen)
	if !ok {
		return
	}
	entity, ok := p.aliases.AddAvatar(alias)
	if !ok {
		return
	}

	p.mu.Lock()
	st, exists := p.states[alias]
	if !exists {
		st = &avatarState{entity: entity, visibleIn: make(map[types.SceneId]bool)}
		p.states[alias] = st
	}
	st.lastPos = pos
	p.mu.Unlock()

	target := make(map[types.SceneId]bool)
	for _, g := range p.registry.GlobalScenes() {
		target[g] = true
	}
	if sceneID, ok := p.registry.SceneContaining(pos); ok {
		target[sceneID] = true
	}

	p.mu.Lock()
	previous := st.visibleIn
	st.visibleIn = target
	p.mu.Unlock()

	for sceneID := range target {
		p.writeTransform(sceneID, entity, pos, true)
	}
	for sceneID := range previous {
		if !target[sceneID] {
			p.writeTransform(sceneID, entity, Transform{}, false)
		}
	}
}

func (p *Projector) writeTransform(sceneID types.SceneId, entity types.SceneEntityId, pos Transform, inside bool) {
	state, ok := p.registry.CRDT(sceneID)
	if !ok {
		return
	}
	lamport := p.nextLamport()
	if inside {
		baseX, baseY, _ := p.registry.BaseParcel(sceneID)
		state.PutLWW(ComponentTransform, entity, lamport, encodeTransform(pos.ToScene(baseX, baseY)))
	} else {
		state.DeleteEntity(entity)
	}
	state.PutLWW(ComponentInternalPlayerData, entity, lamport, encodeInsideFlag(inside))
}

func encodeInsideFlag(inside bool) []byte {
	if inside {
		return []byte{1}
	}
	return []byte{0}
}

// HandleProfileVersion, HandleProfileRequest, HandleProfileResponse
// implement comms.AvatarSink for spec §4.F's "Profile projection". The
// reconciliation sub-protocol (request/response handshake) is owned by
// comms; the projector only needs the resolved profile bytes, delivered via
// ApplyProfile once reconciliation completes.
func (p *Projector) HandleProfileVersion(_ string, _ uint64) {}
func (p *Projector) HandleProfileRequest(_ string)           {}

func (p *Projector) HandleProfileResponse(alias string, payload []byte) {
	p.ApplyProfile(alias, payload)
}

// ApplyProfile compares payload against the alias's last-applied profile;
// if unchanged, it is a no-op (spec §4.F: "Compare the peer's new profile
// against last_updated_profile[entity]; if equal, skip"). Otherwise it
// pushes AvatarBase/AvatarEquippedData/PlayerIdentityData into every scene
// the avatar is currently visible in, and into the local CRDT.
func (p *Projector) ApplyProfile(alias string, payload []byte) {
	entity, ok := p.aliases.AddAvatar(alias)
	if !ok {
		return
	}

	p.mu.Lock()
	st, exists := p.states[alias]
	if !exists {
		st = &avatarState{entity: entity, visibleIn: make(map[types.SceneId]bool)}
		p.states[alias] = st
	}
	if bytesEqual(st.profileHash, payload) {
		p.mu.Unlock()
		return
	}
	st.profileHash = append([]byte(nil), payload...)
	scenes := make([]types.SceneId, 0, len(st.visibleIn))
	for sceneID := range st.visibleIn {
		scenes = append(scenes, sceneID)
	}
	p.mu.Unlock()

	for _, sceneID := range scenes {
		state, ok := p.registry.CRDT(sceneID)
		if !ok {
			continue
		}
		lamport := p.nextLamport()
		state.PutLWW(ComponentAvatarBase, entity, lamport, payload)
		state.PutLWW(ComponentAvatarEquippedData, entity, lamport, payload)
		state.PutLWW(ComponentPlayerIdentityData, entity, lamport, payload)
	}
}

// PlayEmote validates incrementalID against spec §4.F's strictly-increasing
// requirement and, if accepted, appends the emote command to every scene the
// avatar is currently visible in.
func (p *Projector) PlayEmote(alias string, incrementalID uint64, emoteURN string) bool {
	if !p.supersession.acceptEmote(alias, incrementalID) {
		return false
	}
	entity, ok := p.aliases.Lookup(alias)
	if !ok {
		return false
	}
	p.mu.Lock()
	st, exists := p.states[alias]
	var scenes []types.SceneId
	if exists {
		scenes = make([]types.SceneId, 0, len(st.visibleIn))
		for sceneID := range st.visibleIn {
			scenes = append(scenes, sceneID)
		}
	}
	p.mu.Unlock()

	for _, sceneID := range scenes {
		state, ok := p.registry.CRDT(sceneID)
		if !ok {
			continue
		}
		state.AppendGOS(ComponentEmoteCommand, entity, []byte(emoteURN))
	}
	return true
}

// SnapshotInto implements spec §4.F's "First-sync": when sceneID spawns,
// write every currently-tracked avatar's state into its CRDT in one pass,
// filtered by scene visibility (an avatar not visible to sceneID gets
// Transform=None).
func (p *Projector) SnapshotInto(sceneID types.SceneId) {
	state, ok := p.registry.CRDT(sceneID)
	if !ok {
		return
	}

	p.mu.Lock()
	type snap struct {
		entity  types.SceneEntityId
		pos     Transform
		visible bool
		profile []byte
	}
	snaps := make([]snap, 0, len(p.states))
	for _, st := range p.states {
		snaps = append(snaps, snap{entity: st.entity, pos: st.lastPos, visible: st.visibleIn[sceneID], profile: st.profileHash})
	}
	p.mu.Unlock()

	for _, s := range snaps {
		lamport := p.nextLamport()
		if s.visible {
			baseX, baseY, _ := p.registry.BaseParcel(sceneID)
			state.PutLWW(ComponentTransform, s.entity, lamport, encodeTransform(s.pos.ToScene(baseX, baseY)))
		}
		state.PutLWW(ComponentInternalPlayerData, s.entity, lamport, encodeInsideFlag(s.visible))
		if s.profile != nil {
			state.PutLWW(ComponentAvatarBase, s.entity, lamport, s.profile)
			state.PutLWW(ComponentAvatarEquippedData, s.entity, lamport, s.profile)
			state.PutLWW(ComponentPlayerIdentityData, s.entity, lamport, s.profile)
		}
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
