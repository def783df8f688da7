package app

import (
	"math"

	"github.com/openworld-client/realm-runtime/internal/avatar"
	"github.com/openworld-client/realm-runtime/internal/comms"
	"github.com/openworld-client/realm-runtime/internal/crdt"
	"github.com/openworld-client/realm-runtime/internal/realm"
	"github.com/openworld-client/realm-runtime/internal/scene"
	"github.com/openworld-client/realm-runtime/internal/types"
)

// componentSceneMessage is the GOS component inbound comms scene messages
// (packet.KindScene) are appended to, so they flow into a scene's sandbox
// through the same per-tick host() drain as avatar and trigger writes
// rather than needing a side channel.
const componentSceneMessage crdt.ComponentId = 3000

// broadcastEntity is the fixed entity inbound scene messages are addressed
// to: they are not per-entity state, just an ordered log the sandbox reads.
var broadcastEntity = types.NewSceneEntityId(types.EntityNumberRoot, 0)

// sceneHost is the single place that knows how to go from a content Hash or
// a world position to a live, host-local scene: it implements
// avatar.SceneRegistry (so the avatar projector can resolve scene
// visibility) and comms.SceneRouter (so inbound scene-addressed comms
// packets reach the right sandbox), both backed by the same orchestrator +
// realm coordinator the reconciliation loop already maintains.
type sceneHost struct {
	orc       *scene.Orchestrator
	coord     *realm.Coordinator
	globalSet map[types.Hash]struct{}
}

func newSceneHost(orc *scene.Orchestrator, coord *realm.Coordinator, globalHashes []types.Hash) *sceneHost {
	g := make(map[types.Hash]struct{}, len(globalHashes))
	for _, h := range globalHashes {
		g[h] = struct{}{}
	}
	return &sceneHost{orc: orc, coord: coord, globalSet: g}
}

var _ avatar.SceneRegistry = (*sceneHost)(nil)
var _ comms.SceneRouter = (*sceneHost)(nil)

// GlobalScenes returns every live scene whose content hash is one of the
// realm's portable-experience (global) scenes, visible to avatars
// regardless of position.
func (h *sceneHost) GlobalScenes() []types.SceneId {
	if len(h.globalSet) == 0 {
		return nil
	}
	var ids []types.SceneId
	for _, id := range h.orc.SceneIDs() {
		s, ok := h.orc.Scene(id)
		if !ok {
			continue
		}
		if _, global := h.globalSet[s.Hash]; global {
			ids = append(ids, id)
		}
	}
	return ids
}

// SceneContaining resolves which live scene's parcel currently contains pos,
// via the realm coordinator's city-mode pointer cache.
func (h *sceneHost) SceneContaining(pos avatar.Transform) (types.SceneId, bool) {
	coord := types.Coord{
		X: int32(math.Floor(float64(pos.X) / types.ParcelSize)),
		Y: int32(math.Floor(float64(pos.Z) / types.ParcelSize)),
	}
	hash, ok := h.coord.HashAtParcel(coord)
	if !ok {
		return types.InvalidSceneId, false
	}
	for _, id := range h.orc.SceneIDs() {
		s, ok := h.orc.Scene(id)
		if ok && s.Hash == hash {
			return id, true
		}
	}
	return types.InvalidSceneId, false
}

// BaseParcel returns the parcel coordinate sceneID's content hash resolved
// to, for local-position conversion in the avatar projector.
func (h *sceneHost) BaseParcel(sceneID types.SceneId) (x, y int32, ok bool) {
	s, ok := h.orc.Scene(sceneID)
	if !ok {
		return 0, 0, false
	}
	coord, ok := h.coord.ParcelForHash(s.Hash)
	if !ok {
		return 0, 0, false
	}
	return coord.X, coord.Y, true
}

// CRDT returns sceneID's authoritative host-side CRDT state.
func (h *sceneHost) CRDT(sceneID types.SceneId) (*crdt.State, bool) {
	s, ok := h.orc.Scene(sceneID)
	if !ok {
		return nil, false
	}
	return s.CRDT(), true
}

// RouteToScene implements comms.SceneRouter: payload is appended to
// sceneID's CRDT as an ordered message, which the orchestrator's per-tick
// host() callback drains and forwards to the sandbox on the next frame
// (spec §4.E "route by scene_id").
func (h *sceneHost) RouteToScene(sceneID types.SceneId, payload []byte) {
	s, ok := h.orc.Scene(sceneID)
	if !ok {
		return
	}
	s.CRDT().AppendGOS(componentSceneMessage, broadcastEntity, payload)
}

// hostComponents implements the per-tick host() callback RunFrame takes: it
// drains whatever the avatar projector, the interaction dispatcher, and
// RouteToScene wrote into a scene's CRDT since the last tick and hands it
// back as the scene's inbound batch for this frame.
func hostComponents(reg *sceneHost) func(types.SceneId) scene.HostComponents {
	return func(id types.SceneId) scene.HostComponents {
		s, ok := reg.orc.Scene(id)
		if !ok {
			return scene.HostComponents{}
		}
		return scene.HostComponents{AvatarUpdates: s.CRDT().DrainDirty()}
	}
}
