// Package mock provides an in-memory mock of [avatar.SceneRegistry] for use
// in unit tests.
package mock

import (
	"sync"

	"github.com/openworld-client/realm-runtime/internal/avatar"
	"github.com/openworld-client/realm-runtime/internal/crdt"
	"github.com/openworld-client/realm-runtime/internal/types"
)

var _ avatar.SceneRegistry = (*SceneRegistry)(nil)

// SceneDef is one registered scene's bookkeeping.
type SceneDef struct {
	BaseX, BaseY int32
	// Bounds, if set, is the inclusive world-space box this scene claims;
	// SceneContaining returns this scene for any position inside it.
	MinX, MinZ, MaxX, MaxZ float32
	Global                 bool
}

// SceneRegistry is a mock avatar.SceneRegistry backed by an explicit scene
// table the test populates.
type SceneRegistry struct {
	mu     sync.Mutex
	scenes map[types.SceneId]SceneDef
	crdts  map[types.SceneId]*crdt.State
}

// NewSceneRegistry returns an empty registry.
func NewSceneRegistry() *SceneRegistry {
	return &SceneRegistry{
		scenes: make(map[types.SceneId]SceneDef),
		crdts:  make(map[types.SceneId]*crdt.State),
	}
}

// AddScene registers sceneID with def, creating its CRDT state.
func (r *SceneRegistry) AddScene(sceneID types.SceneId, def SceneDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scenes[sceneID] = def
	r.crdts[sceneID] = crdt.NewState()
}

func (r *SceneRegistry) GlobalScenes() []types.SceneId {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.SceneId
	for id, def := range r.scenes {
		if def.Global {
			out = append(out, id)
		}
	}
	return out
}

func (r *SceneRegistry) SceneContaining(pos avatar.Transform) (types.SceneId, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, def := range r.scenes {
		if def.Global {
			continue
		}
		if pos.X >= def.MinX && pos.X <= def.MaxX && pos.Z >= def.MinZ && pos.Z <= def.MaxZ {
			return id, true
		}
	}
	return 0, false
}

func (r *SceneRegistry) BaseParcel(sceneID types.SceneId) (int32, int32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.scenes[sceneID]
	return def.BaseX, def.BaseY, ok
}

func (r *SceneRegistry) CRDT(sceneID types.SceneId) (*crdt.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.crdts[sceneID]
	return s, ok
}
