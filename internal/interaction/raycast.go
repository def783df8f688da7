// Package interaction implements the pointer raycast, PointerEvents
// dispatch, and trigger-area layers described in spec §4.H.
//
// The package never performs the raycast or overlap test itself — that is
// the host engine's job, backed by whatever physics broadphase it runs.
// What lives here is the frame-to-frame bookkeeping spec §4.H actually
// specifies: hit resolution priority, hover/click transition detection,
// and trigger-area RID lifecycle.
package interaction

import (
	"github.com/openworld-client/realm-runtime/internal/types"
)

// MaxRaycastDistance is the pointer raycast's world-unit range (spec §4.H).
const MaxRaycastDistance float32 = 100

// MaxAvatarHitDistance discards an avatar hit farther than this, even
// though it was the closest thing the raycast found.
const MaxAvatarHitDistance float32 = 10

// HitKind classifies what a pointer raycast landed on.
type HitKind int

const (
	HitNone HitKind = iota
	HitSceneEntity
	HitAvatar
)

// RaycastCandidate is one object the host's physics query found along the
// pointer ray, before priority resolution.
type RaycastCandidate struct {
	IsAvatar bool
	SceneID  types.SceneId
	Entity   types.SceneEntityId
	Alias    string
	Distance float32
}

// Hit is the resolved result of a single frame's pointer raycast.
type Hit struct {
	Kind     HitKind
	SceneID  types.SceneId
	Entity   types.SceneEntityId
	Alias    string
	Distance float32
}

// sameTarget reports whether two hits refer to the same object, used to
// detect hover enter/leave transitions. Two hits of the same kind other
// than scene entity or avatar (including two HitNone hits) count as the
// same target.
func (h Hit) sameTarget(other Hit) bool {
	if h.Kind != other.Kind {
		return false
	}
	switch h.Kind {
	case HitSceneEntity:
		return h.SceneID == other.SceneID && h.Entity == other.Entity
	case HitAvatar:
		return h.Alias == other.Alias
	default:
		return true
	}
}

// ResolveHit applies spec §4.H's priority rule to one frame's raycast
// candidates: the closest hit wins, and an avatar hit farther than
// MaxAvatarHitDistance is discarded outright rather than falling back to
// the next-closest candidate.
func ResolveHit(candidates []RaycastCandidate) Hit {
	var closest *RaycastCandidate
	for i := range candidates {
		c := &candidates[i]
		if c.Distance > MaxRaycastDistance {
			continue
		}
		if closest == nil || c.Distance < closest.Distance {
			closest = c
		}
	}
	if closest == nil {
		return Hit{Kind: HitNone}
	}
	if closest.IsAvatar {
		if closest.Distance > MaxAvatarHitDistance {
			return Hit{Kind: HitNone}
		}
		return Hit{Kind: HitAvatar, Alias: closest.Alias, Distance: closest.Distance}
	}
	return Hit{
		Kind:     HitSceneEntity,
		SceneID:  closest.SceneID,
		Entity:   closest.Entity,
		Distance: closest.Distance,
	}
}
