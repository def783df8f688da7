package interaction_test

import (
	"testing"

	"github.com/openworld-client/realm-runtime/internal/interaction"
	"github.com/openworld-client/realm-runtime/internal/types"
)

func TestResolveHitPicksClosestCandidate(t *testing.T) {
	t.Parallel()

	hit := interaction.ResolveHit([]interaction.RaycastCandidate{
		{SceneID: 1, Entity: types.NewSceneEntityId(5, 0), Distance: 20},
		{SceneID: 1, Entity: types.NewSceneEntityId(6, 0), Distance: 5},
	})
	if hit.Kind != interaction.HitSceneEntity || hit.Entity.Number() != 6 {
		t.Fatalf("ResolveHit() = %+v, want the entity at distance 5", hit)
	}
}

func TestResolveHitDiscardsBeyondMaxDistance(t *testing.T) {
	t.Parallel()

	hit := interaction.ResolveHit([]interaction.RaycastCandidate{
		{SceneID: 1, Entity: types.NewSceneEntityId(5, 0), Distance: interaction.MaxRaycastDistance + 1},
	})
	if hit.Kind != interaction.HitNone {
		t.Fatalf("ResolveHit() = %+v, want HitNone beyond max distance", hit)
	}
}

func TestResolveHitDiscardsFarAvatarEvenWhenClosest(t *testing.T) {
	t.Parallel()

	hit := interaction.ResolveHit([]interaction.RaycastCandidate{
		{IsAvatar: true, Alias: "bob", Distance: interaction.MaxAvatarHitDistance + 1},
		{SceneID: 1, Entity: types.NewSceneEntityId(5, 0), Distance: 50},
	})
	if hit.Kind != interaction.HitNone {
		t.Fatalf("ResolveHit() = %+v, want HitNone: the closest hit (a far avatar) is discarded, not replaced", hit)
	}
}

func TestResolveHitAcceptsNearAvatar(t *testing.T) {
	t.Parallel()

	hit := interaction.ResolveHit([]interaction.RaycastCandidate{
		{IsAvatar: true, Alias: "bob", Distance: 3},
	})
	if hit.Kind != interaction.HitAvatar || hit.Alias != "bob" {
		t.Fatalf("ResolveHit() = %+v, want HitAvatar(bob)", hit)
	}
}
