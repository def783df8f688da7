package interaction_test

import (
	"testing"

	"github.com/openworld-client/realm-runtime/internal/interaction"
	"github.com/openworld-client/realm-runtime/internal/types"
)

const sceneID = types.SceneId(1)

func activeScenes(ids ...types.SceneId) map[types.SceneId]bool {
	m := make(map[types.SceneId]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func TestDispatcherEmitsHoverEnterAndLeaveOnTargetChange(t *testing.T) {
	t.Parallel()

	d := interaction.NewDispatcher(nil)
	entityA := types.NewSceneEntityId(1, 0)
	entityB := types.NewSceneEntityId(2, 0)

	events := d.ProcessFrame(
		interaction.Hit{Kind: interaction.HitSceneEntity, SceneID: sceneID, Entity: entityA},
		nil, nil, activeScenes(sceneID),
	)
	if len(events) != 1 || events[0].Kind != interaction.HoverEnter || events[0].Entity != entityA {
		t.Fatalf("first frame events = %+v, want one HoverEnter for entityA", events)
	}

	events = d.ProcessFrame(
		interaction.Hit{Kind: interaction.HitSceneEntity, SceneID: sceneID, Entity: entityA},
		nil, nil, activeScenes(sceneID),
	)
	if len(events) != 0 {
		t.Fatalf("unchanged hit should not re-emit hover events, got %+v", events)
	}

	events = d.ProcessFrame(
		interaction.Hit{Kind: interaction.HitSceneEntity, SceneID: sceneID, Entity: entityB},
		nil, nil, activeScenes(sceneID),
	)
	if len(events) != 2 {
		t.Fatalf("target change should emit HoverLeave+HoverEnter, got %+v", events)
	}
	if events[0].Kind != interaction.HoverLeave || events[0].Entity != entityA {
		t.Fatalf("events[0] = %+v, want HoverLeave(entityA)", events[0])
	}
	if events[1].Kind != interaction.HoverEnter || events[1].Entity != entityB {
		t.Fatalf("events[1] = %+v, want HoverEnter(entityB)", events[1])
	}
}

func TestDispatcherEmitsDownAndUpForRegisteredButtonsOnly(t *testing.T) {
	t.Parallel()

	entity := types.NewSceneEntityId(1, 0)
	lookup := stubLookup{registered: map[types.SceneEntityId][]interaction.InputButton{
		entity: {interaction.ButtonPrimary},
	}}
	d := interaction.NewDispatcher(lookup)

	events := d.ProcessFrame(
		interaction.Hit{Kind: interaction.HitSceneEntity, SceneID: sceneID, Entity: entity},
		[]interaction.InputButton{interaction.ButtonPrimary, interaction.ButtonSecondary},
		nil,
		activeScenes(sceneID),
	)

	downCount := 0
	for _, ev := range events {
		if ev.Kind == interaction.Down {
			downCount++
		}
	}
	if downCount != 1 {
		t.Fatalf("got %d Down events, want exactly 1 (only the registered button)", downCount)
	}
}

func TestDispatcherSuppressesEventsForInactiveScenes(t *testing.T) {
	t.Parallel()

	d := interaction.NewDispatcher(nil)
	entity := types.NewSceneEntityId(1, 0)

	events := d.ProcessFrame(
		interaction.Hit{Kind: interaction.HitSceneEntity, SceneID: sceneID, Entity: entity},
		[]interaction.InputButton{interaction.ButtonPrimary},
		nil,
		activeScenes(), // sceneID not active this frame
	)
	if len(events) != 0 {
		t.Fatalf("events for an inactive scene should be suppressed, got %+v", events)
	}
}

type stubLookup struct {
	registered map[types.SceneEntityId][]interaction.InputButton
}

func (s stubLookup) RegisteredButtons(_ types.SceneId, entity types.SceneEntityId) []interaction.InputButton {
	return s.registered[entity]
}
