package interaction_test

import (
	"testing"

	"github.com/openworld-client/realm-runtime/internal/crdt"
	"github.com/openworld-client/realm-runtime/internal/interaction"
	"github.com/openworld-client/realm-runtime/internal/types"
)

type crdtLookup struct {
	states map[types.SceneId]*crdt.State
}

func (l crdtLookup) CRDT(sceneID types.SceneId) (*crdt.State, bool) {
	s, ok := l.states[sceneID]
	return s, ok
}

func TestTrackerEmitsEnterThenExitOnContainmentFlip(t *testing.T) {
	t.Parallel()

	state := crdt.NewState()
	lookup := crdtLookup{states: map[types.SceneId]*crdt.State{sceneID: state}}
	pool := interaction.NewAreaPool()
	tracker := interaction.NewTracker(pool, lookup)

	areaEntity := types.NewSceneEntityId(10, 0)
	rid := pool.Allocate(sceneID)
	box := interaction.Box{Min: [3]float32{0, 0, 0}, Max: [3]float32{10, 10, 10}}

	tracker.Evaluate(sceneID, areaEntity, rid, box, "bob", [3]float32{5, 5, 5})
	if n := len(state.GetGOS(interaction.ComponentTriggerEvents, areaEntity)); n != 1 {
		t.Fatalf("GOS length = %d after entering, want 1", n)
	}

	// Staying inside must not re-emit.
	tracker.Evaluate(sceneID, areaEntity, rid, box, "bob", [3]float32{6, 6, 6})
	if n := len(state.GetGOS(interaction.ComponentTriggerEvents, areaEntity)); n != 1 {
		t.Fatalf("GOS length = %d while still inside, want 1 (no re-emit)", n)
	}

	tracker.Evaluate(sceneID, areaEntity, rid, box, "bob", [3]float32{50, 50, 50})
	events := state.GetGOS(interaction.ComponentTriggerEvents, areaEntity)
	if len(events) != 2 {
		t.Fatalf("GOS length = %d after exiting, want 2", len(events))
	}
	if events[1][4] != 0 {
		t.Fatalf("second event's enter flag = %d, want 0 (exit)", events[1][4])
	}
}

func TestTrackerDoesNotEmitOnFirstObservationOutside(t *testing.T) {
	t.Parallel()

	state := crdt.NewState()
	lookup := crdtLookup{states: map[types.SceneId]*crdt.State{sceneID: state}}
	pool := interaction.NewAreaPool()
	tracker := interaction.NewTracker(pool, lookup)

	areaEntity := types.NewSceneEntityId(10, 0)
	rid := pool.Allocate(sceneID)
	box := interaction.Box{Min: [3]float32{0, 0, 0}, Max: [3]float32{10, 10, 10}}

	tracker.Evaluate(sceneID, areaEntity, rid, box, "bob", [3]float32{100, 100, 100})
	if n := len(state.GetGOS(interaction.ComponentTriggerEvents, areaEntity)); n != 0 {
		t.Fatalf("GOS length = %d, want 0: starting outside is not a transition", n)
	}
}

func TestAreaPoolReleaseSceneFreesOwnedRIDsOnly(t *testing.T) {
	t.Parallel()

	pool := interaction.NewAreaPool()
	const sceneA = types.SceneId(1)
	const sceneB = types.SceneId(2)

	a1 := pool.Allocate(sceneA)
	_ = pool.Allocate(sceneA)
	b1 := pool.Allocate(sceneB)

	freed := pool.ReleaseScene(sceneA)
	if len(freed) != 2 || freed[0] != a1 {
		t.Fatalf("ReleaseScene(sceneA) = %v, want the 2 RIDs allocated to sceneA", freed)
	}

	freedAgain := pool.ReleaseScene(sceneA)
	if len(freedAgain) != 0 {
		t.Fatal("releasing an already-released scene should be a no-op")
	}

	freedB := pool.ReleaseScene(sceneB)
	if len(freedB) != 1 || freedB[0] != b1 {
		t.Fatalf("ReleaseScene(sceneB) = %v, want sceneB's single RID", freedB)
	}
}
