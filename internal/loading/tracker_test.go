package loading_test

import (
	"testing"
	"time"

	"github.com/openworld-client/realm-runtime/internal/loading"
	"github.com/openworld-client/realm-runtime/internal/types"
)

const (
	sceneA types.Hash = "scene-a"
	sceneB types.Hash = "scene-b"
)

func TestPhaseMachineAdvancesMetadataToSpawningToLoadingAssetsToComplete(t *testing.T) {
	t.Parallel()

	var events []loading.Event
	tr := loading.NewTracker(func(ev loading.Event) { events = append(events, ev) })

	id := tr.StartSession([]types.Hash{sceneA, sceneB}, 0, time.Hour)
	if tr.Phase() != loading.PhaseMetadata {
		t.Fatalf("Phase() = %v, want PhaseMetadata", tr.Phase())
	}
	if len(events) != 1 || events[0].Kind != loading.EventStarted || events[0].SessionID != id {
		t.Fatalf("unexpected events after StartSession: %+v", events)
	}

	tr.MarkFetched(sceneA)
	if tr.Phase() != loading.PhaseMetadata {
		t.Fatal("should still be in metadata until every scene is fetched")
	}

	tr.MarkFetched(sceneB)
	if tr.Phase() != loading.PhaseSpawning {
		t.Fatalf("Phase() = %v, want PhaseSpawning once every scene is fetched", tr.Phase())
	}

	tr.MarkSpawned(sceneA)
	if tr.Phase() != loading.PhaseSpawning {
		t.Fatal("should still be spawning until every fetched scene is spawned or errored")
	}

	tr.MarkSpawnError(sceneB, errBoom)
	if tr.Phase() != loading.PhaseLoadingAssets {
		t.Fatalf("Phase() = %v, want PhaseLoadingAssets (a spawn error still counts as resolved)", tr.Phase())
	}

	tr.MarkSceneReady(sceneA)
	if tr.Phase() != loading.PhaseLoadingAssets {
		t.Fatal("should still be loading assets until every scene is ready")
	}

	tr.MarkSceneReady(sceneB)
	if tr.Phase() != loading.PhaseComplete {
		t.Fatalf("Phase() = %v, want PhaseComplete once every scene is ready and no islands are pending", tr.Phase())
	}

	progress, ready, total := tr.Progress()
	if progress != 100 {
		t.Fatalf("Progress() = %v, want 100 on completion", progress)
	}
	if ready != 2 || total != 2 {
		t.Fatalf("Progress() counts = (%d, %d), want (2, 2)", ready, total)
	}
}

func TestPhaseMachineGoesThroughFloatingIslandsWhenDeclared(t *testing.T) {
	t.Parallel()

	tr := loading.NewTracker(nil)
	tr.StartSession([]types.Hash{sceneA}, 2, time.Hour)

	tr.MarkFetched(sceneA)
	tr.MarkSpawned(sceneA)
	tr.MarkSceneReady(sceneA)

	if tr.Phase() != loading.PhaseFloatingIslands {
		t.Fatalf("Phase() = %v, want PhaseFloatingIslands with 2 islands pending", tr.Phase())
	}

	tr.MarkIslandCreated()
	if tr.Phase() != loading.PhaseFloatingIslands {
		t.Fatal("should stay in floating_islands until created_count >= expected_count")
	}

	tr.MarkIslandCreated()
	if tr.Phase() != loading.PhaseComplete {
		t.Fatalf("Phase() = %v, want PhaseComplete once every island is created", tr.Phase())
	}
}

func TestStartSessionCancelsPreviousSessionBeforeStartingNewOne(t *testing.T) {
	t.Parallel()

	var events []loading.Event
	tr := loading.NewTracker(func(ev loading.Event) { events = append(events, ev) })

	first := tr.StartSession([]types.Hash{sceneA}, 0, time.Hour)
	second := tr.StartSession([]types.Hash{sceneB}, 0, time.Hour)

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (started, cancelled, started)", len(events))
	}
	if events[1].Kind != loading.EventCancelled || events[1].SessionID != first {
		t.Fatalf("events[1] = %+v, want cancelled for session %s", events[1], first)
	}
	if events[2].Kind != loading.EventStarted || events[2].SessionID != second {
		t.Fatalf("events[2] = %+v, want started for session %s", events[2], second)
	}
	if tr.SessionID() != second {
		t.Fatalf("SessionID() = %s, want %s", tr.SessionID(), second)
	}
}

func TestEmptySceneSetStartsDirectlyInSpawning(t *testing.T) {
	t.Parallel()

	tr := loading.NewTracker(nil)
	tr.StartSession(nil, 0, time.Hour)
	if tr.Phase() != loading.PhaseSpawning {
		t.Fatalf("Phase() = %v, want PhaseSpawning for an empty expected-scenes set", tr.Phase())
	}
}

var errBoom = &testSpawnError{}

type testSpawnError struct{}

func (*testSpawnError) Error() string { return "boom" }
