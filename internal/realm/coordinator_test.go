package realm_test

import (
	"context"
	"testing"

	"github.com/openworld-client/realm-runtime/internal/realm"
	"github.com/openworld-client/realm-runtime/internal/realm/mock"
	"github.com/openworld-client/realm-runtime/internal/resilience"
	"github.com/openworld-client/realm-runtime/internal/types"
)

func newTestCoordinator() (*realm.Coordinator, *mock.EntitiesActive, *mock.FixedEntity) {
	active := &mock.EntitiesActive{}
	fixed := &mock.FixedEntity{}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "test"})
	return realm.NewCoordinator(active, fixed, cb), active, fixed
}

// TestCityModePopulatesInnerRing exercises spec §8 end-to-end scenario 1:
// a single entity covering two parcels near the player must become
// loadable, and the rest of the inner ring must show up as empty.
func TestCityModePopulatesInnerRing(t *testing.T) {
	t.Parallel()

	c, active, _ := newTestCoordinator()
	c.Configure(realm.Config{Mode: realm.CityMode, Radius: 2})

	active.Result = []realm.ActiveEntity{
		{Hash: "H", Parcels: []types.Coord{{X: 0, Y: 0}, {X: 0, Y: 1}}},
	}

	v0 := c.Version()
	if err := c.SetPosition(context.Background(), types.Coord{X: 0, Y: 0}); err != nil {
		t.Fatalf("SetPosition: unexpected error: %v", err)
	}

	loadable, _, empty, v1 := c.Snapshot()
	if v1 <= v0 {
		t.Fatalf("version did not increase: v0=%d v1=%d", v0, v1)
	}
	if len(loadable) != 1 || loadable[0] != "H" {
		t.Fatalf("loadable = %v, want [H]", loadable)
	}
	// Inner 5x5 ring (radius 2) has 25 coords; 2 are covered by H, the rest
	// should be confirmed empty.
	if len(empty) != 23 {
		t.Fatalf("empty parcel count = %d, want 23", len(empty))
	}
}

func TestVersionDoesNotChangeWhenSetsAreIdentical(t *testing.T) {
	t.Parallel()

	c, active, _ := newTestCoordinator()
	c.Configure(realm.Config{Mode: realm.CityMode, Radius: 1})
	active.Result = []realm.ActiveEntity{
		{Hash: "H", Parcels: []types.Coord{{X: 0, Y: 0}}},
	}

	if err := c.SetPosition(context.Background(), types.Coord{X: 0, Y: 0}); err != nil {
		t.Fatalf("SetPosition: unexpected error: %v", err)
	}
	_, _, _, v1 := c.Snapshot()

	// Same position again: every coordinate is already cached, so no new
	// request is made and the derived sets are identical.
	if err := c.SetPosition(context.Background(), types.Coord{X: 0, Y: 0}); err != nil {
		t.Fatalf("SetPosition: unexpected error: %v", err)
	}
	_, _, _, v2 := c.Snapshot()

	if v1 != v2 {
		t.Fatalf("version changed with no set difference: v1=%d v2=%d", v1, v2)
	}
	if len(active.Calls) != 1 {
		t.Fatalf("entities/active called %d times, want 1 (cached coords must not be re-requested)", len(active.Calls))
	}
}

func TestHTTPErrorLeavesCoordsUnknownForRetry(t *testing.T) {
	t.Parallel()

	c, active, _ := newTestCoordinator()
	c.Configure(realm.Config{Mode: realm.CityMode, Radius: 1})
	active.Error = context.DeadlineExceeded

	err := c.SetPosition(context.Background(), types.Coord{X: 0, Y: 0})
	if err == nil {
		t.Fatal("expected an error to propagate from a failed entities/active call")
	}

	_, _, empty, _ := c.Snapshot()
	if len(empty) != 0 {
		t.Fatalf("empty parcels should stay unknown after an HTTP error, got %d", len(empty))
	}

	active.Error = nil
	active.Result = []realm.ActiveEntity{{Hash: "H", Parcels: []types.Coord{{X: 0, Y: 0}}}}
	if err := c.SetPosition(context.Background(), types.Coord{X: 0, Y: 0}); err != nil {
		t.Fatalf("retry SetPosition: unexpected error: %v", err)
	}
	if len(active.Calls) != 2 {
		t.Fatalf("expected a retry request after the prior failure, got %d calls", len(active.Calls))
	}
}
