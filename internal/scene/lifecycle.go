package scene

import (
	"sync"
	"time"

	"github.com/openworld-client/realm-runtime/internal/crdt"
	"github.com/openworld-client/realm-runtime/internal/types"
)

// LifecycleState is one of the scene lifecycle states from spec §4.C.
type LifecycleState int

const (
	Alive LifecycleState = iota
	ToKill
	KillSignal
	Dead
)

func (s LifecycleState) String() string {
	switch s {
	case Alive:
		return "alive"
	case ToKill:
		return "to_kill"
	case KillSignal:
		return "kill_signal"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Scene is one live scene instance: its sandbox, CRDT state, and scheduling
// bookkeeping. All mutation goes through the owning Orchestrator's frame
// loop except for Kill, which may be called from any goroutine.
type Scene struct {
	ID              types.SceneId
	Hash            types.Hash
	DistanceParcels int
	IsCurrentParcel bool

	mu           sync.Mutex
	state        LifecycleState
	killSignalAt time.Time
	paused       bool

	lastTickUs   int64
	tickNumber   uint64
	firstReady   bool
	pendingBatch *OutboundBatch

	sandbox Sandbox
	crdt    *crdt.State
}

// NewScene constructs a Scene bound to sandbox, starting Alive.
func NewScene(id types.SceneId, hash types.Hash, sandbox Sandbox) *Scene {
	return &Scene{
		ID:      id,
		Hash:    hash,
		state:   Alive,
		sandbox: sandbox,
		crdt:    crdt.NewState(),
	}
}

// State returns the scene's current lifecycle state.
func (s *Scene) State() LifecycleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CRDT returns the scene's authoritative host-side CRDT state.
func (s *Scene) CRDT() *crdt.State { return s.crdt }

// TickNumber returns the number of ticks this scene has processed.
func (s *Scene) TickNumber() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickNumber
}

// IsFirstTickReady reports spec §4.C step 5: "first-tick ready" once
// tick_number >= 10 and all pending asset loads have completed.
func (s *Scene) IsFirstTickReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstReady
}

// MarkAssetsLoaded records that this scene's pending asset loads have
// finished; combined with tick_number >= 10 this flips IsFirstTickReady.
func (s *Scene) MarkAssetsLoaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tickNumber >= 10 {
		s.firstReady = true
	}
}

// SetPaused controls scheduling eligibility (spec §4.C: "A scene is
// eligible when ... it is not paused").
func (s *Scene) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// RequestKill transitions an Alive scene to ToKill. It is idempotent: a
// scene already in ToKill/KillSignal/Dead is unaffected.
func (s *Scene) RequestKill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Alive {
		s.state = ToKill
	}
}

// nextTickUs computes the scheduling priority described in spec §4.C:
// paused/idle scenes sort last, the current-parcel scene sorts first, and
// all others sort by a distance-scaled backoff from their last tick.
func (s *Scene) nextTickUs(nowUs int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused || !s.waitingProcessLocked() {
		return int64(1) << 62
	}
	if s.IsCurrentParcel {
		return 1
	}
	delay := 20_000 * int64(s.DistanceParcels)
	if delay < 10_000 {
		delay = 10_000
	}
	if delay > 100_000 {
		delay = 100_000
	}
	return s.lastTickUs + delay
}

// waitingProcessLocked reports whether the sandbox has a pending outbound
// batch, via a non-blocking receive. A received batch is stashed in
// pendingBatch so the scheduler's subsequent tick doesn't lose it. Callers
// must hold s.mu.
func (s *Scene) waitingProcessLocked() bool {
	if s.pendingBatch != nil {
		return true
	}
	select {
	case batch, ok := <-s.sandbox.Outbound():
		if !ok {
			return false
		}
		s.pendingBatch = &batch
		return true
	default:
		return false
	}
}
