package scene

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/openworld-client/realm-runtime/internal/crdt"
	"github.com/openworld-client/realm-runtime/internal/types"
)

// MaxTickUs is the per-frame time budget (spec §4.C, "e.g. 8333 µs at
// 60fps").
const MaxTickUs = 8_333

// MinPerSceneUs is the minimum remaining budget required to start
// processing another scene within a frame.
const MinPerSceneUs = 2_083

// HostComponents are the host-origin CRDT writes gathered once per tick
// (spec §4.C step 3): player transform, camera transform/mode, UI canvas
// info, avatar-scene updates, and trigger-area transitions. RunFrame
// obtains each scene's HostComponents from its host callback and flattens
// them into that scene's inbound batch.
type HostComponents struct {
	PlayerTransform []crdt.Operation
	Camera          []crdt.Operation
	UICanvas        []crdt.Operation
	AvatarUpdates   []crdt.Operation
	TriggerAreas    []crdt.Operation
}

// Flatten concatenates every category into one batch, preserving category
// order.
func (h HostComponents) Flatten() []crdt.Operation {
	var ops []crdt.Operation
	ops = append(ops, h.PlayerTransform...)
	ops = append(ops, h.Camera...)
	ops = append(ops, h.UICanvas...)
	ops = append(ops, h.AvatarUpdates...)
	ops = append(ops, h.TriggerAreas...)
	return ops
}

// RPCDispatcher handles a batch of RPC calls collected during a scene's
// tick. Per spec §4.C, dispatch happens in the orchestrator frame *after*
// the tick that produced the calls, not inline.
type RPCDispatcher interface {
	Dispatch(ctx context.Context, sceneID types.SceneId, calls []RPCCall)
}

// Orchestrator cooperatively schedules every live scene within a per-frame
// time budget, owning each scene's lifecycle, CRDT apply step, and RPC
// dispatch ordering (spec §4.C).
type Orchestrator struct {
	mu     sync.RWMutex
	scenes map[types.SceneId]*Scene

	rpc RPCDispatcher

	// pendingRPCs holds RPC calls collected this frame, dispatched at the
	// start of the *next* frame.
	pendingRPCs []pendingRPC

	nowUs func() int64
}

type pendingRPC struct {
	sceneID types.SceneId
	calls   []RPCCall
}

// NewOrchestrator constructs an Orchestrator. rpc may be nil if the caller
// does not need RPC dispatch (e.g. in tests focused on scheduling alone).
func NewOrchestrator(rpc RPCDispatcher) *Orchestrator {
	return &Orchestrator{
		scenes: make(map[types.SceneId]*Scene),
		rpc:    rpc,
		nowUs:  func() int64 { return time.Now().UnixMicro() },
	}
}

// Spawn registers a new Alive scene under id.
func (o *Orchestrator) Spawn(id types.SceneId, hash types.Hash, sandbox Sandbox) *Scene {
	s := NewScene(id, hash, sandbox)
	o.mu.Lock()
	o.scenes[id] = s
	o.mu.Unlock()
	return s
}

// Scene returns the scene registered under id, if any.
func (o *Orchestrator) Scene(id types.SceneId) (*Scene, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.scenes[id]
	return s, ok
}

// SceneIDs returns the ids of every scene currently registered, live or
// being torn down. Used by host-side code that needs to enumerate scenes
// rather than look one up by id (e.g. the avatar projector's global-scene
// resolution).
func (o *Orchestrator) SceneIDs() []types.SceneId {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ids := make([]types.SceneId, 0, len(o.scenes))
	for id := range o.scenes {
		ids = append(ids, id)
	}
	return ids
}

// KillScene requests a scene's shutdown. Idempotent, per spec §4.C.
func (o *Orchestrator) KillScene(id types.SceneId) {
	o.mu.RLock()
	s, ok := o.scenes[id]
	o.mu.RUnlock()
	if ok {
		s.RequestKill()
	}
}

// RunFrame processes scenes in priority order until the frame budget is
// exhausted, per the scheduling algorithm in spec §4.C.
//
// Lifecycle maintenance (sending the Kill message, watchdog-timing out a
// KillSignal scene, reaping a scene whose sandbox exited) runs every frame
// for every non-Alive scene regardless of the per-frame tick budget: a
// scene being killed must make progress even if it never produces outbound
// traffic for the scheduler to notice.
func (o *Orchestrator) RunFrame(ctx context.Context, host func(types.SceneId) HostComponents) {
	o.dispatchPendingRPCs(ctx)
	o.runLifecycleMaintenance(ctx)

	start := o.nowUs()
	endTime := start + MaxTickUs

	o.mu.RLock()
	eligible := make([]*Scene, 0, len(o.scenes))
	for _, s := range o.scenes {
		if s.State() == Alive {
			eligible = append(eligible, s)
		}
	}
	o.mu.RUnlock()

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].nextTickUs(start) < eligible[j].nextTickUs(start)
	})

	for _, s := range eligible {
		now := o.nowUs()
		if now > endTime {
			break
		}
		if endTime-now < MinPerSceneUs {
			break
		}
		o.processScene(ctx, s, host, now)
	}
}

// runLifecycleMaintenance advances every scene's Alive/ToKill/KillSignal/
// Dead state machine, independent of tick scheduling.
func (o *Orchestrator) runLifecycleMaintenance(ctx context.Context) {
	o.mu.RLock()
	scenes := make([]*Scene, 0, len(o.scenes))
	for _, s := range o.scenes {
		scenes = append(scenes, s)
	}
	o.mu.RUnlock()

	for _, s := range scenes {
		o.advanceLifecycle(ctx, s, s.State())
	}
}

// processScene implements spec §4.C's "per-scene tick" steps 1-5.
func (o *Orchestrator) processScene(ctx context.Context, s *Scene, host func(types.SceneId) HostComponents, nowUs int64) {
	s.mu.Lock()
	batch := s.pendingBatch
	s.pendingBatch = nil
	s.mu.Unlock()

	if batch == nil {
		select {
		case b, ok := <-s.sandbox.Outbound():
			if ok {
				batch = &b
			}
		default:
		}
	}

	if batch != nil {
		for _, op := range batch.DirtyOps {
			s.crdt.Apply(op)
		}
		for _, line := range batch.Logs {
			slog.Info("scene log", "scene_id", s.ID, "hash", s.Hash, "msg", line)
		}
		if len(batch.RPCCalls) > 0 {
			o.mu.Lock()
			o.pendingRPCs = append(o.pendingRPCs, pendingRPC{sceneID: s.ID, calls: batch.RPCCalls})
			o.mu.Unlock()
		}
	}

	var components HostComponents
	if host != nil {
		components = host(s.ID)
	}
	inbound := InboundBatch{Ops: components.Flatten()}

	if err := s.sandbox.SendInbound(ctx, inbound); err != nil {
		s.mu.Lock()
		alreadyToKill := s.state == ToKill || s.state == KillSignal
		s.mu.Unlock()
		if !alreadyToKill {
			slog.Error("scene inbound queue rejected, scene disconnected", "scene_id", s.ID, "err", err)
		}
	}

	s.mu.Lock()
	s.lastTickUs = nowUs
	s.tickNumber++
	if s.tickNumber >= 10 {
		// firstReady is finalized by MarkAssetsLoaded once asset loads
		// complete; this only advances the tick-number half of the gate.
	}
	state := s.state
	s.mu.Unlock()

	o.advanceLifecycle(ctx, s, state)
}

// advanceLifecycle drives the Alive→ToKill→KillSignal→Dead state machine
// described in spec §4.C.
func (o *Orchestrator) advanceLifecycle(ctx context.Context, s *Scene, state LifecycleState) {
	switch state {
	case ToKill:
		if err := s.sandbox.Kill(ctx); err == nil {
			s.mu.Lock()
			s.state = KillSignal
			s.killSignalAt = time.Now()
			s.mu.Unlock()
		}
	case KillSignal:
		select {
		case <-s.sandbox.Done():
			o.reap(s)
		default:
			s.mu.Lock()
			elapsed := time.Since(s.killSignalAt)
			s.mu.Unlock()
			if elapsed > KillWatchdogDeadline {
				s.sandbox.Terminate()
				o.reap(s)
			}
		}
	case Alive:
		select {
		case <-s.sandbox.Done():
			slog.Warn("scene sandbox exited unexpectedly", "scene_id", s.ID, "hash", s.Hash)
			o.reap(s)
		default:
		}
	}
}

// reap marks a scene Dead and removes it from the live table. Per spec
// §4.C, "their root nodes are detached, their trigger areas returned to a
// pool, their VM-handle table entry removed, and their thread joined" —
// the node/trigger-pool/VM-handle cleanup is delegated to whatever
// component owns those resources (avatar/interaction packages); this
// method only owns the orchestrator-level bookkeeping.
func (o *Orchestrator) reap(s *Scene) {
	s.mu.Lock()
	s.state = Dead
	s.mu.Unlock()

	o.mu.Lock()
	delete(o.scenes, s.ID)
	o.mu.Unlock()
}

// RecoverPanic wraps a sandbox-driving goroutine so a panic inside it is
// logged and surfaced as an unexpected exit rather than crashing the
// process, matching the original implementation's JoinHandle panic
// surfacing.
func RecoverPanic(sceneID types.SceneId, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scene sandbox panicked", "scene_id", sceneID, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

func (o *Orchestrator) dispatchPendingRPCs(ctx context.Context) {
	o.mu.Lock()
	pending := o.pendingRPCs
	o.pendingRPCs = nil
	o.mu.Unlock()

	if o.rpc == nil {
		return
	}
	for _, p := range pending {
		o.rpc.Dispatch(ctx, p.sceneID, p.calls)
	}
}

// LiveSceneCount returns the number of scenes currently tracked, including
// those in ToKill/KillSignal.
func (o *Orchestrator) LiveSceneCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.scenes)
}
