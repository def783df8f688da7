// Package scene implements the scene runtime orchestrator (spec §4.C): the
// per-frame scheduler that drains each live scene's CRDT outbound batch,
// applies it to the authoritative host-side state, and dispatches a fresh
// inbound batch, while enforcing the Alive/ToKill/KillSignal/Dead lifecycle
// and its watchdog-enforced forced-termination deadline.
package scene

import (
	"context"
	"time"

	"github.com/openworld-client/realm-runtime/internal/crdt"
)

// RPCCall is one host-bound call a sandbox emitted during its tick (change
// realm, move player, teleport, take snapshot, ...). Dispatch happens in the
// orchestrator frame after the tick that produced it (spec §4.C). Params
// carries a JSON-encoded mcpsdk.CallToolParams envelope; see ToolDispatcher.
type RPCCall struct {
	Method string
	Params []byte
}

// MemoryStats mirrors the sandbox runtime's self-reported memory usage
// (deno_memory_stats in spec §4.C). It is observable but never triggers an
// automatic kill — policy is external.
type MemoryStats struct {
	HeapUsedBytes  int64
	HeapTotalBytes int64
	ExternalBytes  int64
}

// OutboundBatch is what a sandbox hands back to the orchestrator on drain:
// dirty CRDT operations, log lines, RPC calls, and memory stats (spec §4.C
// step 1).
type OutboundBatch struct {
	DirtyOps    []crdt.Operation
	Logs        []string
	RPCCalls    []RPCCall
	MemoryStats MemoryStats
}

// InboundBatch is what the orchestrator sends a sandbox each tick: the
// encoded host-origin CRDT updates (player transform, camera, UI canvas
// info, avatar-scene updates, trigger-area transitions — spec §4.C step 3).
type InboundBatch struct {
	Ops []crdt.Operation
}

// Sandbox is the per-scene runtime boundary. Each live scene owns exactly
// one Sandbox, running its own event loop on a dedicated goroutine — this
// module's analogue of spec §5's "one OS thread per live scene", since the
// scripting VM itself (the sandbox's actual execution engine) is out of
// this module's scope.
//
// Implementations must make Outbound's batches available without blocking
// the orchestrator's frame loop: SendInbound should buffer internally and
// Outbound should be read with a non-blocking select when the frame budget
// is tight.
type Sandbox interface {
	// Outbound returns the channel the orchestrator drains each tick.
	Outbound() <-chan OutboundBatch

	// SendInbound delivers a batch to the sandbox. It returns an error if
	// the sandbox has disconnected (spec §4.C step 4: "If the queue rejects
	// ... surface a RemoveGodotScene error").
	SendInbound(ctx context.Context, batch InboundBatch) error

	// Kill requests a graceful shutdown by sending a Kill message into the
	// sandbox's event loop. It does not block until the sandbox exits.
	Kill(ctx context.Context) error

	// Terminate forcibly stops the sandbox's execution context, per spec
	// §4.C's watchdog: "terminate execution" must unblock any native
	// syscall the sandbox thread was in.
	Terminate()

	// Done is closed when the sandbox's event loop has exited, whether
	// gracefully or via Terminate.
	Done() <-chan struct{}
}

// KillWatchdogDeadline is the spec §4.C watchdog window: KillSignal → Dead
// within 10s, or the VM is force-terminated. A package variable rather than
// a constant so tests can shrink it instead of sleeping real wall time.
var KillWatchdogDeadline = 10 * time.Second
