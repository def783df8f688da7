// Package mock provides in-memory mock implementations of [scene.Sandbox]
// and [scene.RPCDispatcher] for use in unit tests.
package mock

import (
	"context"
	"sync"

	"github.com/openworld-client/realm-runtime/internal/scene"
	"github.com/openworld-client/realm-runtime/internal/types"
)

var _ scene.Sandbox = (*Sandbox)(nil)

// SendInboundCall records the arguments of a single SendInbound call.
type SendInboundCall struct {
	Batch scene.InboundBatch
}

// Sandbox is a mock scene.Sandbox, fully controlled by the test: it never
// exits or kills on its own. Call CloseDone to simulate the sandbox thread
// exiting.
type Sandbox struct {
	mu sync.Mutex

	outbound chan scene.OutboundBatch
	done     chan struct{}

	// SendInboundError is returned by SendInbound.
	SendInboundError error
	// KillError is returned by Kill.
	KillError error

	SendInboundCalls []SendInboundCall
	KillCalls        int
	TerminateCalls   int
}

// NewSandbox returns a Sandbox with a buffered (capacity 16) outbound channel and an
// open Done channel.
func NewSandbox() *Sandbox {
	return &Sandbox{
		outbound: make(chan scene.OutboundBatch, 16),
		done:     make(chan struct{}),
	}
}

// Outbound returns the channel tests push OutboundBatch values into.
func (s *Sandbox) Outbound() <-chan scene.OutboundBatch { return s.outbound }

// PushOutbound enqueues a batch for the orchestrator to drain.
func (s *Sandbox) PushOutbound(b scene.OutboundBatch) { s.outbound <- b }

// SendInbound records the call and returns SendInboundError.
func (s *Sandbox) SendInbound(_ context.Context, batch scene.InboundBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendInboundCalls = append(s.SendInboundCalls, SendInboundCall{Batch: batch})
	return s.SendInboundError
}

// Kill records the call and returns KillError.
func (s *Sandbox) Kill(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.KillCalls++
	return s.KillError
}

// Terminate records the call.
func (s *Sandbox) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TerminateCalls++
}

// Done returns the channel CloseDone closes.
func (s *Sandbox) Done() <-chan struct{} { return s.done }

// CloseDone simulates the sandbox's event loop exiting. Safe to call once.
func (s *Sandbox) CloseDone() { close(s.done) }

var _ scene.RPCDispatcher = (*RPCDispatcher)(nil)

// DispatchCall records the arguments of a single Dispatch call.
type DispatchCall struct {
	SceneID types.SceneId
	Calls   []scene.RPCCall
}

// RPCDispatcher is a mock scene.RPCDispatcher.
type RPCDispatcher struct {
	mu    sync.Mutex
	Calls []DispatchCall
}

// Dispatch records the call.
func (d *RPCDispatcher) Dispatch(_ context.Context, sceneID types.SceneId, calls []scene.RPCCall) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, DispatchCall{SceneID: sceneID, Calls: calls})
}
