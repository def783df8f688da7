package comms

import (
	"context"
	"log/slog"
	"sync"
)

// Room owns a single RoomTransport and pumps its inbound frames to a shared
// processor, mirroring the teacher's per-channel Connection: a context-
// cancelled goroutine loop, an idempotent Close, and a caller-registered
// lifecycle callback.
type Room struct {
	name      string // "main" or "scene"
	transport RoomTransport
	processor *MessageProcessor

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool

	onDisconnect func(DisconnectReason)
}

// NewRoom starts pumping transport's inbound frames into processor under
// name ("main" or "scene"), tagging every decoded packet's room of origin.
func NewRoom(name string, transport RoomTransport, processor *MessageProcessor) *Room {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		name:      name,
		transport: transport,
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
	go r.pump()
	return r
}

// OnDisconnect registers a callback invoked once when the transport
// disconnects, with the normalised reason.
func (r *Room) OnDisconnect(cb func(DisconnectReason)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDisconnect = cb
}

// Send encodes and writes p to the room transport.
func (r *Room) Send(ctx context.Context, p Packet) error {
	return r.transport.Send(ctx, Encode(p), p.Unreliable)
}

func (r *Room) pump() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case reason, ok := <-r.transport.Disconnected():
			if !ok {
				return
			}
			r.mu.Lock()
			cb := r.onDisconnect
			r.mu.Unlock()
			if cb != nil {
				cb(reason)
			}
			return
		case frame, ok := <-r.transport.Inbound():
			if !ok {
				return
			}
			p, err := Decode(frame)
			if err != nil {
				slog.Warn("comms: dropping malformed frame", "room", r.name, "err", err)
				continue
			}
			r.processor.Dispatch(r.name, p)
		}
	}
}

// Close tears down the room's transport and stops its pump goroutine. Safe
// to call more than once.
func (r *Room) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	return r.transport.Close()
}
