package comms

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// RoomDialer opens a RoomTransport to a room URL. Concrete implementations
// live in internal/comms/ws, over coder/websocket or gorilla/websocket.
type RoomDialer interface {
	Dial(ctx context.Context, roomURL string) (RoomTransport, error)
}

// Manager holds at most one main room and at most one scene room at a time
// (spec §4.E's top-level contract) and implements send_rfc4's dual-room
// broadcast.
type Manager struct {
	dialer    RoomDialer
	processor *MessageProcessor
	gate      *Gatekeeper

	mu        sync.RWMutex
	mainRoom  *Room
	sceneRoom *Room
}

// NewManager constructs a Manager. gate may be nil if scene-room resolution
// is driven externally (e.g. in tests).
func NewManager(dialer RoomDialer, processor *MessageProcessor, gate *Gatekeeper) *Manager {
	return &Manager{dialer: dialer, processor: processor, gate: gate}
}

// ConnectMain dials and installs the main room, replacing any existing one.
func (m *Manager) ConnectMain(ctx context.Context, roomURL string) error {
	transport, err := m.dialer.Dial(ctx, roomURL)
	if err != nil {
		return fmt.Errorf("comms: dial main room: %w", err)
	}
	room := NewRoom("main", transport, m.processor)

	m.mu.Lock()
	old := m.mainRoom
	m.mainRoom = room
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

// SendRFC4 encodes p and publishes it to every currently connected room
// (spec §4.E: "Movement, position, chat, scene messages are broadcast to
// BOTH main and scene rooms when both are present"). For a RecipientPeer
// the peer address is written into the frame's Sender field; other
// recipient kinds are not encoded in the frame. comms itself always writes
// to every local room transport it holds open.
func (m *Manager) SendRFC4(ctx context.Context, payload []byte, kind PacketKind, unreliable bool, recipient Recipient) error {
	p := Packet{Kind: kind, Payload: payload, Unreliable: unreliable}
	if recipient.Kind == RecipientPeer {
		p.Sender = recipient.Addr
	}

	m.mu.RLock()
	main, scene := m.mainRoom, m.sceneRoom
	m.mu.RUnlock()

	var firstErr error
	if main != nil {
		if err := main.Send(ctx, p); err != nil {
			firstErr = fmt.Errorf("comms: send to main room: %w", err)
		}
	}
	if scene != nil {
		if err := scene.Send(ctx, p); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("comms: send to scene room: %w", err)
		}
	}
	return firstErr
}

// ResolveSceneRoom implements spec §4.E's scene-room resolution: ask the
// gatekeeper for the URL backing sceneHash's room, tear down any previous
// scene room, and connect the new one, reusing the shared message processor
// so avatar state continues without a gap.
func (m *Manager) ResolveSceneRoom(ctx context.Context, sceneHash string, position [2]int32) error {
	if m.gate == nil {
		return fmt.Errorf("comms: no gatekeeper configured")
	}
	roomURL, err := m.gate.SceneAdapter(ctx, sceneHash, position)
	if err != nil {
		return fmt.Errorf("comms: resolve scene room: %w", err)
	}

	transport, err := m.dialer.Dial(ctx, roomURL)
	if err != nil {
		return fmt.Errorf("comms: dial scene room: %w", err)
	}
	room := NewRoom("scene", transport, m.processor)

	m.mu.Lock()
	old := m.sceneRoom
	m.sceneRoom = room
	m.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			slog.Warn("comms: error closing previous scene room", "err", err)
		}
	}
	return nil
}

// DisconnectAll tears down both rooms. Safe to call with either or both
// unset.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	main, scene := m.mainRoom, m.sceneRoom
	m.mainRoom, m.sceneRoom = nil, nil
	m.mu.Unlock()

	if main != nil {
		_ = main.Close()
	}
	if scene != nil {
		_ = scene.Close()
	}
}
