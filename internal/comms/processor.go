package comms

import (
	"sync"

	"github.com/openworld-client/realm-runtime/internal/types"
)

// AvatarSink receives decoded movement/position/voice updates so the avatar
// scene projector (spec §4.F) can apply its own supersession rules. comms
// only decodes and routes; it holds no transform state itself.
type AvatarSink interface {
	HandleMovement(alias string, timestampMs int64, payload []byte)
	HandlePosition(alias string, index uint32, payload []byte)
	HandleMovementCompressed(alias string, timestampMs int64, payload []byte)
	HandleVoice(alias string, payload []byte)
	HandleInitVoice(alias string, payload []byte)
	HandleProfileVersion(alias string, version uint64)
	HandleProfileRequest(alias string)
	HandleProfileResponse(alias string, payload []byte)
}

// SceneRouter delivers a Scene packet's payload to the named scene's inbound
// queue (spec §4.C's per-scene inbound, fed via spec §4.E's "route by
// scene_id").
type SceneRouter interface {
	RouteToScene(sceneID types.SceneId, payload []byte)
}

// ChatMessage is one entry appended to the chat queue consumed by the UI.
type ChatMessage struct {
	Sender  string
	Payload []byte
}

// MessageProcessor owns per-peer dispatch state shared by the main and
// scene rooms (spec §4.E: "All inbound peer traffic is funnelled through
// one shared message processor which owns per-peer state"). Grounded on the
// teacher's Connection, which similarly centralises per-peer bookkeeping
// behind a single mutex rather than scattering it across transports.
type MessageProcessor struct {
	avatars AvatarSink
	scenes  SceneRouter

	mu   sync.Mutex
	chat []ChatMessage
}

// NewMessageProcessor constructs a processor. avatars/scenes may be nil in
// tests that only exercise chat routing.
func NewMessageProcessor(avatars AvatarSink, scenes SceneRouter) *MessageProcessor {
	return &MessageProcessor{avatars: avatars, scenes: scenes}
}

// Dispatch decodes-then-routes a single inbound packet, per spec §4.E's
// "Inbound per packet" table. room is "main" or "scene", for diagnostics
// only — routing does not depend on which room a packet arrived on.
func (m *MessageProcessor) Dispatch(room string, p Packet) {
	switch p.Kind {
	case KindChat:
		m.mu.Lock()
		m.chat = append(m.chat, ChatMessage{Sender: p.Sender, Payload: p.Payload})
		m.mu.Unlock()
	case KindMovement:
		if m.avatars != nil {
			m.avatars.HandleMovement(p.Sender, decodeTimestampMs(p.Payload), p.Payload)
		}
	case KindPosition:
		if m.avatars != nil {
			m.avatars.HandlePosition(p.Sender, decodeIndex(p.Payload), p.Payload)
		}
	case KindMovementCompressed:
		if m.avatars != nil {
			m.avatars.HandleMovementCompressed(p.Sender, decodeTimestampMs(p.Payload), p.Payload)
		}
	case KindScene:
		if m.scenes != nil {
			m.scenes.RouteToScene(types.SceneId(p.SceneID), p.Payload)
		}
	case KindProfileVersion:
		if m.avatars != nil {
			m.avatars.HandleProfileVersion(p.Sender, decodeIndexU64(p.Payload))
		}
	case KindProfileRequest:
		if m.avatars != nil {
			m.avatars.HandleProfileRequest(p.Sender)
		}
	case KindProfileResponse:
		if m.avatars != nil {
			m.avatars.HandleProfileResponse(p.Sender, p.Payload)
		}
	case KindVoice:
		if m.avatars != nil {
			m.avatars.HandleVoice(p.Sender, p.Payload)
		}
	case KindInitVoice:
		if m.avatars != nil {
			m.avatars.HandleInitVoice(p.Sender, p.Payload)
		}
	}
}

// DrainChat returns and clears the accumulated chat queue.
func (m *MessageProcessor) DrainChat() []ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.chat
	m.chat = nil
	return out
}

// decodeTimestampMs and decodeIndex/decodeIndexU64 read the fixed-position
// header fields spec §6 prescribes for Movement/Position payloads: an
// 8-byte big-endian timestamp or a 4-byte big-endian index as the first
// field. They return zero on a too-short payload rather than erroring, since
// a malformed transform update should be dropped by the avatar projector's
// own supersession check, not crash the processor.
func decodeTimestampMs(payload []byte) int64 {
	if len(payload) < 8 {
		return 0
	}
	return int64(beUint64(payload))
}

func decodeIndex(payload []byte) uint32 {
	if len(payload) < 4 {
		return 0
	}
	return beUint32(payload)
}

func decodeIndexU64(payload []byte) uint64 {
	if len(payload) < 8 {
		return 0
	}
	return beUint64(payload)
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func beUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
