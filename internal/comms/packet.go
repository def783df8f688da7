// Package comms implements the comms fabric (spec §4.E): the main-room and
// scene-room transports, the shared message processor that owns per-peer
// state, and the gatekeeper-backed scene-room resolution flow.
package comms

import (
	"encoding/binary"
	"fmt"
)

// PacketKind identifies the payload carried by an rfc4 packet.
type PacketKind uint8

const (
	KindChat PacketKind = iota + 1
	KindMovement
	KindPosition
	KindMovementCompressed
	KindScene
	KindProfileVersion
	KindProfileRequest
	KindProfileResponse
	KindVoice
	KindInitVoice
)

func (k PacketKind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindMovement:
		return "movement"
	case KindPosition:
		return "position"
	case KindMovementCompressed:
		return "movement_compressed"
	case KindScene:
		return "scene"
	case KindProfileVersion:
		return "profile_version"
	case KindProfileRequest:
		return "profile_request"
	case KindProfileResponse:
		return "profile_response"
	case KindVoice:
		return "voice"
	case KindInitVoice:
		return "init_voice"
	default:
		return "unknown"
	}
}

// RecipientKind selects who an outbound packet is addressed to.
type RecipientKind uint8

const (
	RecipientAll RecipientKind = iota
	RecipientPeer
	RecipientAuthServer
)

// Recipient is the send_rfc4 destination (spec §4.E).
type Recipient struct {
	Kind RecipientKind
	Addr string // only meaningful when Kind == RecipientPeer
}

// All addresses every peer in the room.
var All = Recipient{Kind: RecipientAll}

// AuthServer addresses the comms server itself.
var AuthServer = Recipient{Kind: RecipientAuthServer}

// ToPeer addresses a single peer by address.
func ToPeer(addr string) Recipient { return Recipient{Kind: RecipientPeer, Addr: addr} }

// Packet is one rfc4 message, decoded or ready to encode.
type Packet struct {
	Kind       PacketKind
	SceneID    uint32 // only meaningful when Kind == KindScene
	Sender     string // peer address; empty for outbound packets not yet sent
	Payload    []byte
	Unreliable bool
}

// ProtocolVersion is the rfc4 wire format version this build encodes and
// accepts. internal/config validates a realm's configured comms protocol
// version against it at startup.
const ProtocolVersion = 3

// header: [u8 version | u8 kind | u32 sender_len | sender bytes | u32 scene_id | u32 payload_len | payload]
const headerFixedSize = 1 + 1 + 4 + 4 + 4

// Encode serialises p into protocol v3's length-prefixed wire form.
func Encode(p Packet) []byte {
	senderLen := len(p.Sender)
	buf := make([]byte, headerFixedSize+senderLen+len(p.Payload))
	buf[0] = ProtocolVersion
	buf[1] = byte(p.Kind)
	binary.BigEndian.PutUint32(buf[2:6], uint32(senderLen))
	off := 6
	copy(buf[off:off+senderLen], p.Sender)
	off += senderLen
	binary.BigEndian.PutUint32(buf[off:off+4], p.SceneID)
	off += 4
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(p.Payload)))
	off += 4
	copy(buf[off:], p.Payload)
	return buf
}

// Decode parses a single frame produced by Encode.
func Decode(frame []byte) (Packet, error) {
	if len(frame) < 2+4 {
		return Packet{}, fmt.Errorf("comms: frame too short: %d bytes", len(frame))
	}
	if frame[0] != ProtocolVersion {
		return Packet{}, fmt.Errorf("comms: unsupported protocol version %d", frame[0])
	}
	kind := PacketKind(frame[1])
	senderLen := binary.BigEndian.Uint32(frame[2:6])
	off := 6
	if uint32(len(frame)-off) < senderLen+8 {
		return Packet{}, fmt.Errorf("comms: truncated frame")
	}
	sender := string(frame[off : off+int(senderLen)])
	off += int(senderLen)
	sceneID := binary.BigEndian.Uint32(frame[off : off+4])
	off += 4
	payloadLen := binary.BigEndian.Uint32(frame[off : off+4])
	off += 4
	if uint32(len(frame)-off) < payloadLen {
		return Packet{}, fmt.Errorf("comms: truncated payload")
	}
	payload := frame[off : off+int(payloadLen)]
	return Packet{Kind: kind, SceneID: sceneID, Sender: sender, Payload: payload}, nil
}
