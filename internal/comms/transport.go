package comms

import "context"

// DisconnectReason is the normalised form of a transport-level disconnect,
// per spec §4.E ("normalised into {DuplicateIdentity, RoomClosed, Kicked,
// Other}").
type DisconnectReason int

const (
	DisconnectOther DisconnectReason = iota
	DisconnectDuplicateIdentity
	DisconnectRoomClosed
	DisconnectKicked
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectDuplicateIdentity:
		return "duplicate_identity"
	case DisconnectRoomClosed:
		return "room_closed"
	case DisconnectKicked:
		return "kicked"
	default:
		return "other"
	}
}

// NormalizeDisconnect maps a transport-reported close code/reason string
// onto the comms fabric's normalised taxonomy. Unrecognised inputs map to
// DisconnectOther.
func NormalizeDisconnect(code int, reason string) DisconnectReason {
	switch {
	case code == 4001 || reason == "duplicate_identity":
		return DisconnectDuplicateIdentity
	case code == 1001 || reason == "room_closed":
		return DisconnectRoomClosed
	case code == 4003 || reason == "kicked":
		return DisconnectKicked
	default:
		return DisconnectOther
	}
}

// RoomTransport abstracts one room's wire connection, decoupling the comms
// fabric from any particular WebSocket library. Concrete adapters live in
// internal/comms/ws.
type RoomTransport interface {
	// Send writes a single encoded frame. unreliable is a hint the
	// transport may use to pick an unordered/lossy send path.
	Send(ctx context.Context, frame []byte, unreliable bool) error

	// Inbound returns the channel of raw frames received from the room.
	// It is closed when the transport disconnects.
	Inbound() <-chan []byte

	// Disconnected fires at most once with the normalised reason for the
	// transport tearing down, whether initiated locally or remotely.
	Disconnected() <-chan DisconnectReason

	// Close tears down the transport. Safe to call more than once.
	Close() error
}
