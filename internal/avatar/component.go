package avatar

import "github.com/openworld-client/realm-runtime/internal/crdt"

// Component ids the projector writes, per spec §4.F. Like the rest of the
// CRDT component space (crdt.ComponentId's doc comment), the scripting
// ecosystem's component numbering is authoritative; these are this module's
// local, stable aliases for the handful the projector touches.
const (
	ComponentTransform          crdt.ComponentId = 1
	ComponentInternalPlayerData crdt.ComponentId = 2
	ComponentAvatarBase         crdt.ComponentId = 3
	ComponentAvatarEquippedData crdt.ComponentId = 4
	ComponentPlayerIdentityData crdt.ComponentId = 5
	ComponentEmoteCommand       crdt.ComponentId = 6
)
