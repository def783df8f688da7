package avatar

import "sync"

// transformTolerance is the equal-or-older tolerance window for Movement
// timestamps (spec §4.F: "equal-or-older (within 1 ms tolerance) are
// dropped").
const transformTolerance = 1

// supersessionState tracks, per alias, which transform update wins (spec
// §4.F's "Transform supersession rules"):
//
//   - once any Movement message has been seen for an alias, Position
//     messages for that alias are dropped forever.
//   - among Movement messages, a strictly greater timestamp (beyond the 1ms
//     tolerance) wins.
//   - among Position messages (before any Movement), a strictly greater
//     index wins.
type supersessionState struct {
	mu sync.Mutex

	movementSeen       map[string]bool
	lastMovementTsMs   map[string]int64
	lastPositionIndex  map[string]uint32
	lastEmoteIncrement map[string]uint64
}

func newSupersessionState() *supersessionState {
	return &supersessionState{
		movementSeen:       make(map[string]bool),
		lastMovementTsMs:   make(map[string]int64),
		lastPositionIndex:  make(map[string]uint32),
		lastEmoteIncrement: make(map[string]uint64),
	}
}

// acceptMovement reports whether a Movement update at timestampMs should be
// applied, and records it if so.
func (s *supersessionState) acceptMovement(alias string, timestampMs int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.movementSeen[alias] = true
	last, ok := s.lastMovementTsMs[alias]
	if ok && timestampMs <= last+transformTolerance {
		return false
	}
	s.lastMovementTsMs[alias] = timestampMs
	return true
}

// acceptPosition reports whether a Position update at index should be
// applied: false once any Movement has been seen for this alias, or if
// index does not strictly increase.
func (s *supersessionState) acceptPosition(alias string, index uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.movementSeen[alias] {
		return false
	}
	last, ok := s.lastPositionIndex[alias]
	if ok && index <= last {
		return false
	}
	s.lastPositionIndex[alias] = index
	return true
}

// acceptEmote reports whether an emote at incrementalID should play (spec
// §4.F: "strictly increasing incremental_id required — stale emotes
// dropped").
func (s *supersessionState) acceptEmote(alias string, incrementalID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.lastEmoteIncrement[alias]
	if ok && incrementalID <= last {
		return false
	}
	s.lastEmoteIncrement[alias] = incrementalID
	return true
}

// forget drops all supersession bookkeeping for alias, called on
// RemoveAvatar so a later re-add (new alias reuse is rare but not
// impossible) starts clean.
func (s *supersessionState) forget(alias string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.movementSeen, alias)
	delete(s.lastMovementTsMs, alias)
	delete(s.lastPositionIndex, alias)
	delete(s.lastEmoteIncrement, alias)
}
