// Package loading implements the loading session tracker (spec §4.G): the
// phase machine that reports scene-load and floating-island progress for a
// single "teleport into a realm" session, from first position fix to the
// scene being fully warm.
package loading

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openworld-client/realm-runtime/internal/types"
)

// Phase is one stage of a loading session's phase machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseMetadata
	PhaseSpawning
	PhaseLoadingAssets
	PhaseFloatingIslands
	PhaseComplete
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseMetadata:
		return "metadata"
	case PhaseSpawning:
		return "spawning"
	case PhaseLoadingAssets:
		return "loading_assets"
	case PhaseFloatingIslands:
		return "floating_islands"
	case PhaseComplete:
		return "complete"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// EventKind classifies a Tracker event.
type EventKind int

const (
	EventStarted EventKind = iota
	EventCancelled
	EventPhaseChanged
)

// Event is delivered to a Tracker's onEvent callback. SessionID always
// identifies the session the event concerns, which for EventCancelled is
// the session being superseded, not the new one.
type Event struct {
	Kind      EventKind
	SessionID string
	Phase     Phase
}

// sceneProgress is one expected scene's bookkeeping within a session.
type sceneProgress struct {
	fetched        bool
	fetchTimedOut  bool
	spawned        bool
	spawnErr       error
	expectedAssets int
	startedAssets  int
	loadedAssets   int
	ready          bool
	deadline       time.Time
}

func (p *sceneProgress) fetchedOrTimedOut() bool { return p.fetched || p.fetchTimedOut }
func (p *sceneProgress) spawnedOrErrored() bool  { return p.spawned || p.spawnErr != nil }

// session is one in-flight or completed loading session.
type session struct {
	id    string
	phase Phase

	scenes map[types.Hash]*sceneProgress

	islandsExpected int
	islandsCreated  int

	startedAt time.Time
}

// Tracker drives the phase machine described in spec §4.G. It is safe for
// concurrent use; every mutating method recomputes the session's phase
// before returning.
type Tracker struct {
	mu      sync.Mutex
	current *session

	onEvent func(Event)
	now     func() time.Time
}

// NewTracker constructs a Tracker. onEvent may be nil; it is called
// synchronously from within the mutating method that triggered the event,
// never while Tracker's own lock is held.
func NewTracker(onEvent func(Event)) *Tracker {
	return &Tracker{
		onEvent: onEvent,
		now:     time.Now,
	}
}

// StartSession begins tracking a new session over expectedScenes, cancelling
// any in-flight session first (spec §4.G "Cancellation": a cancelled event
// for the old session is emitted before the started event for the new one).
// perSceneDeadline is the duration after which an unfetched/unspawned scene
// is marked ready-by-timeout rather than failed.
func (t *Tracker) StartSession(expectedScenes []types.Hash, islandsExpected int, perSceneDeadline time.Duration) string {
	t.mu.Lock()

	var cancelledID string
	if t.current != nil && t.current.phase != PhaseComplete && t.current.phase != PhaseCancelled {
		cancelledID = t.current.id
		t.current.phase = PhaseCancelled
	}

	id := uuid.New().String()
	now := t.now()
	scenes := make(map[types.Hash]*sceneProgress, len(expectedScenes))
	for _, h := range expectedScenes {
		scenes[h] = &sceneProgress{deadline: now.Add(perSceneDeadline)}
	}

	phase := PhaseMetadata
	if len(expectedScenes) == 0 {
		phase = PhaseSpawning
	}

	t.current = &session{
		id:              id,
		phase:           phase,
		scenes:          scenes,
		islandsExpected: islandsExpected,
		startedAt:       now,
	}
	t.mu.Unlock()

	if cancelledID != "" {
		t.emit(Event{Kind: EventCancelled, SessionID: cancelledID})
	}
	t.emit(Event{Kind: EventStarted, SessionID: id, Phase: phase})
	return id
}

// Cancel aborts the current session, if any and not already terminal.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	if t.current == nil || t.current.phase == PhaseComplete || t.current.phase == PhaseCancelled {
		t.mu.Unlock()
		return
	}
	id := t.current.id
	t.current.phase = PhaseCancelled
	t.mu.Unlock()

	t.emit(Event{Kind: EventCancelled, SessionID: id})
}

// SessionID returns the current session's id, or "" if none is active.
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return ""
	}
	return t.current.id
}

// MarkFetched records that hash's scene.json manifest was fetched
// successfully.
func (t *Tracker) MarkFetched(hash types.Hash) {
	t.mutate(func(s *session) {
		if p, ok := s.scenes[hash]; ok {
			p.fetched = true
		}
	})
}

// MarkSpawned records that hash's scene sandbox has been spawned.
func (t *Tracker) MarkSpawned(hash types.Hash) {
	t.mutate(func(s *session) {
		if p, ok := s.scenes[hash]; ok {
			p.spawned = true
		}
	})
}

// MarkSpawnError records that hash's scene failed to spawn. A spawn error
// counts toward the "fetched scenes have all been spawned or errored" gate
// the same as a successful spawn, per spec §4.G.
func (t *Tracker) MarkSpawnError(hash types.Hash, err error) {
	t.mutate(func(s *session) {
		if p, ok := s.scenes[hash]; ok {
			p.spawnErr = err
		}
	})
}

// MarkAssetsExpected records the number of asset loads hash's scene has
// declared.
func (t *Tracker) MarkAssetsExpected(hash types.Hash, n int) {
	t.mutate(func(s *session) {
		if p, ok := s.scenes[hash]; ok {
			p.expectedAssets = n
		}
	})
}

// MarkAssetStarted records one asset load beginning for hash's scene.
func (t *Tracker) MarkAssetStarted(hash types.Hash) {
	t.mutate(func(s *session) {
		if p, ok := s.scenes[hash]; ok {
			p.startedAssets++
		}
	})
}

// MarkAssetLoaded records one asset load completing for hash's scene.
func (t *Tracker) MarkAssetLoaded(hash types.Hash) {
	t.mutate(func(s *session) {
		if p, ok := s.scenes[hash]; ok {
			p.loadedAssets++
		}
	})
}

// MarkSceneReady records that hash's scene reached the first-tick-ready gate
// (tick_number >= 10 with zero in-flight asset loads), per the scene
// runtime orchestrator's [scene.Scene.IsFirstTickReady].
func (t *Tracker) MarkSceneReady(hash types.Hash) {
	t.mutate(func(s *session) {
		if p, ok := s.scenes[hash]; ok {
			p.ready = true
		}
	})
}

// MarkIslandCreated records one floating island having finished generation.
func (t *Tracker) MarkIslandCreated() {
	t.mutate(func(s *session) {
		s.islandsCreated++
	})
}

// CheckDeadlines marks any scene past its per-scene deadline as
// ready-by-timeout, logging a warning (spec §4.G "Timeouts": "on expiry the
// scene is marked ready-by-timeout, not errored"). Callers invoke this
// periodically, e.g. once per orchestrator frame.
func (t *Tracker) CheckDeadlines() {
	t.mutate(func(s *session) {
		now := t.now()
		for hash, p := range s.scenes {
			if p.ready || p.fetchedOrTimedOut() && p.spawnedOrErrored() {
				continue
			}
			if now.Before(p.deadline) {
				continue
			}
			if !p.fetched {
				p.fetchTimedOut = true
			}
			p.ready = true
			slog.Warn("loading session: scene deadline exceeded, marking ready-by-timeout",
				"session_id", s.id, "scene_hash", string(hash))
		}
	})
}

// mutate runs fn against the current session under the lock, then
// recomputes its phase and emits a PhaseChanged event if it advanced. No-op
// if there is no current session or it is already terminal.
func (t *Tracker) mutate(fn func(s *session)) {
	t.mu.Lock()
	s := t.current
	if s == nil || s.phase == PhaseComplete || s.phase == PhaseCancelled {
		t.mu.Unlock()
		return
	}
	fn(s)
	before := s.phase
	t.advancePhase(s)
	after := s.phase
	id := s.id
	t.mu.Unlock()

	if after != before {
		t.emit(Event{Kind: EventPhaseChanged, SessionID: id, Phase: after})
	}
}

// advancePhase applies the transitions in spec §4.G. Callers must hold
// t.mu.
func (t *Tracker) advancePhase(s *session) {
	for {
		switch s.phase {
		case PhaseMetadata:
			if !allScenes(s, (*sceneProgress).fetchedOrTimedOut) {
				return
			}
			s.phase = PhaseSpawning
		case PhaseSpawning:
			if !allFetchedScenesSpawned(s) {
				return
			}
			s.phase = PhaseLoadingAssets
		case PhaseLoadingAssets:
			if !allScenes(s, func(p *sceneProgress) bool { return p.ready }) {
				return
			}
			if s.islandsExpected > 0 && s.islandsCreated < s.islandsExpected {
				s.phase = PhaseFloatingIslands
				return
			}
			s.phase = PhaseComplete
		case PhaseFloatingIslands:
			if s.islandsCreated < s.islandsExpected {
				return
			}
			s.phase = PhaseComplete
		default:
			return
		}
	}
}

func allScenes(s *session, pred func(*sceneProgress) bool) bool {
	for _, p := range s.scenes {
		if !pred(p) {
			return false
		}
	}
	return true
}

func allFetchedScenesSpawned(s *session) bool {
	for _, p := range s.scenes {
		if p.fetched && !p.spawnedOrErrored() {
			return false
		}
	}
	return true
}

func (t *Tracker) emit(ev Event) {
	if t.onEvent != nil {
		t.onEvent(ev)
	}
}

// Progress returns the composite progress of the current session as a
// 0..100 float plus its (ready, total) scene counts. Per spec §4.G the
// value may dip briefly across a phase boundary; this is by design, not a
// bug in the caller.
func (t *Tracker) Progress() (float64, int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return 0, 0, 0
	}
	s := t.current

	total := len(s.scenes)
	ready := 0
	for _, p := range s.scenes {
		if p.ready {
			ready++
		}
	}

	if s.phase == PhaseComplete {
		return 100, ready, total
	}
	if s.phase == PhaseCancelled {
		return progressFraction(s) * 100, ready, total
	}
	return progressFraction(s) * 100, ready, total
}

// progressFraction computes the phase-weighted composite described in spec
// §4.G: four sub-progresses (metadata fetch, spawn, asset/tick readiness,
// floating islands) blended by cumulative phase weight.
func progressFraction(s *session) float64 {
	mw, sw, aw, iw := 0.30, 0.30, 0.40, 0.0
	if s.islandsExpected > 0 {
		mw, sw, aw, iw = 0.25, 0.25, 0.35, 0.15
	}

	total := len(s.scenes)
	metadataFrac := fullyDone(s, total, (*sceneProgress).fetchedOrTimedOut)

	fetched := 0
	spawnedDone := 0
	for _, p := range s.scenes {
		if p.fetched {
			fetched++
			if p.spawnedOrErrored() {
				spawnedDone++
			}
		}
	}
	spawnFrac := 1.0
	if fetched > 0 {
		spawnFrac = float64(spawnedDone) / float64(fetched)
	}

	readyCount := 0
	for _, p := range s.scenes {
		if p.ready {
			readyCount++
		}
	}
	assetFrac := 1.0
	if total > 0 {
		assetFrac = float64(readyCount) / float64(total)
	}

	islandFrac := 1.0
	if s.islandsExpected > 0 {
		islandFrac = float64(s.islandsCreated) / float64(s.islandsExpected)
	}

	switch s.phase {
	case PhaseIdle, PhaseMetadata:
		return mw * metadataFrac
	case PhaseSpawning:
		return mw + sw*spawnFrac
	case PhaseLoadingAssets:
		return mw + sw + aw*assetFrac
	case PhaseFloatingIslands:
		return mw + sw + aw + iw*islandFrac
	default:
		return mw + sw + aw + iw
	}
}

func fullyDone(s *session, total int, pred func(*sceneProgress) bool) float64 {
	if total == 0 {
		return 1
	}
	done := 0
	for _, p := range s.scenes {
		if pred(p) {
			done++
		}
	}
	return float64(done) / float64(total)
}

// Phase returns the current session's phase, or PhaseIdle if none is
// active.
func (t *Tracker) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return PhaseIdle
	}
	return t.current.phase
}

// StartedAt returns the current session's start time. Zero if none is
// active.
func (t *Tracker) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return time.Time{}
	}
	return t.current.startedAt
}
