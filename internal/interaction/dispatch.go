package interaction

import (
	"sync"

	"github.com/openworld-client/realm-runtime/internal/types"
)

// InputButton is one of the pointer input actions a PointerEvents component
// can register interest in.
type InputButton int

const (
	ButtonPrimary InputButton = iota
	ButtonSecondary
	ButtonPointer
)

// PointerEventKind is one of the four events spec §4.H computes.
type PointerEventKind int

const (
	HoverEnter PointerEventKind = iota
	HoverLeave
	Down
	Up
)

// Event is a dispatched pointer event for one scene entity.
type Event struct {
	Kind    PointerEventKind
	SceneID types.SceneId
	Entity  types.SceneEntityId
}

// PointerEventsLookup resolves which buttons a scene entity's PointerEvents
// component has registered for, so Dispatcher only emits Down/Up for
// buttons the entity actually cares about. The decoded component lives on
// the host side; this package treats it as opaque registration data.
type PointerEventsLookup interface {
	RegisteredButtons(sceneID types.SceneId, entity types.SceneEntityId) []InputButton
}

// Dispatcher tracks the previous frame's resolved hit and pressed-button
// set to compute this frame's HoverEnter/HoverLeave/Down/Up transitions
// (spec §4.H "Event dispatch").
type Dispatcher struct {
	mu      sync.Mutex
	lastHit Hit
	lookup  PointerEventsLookup
}

// NewDispatcher constructs a Dispatcher. lookup may be nil, in which case
// every button is treated as registered (useful for tests that don't care
// about PointerEvents filtering).
func NewDispatcher(lookup PointerEventsLookup) *Dispatcher {
	return &Dispatcher{lookup: lookup, lastHit: Hit{Kind: HitNone}}
}

// ProcessFrame computes this frame's events from the resolved hit and the
// buttons that transitioned to pressed/released since last frame. Only
// scenes present in activeScenes receive events for their entities (spec
// §4.H: "Only scenes active in the current frame receive events"). Avatar
// hits never produce Down/Up — PointerEvents is a scene-entity component —
// but still participate in hover-transition bookkeeping so a subsequent
// scene-entity hit correctly reports HoverEnter.
func (d *Dispatcher) ProcessFrame(hit Hit, justPressed, justReleased []InputButton, activeScenes map[types.SceneId]bool) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	var events []Event

	if !hit.sameTarget(d.lastHit) {
		if d.lastHit.Kind == HitSceneEntity && activeScenes[d.lastHit.SceneID] {
			events = append(events, Event{Kind: HoverLeave, SceneID: d.lastHit.SceneID, Entity: d.lastHit.Entity})
		}
		if hit.Kind == HitSceneEntity && activeScenes[hit.SceneID] {
			events = append(events, Event{Kind: HoverEnter, SceneID: hit.SceneID, Entity: hit.Entity})
		}
	}
	d.lastHit = hit

	if hit.Kind != HitSceneEntity || !activeScenes[hit.SceneID] {
		return events
	}

	registered := d.registeredSet(hit.SceneID, hit.Entity)
	for _, b := range justPressed {
		if registered[b] {
			events = append(events, Event{Kind: Down, SceneID: hit.SceneID, Entity: hit.Entity})
		}
	}
	for _, b := range justReleased {
		if registered[b] {
			events = append(events, Event{Kind: Up, SceneID: hit.SceneID, Entity: hit.Entity})
		}
	}
	return events
}

func (d *Dispatcher) registeredSet(sceneID types.SceneId, entity types.SceneEntityId) map[InputButton]bool {
	if d.lookup == nil {
		return map[InputButton]bool{ButtonPrimary: true, ButtonSecondary: true, ButtonPointer: true}
	}
	set := make(map[InputButton]bool)
	for _, b := range d.lookup.RegisteredButtons(sceneID, entity) {
		set[b] = true
	}
	return set
}
