package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openworld-client/realm-runtime/internal/comms"
	"github.com/openworld-client/realm-runtime/internal/loading"
	"github.com/openworld-client/realm-runtime/internal/realm"
	"github.com/openworld-client/realm-runtime/internal/types"
)

// RealmSessionInfo holds metadata about the currently connected realm.
type RealmSessionInfo struct {
	// RealmName is a human-readable identifier for the realm the player is
	// currently in.
	RealmName string

	// SessionID is the loading tracker session id spawned when the realm
	// was entered.
	SessionID string

	// StartedAt is when the realm was entered.
	StartedAt time.Time

	// MainRoomURL is the comms main room the player is connected to.
	MainRoomURL string
}

// RealmSession tracks the single active realm a player is connected to at
// any one time (spec §4.E/§4.G: comms main-room membership and the
// loading-session it started are one-to-one with "being in a realm").
//
// It is the boundary between an RPC-driven or config-driven realm switch
// and the subsystems that actually need to know the realm changed: the
// comms manager and the loading tracker. App.performRealmSwitch rebuilds
// the scene entity coordinator itself; RealmSession covers the rest.
//
// All exported methods are safe for concurrent use.
type RealmSession struct {
	mu     sync.Mutex
	active bool
	info   RealmSessionInfo

	comms       *comms.Manager
	tracker     *loading.Tracker
	coordinator *realm.Coordinator
}

// NewRealmSession constructs a RealmSession wired to the given subsystems.
func NewRealmSession(commsManager *comms.Manager, tracker *loading.Tracker, coordinator *realm.Coordinator) *RealmSession {
	return &RealmSession{
		comms:       commsManager,
		tracker:     tracker,
		coordinator: coordinator,
	}
}

// Connect joins realmName's main comms room, starts a fresh loading
// session against the coordinator's currently loadable set, and records
// the player's spawn position. Returns an error if a realm session is
// already active — call Disconnect first.
func (rs *RealmSession) Connect(ctx context.Context, realmName, mainRoomURL string, spawnPos types.Coord) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.active {
		return fmt.Errorf("realm session: already connected to %q", rs.info.RealmName)
	}

	if err := rs.comms.ConnectMain(ctx, mainRoomURL); err != nil {
		return fmt.Errorf("realm session: connect main room: %w", err)
	}

	if err := rs.coordinator.SetPosition(ctx, spawnPos); err != nil {
		slog.Warn("realm session: initial position refresh failed", "realm", realmName, "err", err)
	}
	loadable, _, _, _ := rs.coordinator.Snapshot()
	sessionID := rs.tracker.StartSession(loadable, 0, defaultSceneLoadDeadline)

	rs.active = true
	rs.info = RealmSessionInfo{
		RealmName:   realmName,
		SessionID:   sessionID,
		StartedAt:   time.Now().UTC(),
		MainRoomURL: mainRoomURL,
	}

	slog.Info("realm session connected",
		"realm", realmName,
		"session_id", sessionID,
		"main_room", mainRoomURL,
		"scenes_expected", len(loadable),
	)
	return nil
}

// Disconnect cancels the active loading session and leaves every comms
// room. Returns an error if no realm session is active.
func (rs *RealmSession) Disconnect(ctx context.Context) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.active {
		return fmt.Errorf("realm session: no active session to disconnect")
	}

	realmName := rs.info.RealmName
	rs.tracker.Cancel()
	rs.comms.DisconnectAll()

	rs.active = false
	rs.info = RealmSessionInfo{}

	slog.Info("realm session disconnected", "realm", realmName)
	_ = ctx // disconnect is synchronous today; ctx reserved for a future graceful-leave handshake
	return nil
}

// SetCoordinator swaps the scene entity coordinator a future Connect call
// will drive. Used by App.performRealmSwitch when the coordinator itself is
// rebuilt against a new content base URL.
func (rs *RealmSession) SetCoordinator(c *realm.Coordinator) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.coordinator = c
}

// IsActive reports whether a realm session is currently connected.
func (rs *RealmSession) IsActive() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.active
}

// Info returns metadata about the active realm session, or the zero value
// if none is active.
func (rs *RealmSession) Info() RealmSessionInfo {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.info
}
