package comms

import (
	"context"

	"github.com/openworld-client/realm-runtime/internal/resilience"
)

// FallbackDialer tries a primary RoomDialer and falls back to secondary
// dialers in order when the primary's circuit breaker is open or dialing
// fails, per spec §4.E's two independent WebSocket transports: the
// coder/websocket-backed primary and the gorilla/websocket-backed fallback
// used by the LiveKit-style scene-room adapter's signaling upgrade.
type FallbackDialer struct {
	group *resilience.FallbackGroup[RoomDialer]
}

// NewFallbackDialer wraps primary and any additional dialers in a
// [resilience.FallbackGroup], so a misbehaving transport library trips its
// own circuit breaker instead of being retried on every dial.
func NewFallbackDialer(primaryName string, primary RoomDialer, cfg resilience.FallbackConfig) *FallbackDialer {
	return &FallbackDialer{group: resilience.NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional dialer tried after all previously
// registered ones fail.
func (d *FallbackDialer) AddFallback(name string, dialer RoomDialer) {
	d.group.AddFallback(name, dialer)
}

var _ RoomDialer = (*FallbackDialer)(nil)

// Dial implements RoomDialer by delegating to the underlying fallback group.
func (d *FallbackDialer) Dial(ctx context.Context, roomURL string) (RoomTransport, error) {
	return resilience.ExecuteWithResult(d.group, func(dialer RoomDialer) (RoomTransport, error) {
		return dialer.Dial(ctx, roomURL)
	})
}
