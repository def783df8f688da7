// Package mock provides in-memory mock implementations of comms interfaces
// for use in unit tests.
package mock

import (
	"context"
	"sync"

	"github.com/openworld-client/realm-runtime/internal/comms"
	"github.com/openworld-client/realm-runtime/internal/types"
)

var _ comms.RoomTransport = (*Transport)(nil)

// SendCall records the arguments of a single Send call.
type SendCall struct {
	Frame      []byte
	Unreliable bool
}

// Transport is a mock comms.RoomTransport, fully controlled by the test.
type Transport struct {
	mu sync.Mutex

	inbound      chan []byte
	disconnected chan comms.DisconnectReason

	// SendError is returned by Send.
	SendError error

	SendCalls  []SendCall
	CloseCalls int
}

// NewTransport returns a Transport with a buffered inbound channel.
func NewTransport() *Transport {
	return &Transport{
		inbound:      make(chan []byte, 64),
		disconnected: make(chan comms.DisconnectReason, 1),
	}
}

// PushInbound enqueues a raw frame as if received from the wire.
func (t *Transport) PushInbound(frame []byte) { t.inbound <- frame }

// Disconnect simulates a transport-level disconnect with reason.
func (t *Transport) Disconnect(reason comms.DisconnectReason) { t.disconnected <- reason }

func (t *Transport) Send(_ context.Context, frame []byte, unreliable bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.SendCalls = append(t.SendCalls, SendCall{Frame: frame, Unreliable: unreliable})
	return t.SendError
}

func (t *Transport) Inbound() <-chan []byte { return t.inbound }

func (t *Transport) Disconnected() <-chan comms.DisconnectReason { return t.disconnected }

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CloseCalls++
	return nil
}

var _ comms.RoomDialer = (*Dialer)(nil)

// Dialer is a mock comms.RoomDialer returning a fixed Transport.
type Dialer struct {
	mu sync.Mutex

	Transport  *Transport
	DialError  error
	DialedURLs []string
}

// NewDialer returns a Dialer that hands back transport on every Dial call.
func NewDialer(transport *Transport) *Dialer {
	return &Dialer{Transport: transport}
}

func (d *Dialer) Dial(_ context.Context, roomURL string) (comms.RoomTransport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DialedURLs = append(d.DialedURLs, roomURL)
	if d.DialError != nil {
		return nil, d.DialError
	}
	return d.Transport, nil
}

var _ comms.AvatarSink = (*AvatarSink)(nil)

// MovementCall records a HandleMovement invocation.
type MovementCall struct {
	Alias       string
	TimestampMs int64
	Payload     []byte
}

// PositionCall records a HandlePosition invocation.
type PositionCall struct {
	Alias   string
	Index   uint32
	Payload []byte
}

// AvatarSink is a mock comms.AvatarSink recording every call it receives.
type AvatarSink struct {
	mu sync.Mutex

	MovementCalls           []MovementCall
	PositionCalls           []PositionCall
	MovementCompressedCalls []MovementCall
	VoiceCalls              []string
	InitVoiceCalls          []string
	ProfileVersionCalls     map[string]uint64
	ProfileRequestCalls     []string
	ProfileResponseCalls    []string
}

func (a *AvatarSink) HandleMovement(alias string, timestampMs int64, payload []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.MovementCalls = append(a.MovementCalls, MovementCall{Alias: alias, TimestampMs: timestampMs, Payload: payload})
}

func (a *AvatarSink) HandlePosition(alias string, index uint32, payload []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.PositionCalls = append(a.PositionCalls, PositionCall{Alias: alias, Index: index, Payload: payload})
}

func (a *AvatarSink) HandleMovementCompressed(alias string, timestampMs int64, payload []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.MovementCompressedCalls = append(a.MovementCompressedCalls, MovementCall{Alias: alias, TimestampMs: timestampMs, Payload: payload})
}

func (a *AvatarSink) HandleVoice(alias string, _ []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.VoiceCalls = append(a.VoiceCalls, alias)
}

func (a *AvatarSink) HandleInitVoice(alias string, _ []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.InitVoiceCalls = append(a.InitVoiceCalls, alias)
}

func (a *AvatarSink) HandleProfileVersion(alias string, version uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ProfileVersionCalls == nil {
		a.ProfileVersionCalls = make(map[string]uint64)
	}
	a.ProfileVersionCalls[alias] = version
}

func (a *AvatarSink) HandleProfileRequest(alias string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ProfileRequestCalls = append(a.ProfileRequestCalls, alias)
}

func (a *AvatarSink) HandleProfileResponse(alias string, _ []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ProfileResponseCalls = append(a.ProfileResponseCalls, alias)
}

var _ comms.SceneRouter = (*SceneRouter)(nil)

// RouteCall records a RouteToScene invocation.
type RouteCall struct {
	SceneID types.SceneId
	Payload []byte
}

// SceneRouter is a mock comms.SceneRouter.
type SceneRouter struct {
	mu    sync.Mutex
	Calls []RouteCall
}

func (r *SceneRouter) RouteToScene(sceneID types.SceneId, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, RouteCall{SceneID: sceneID, Payload: payload})
}
