package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/openworld-client/realm-runtime/internal/comms"
)

// GorillaDialer dials RoomTransports backed by github.com/gorilla/websocket,
// used for the LiveKit-style room adapter's signaling control channel (spec
// §4.E), which performs an HTTP→WS upgrade gorilla's Dialer models directly.
type GorillaDialer struct {
	Dialer *websocket.Dialer
}

var _ comms.RoomDialer = GorillaDialer{}

// Dial opens a WebSocket connection to roomURL and wraps it as a RoomTransport.
func (d GorillaDialer) Dial(ctx context.Context, roomURL string) (comms.RoomTransport, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, roomURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", roomURL, err)
	}
	return newGorillaTransport(conn), nil
}

type gorillaTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	inbound      chan []byte
	disconnected chan comms.DisconnectReason

	closeOnce sync.Once
	done      chan struct{}
}

func newGorillaTransport(conn *websocket.Conn) *gorillaTransport {
	t := &gorillaTransport{
		conn:         conn,
		inbound:      make(chan []byte, 64),
		disconnected: make(chan comms.DisconnectReason, 1),
		done:         make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *gorillaTransport) readLoop() {
	defer close(t.inbound)
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			code := -1
			if closeErr, ok := err.(*websocket.CloseError); ok {
				code = closeErr.Code
			}
			select {
			case t.disconnected <- comms.NormalizeDisconnect(code, err.Error()):
			default:
			}
			return
		}
		select {
		case t.inbound <- data:
		case <-t.done:
			return
		}
	}
}

func (t *gorillaTransport) Send(_ context.Context, frame []byte, _ bool) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (t *gorillaTransport) Inbound() <-chan []byte { return t.inbound }

func (t *gorillaTransport) Disconnected() <-chan comms.DisconnectReason { return t.disconnected }

func (t *gorillaTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}
