// Package ws provides concrete comms.RoomTransport adapters over two
// different WebSocket libraries, so the main room and the scene room can
// independently pick whichever transport fits the comms server they're
// talking to.
package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"

	"github.com/openworld-client/realm-runtime/internal/comms"
)

// CoderDialer dials RoomTransports backed by github.com/coder/websocket,
// spec §4.E's "fallback comms adapter" transport.
type CoderDialer struct{}

var _ comms.RoomDialer = CoderDialer{}

// Dial opens a WebSocket connection to roomURL and wraps it as a RoomTransport.
func (CoderDialer) Dial(ctx context.Context, roomURL string) (comms.RoomTransport, error) {
	conn, _, err := websocket.Dial(ctx, roomURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", roomURL, err)
	}
	return newCoderTransport(conn), nil
}

type coderTransport struct {
	conn *websocket.Conn

	inbound      chan []byte
	disconnected chan comms.DisconnectReason

	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
}

func newCoderTransport(conn *websocket.Conn) *coderTransport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &coderTransport{
		conn:         conn,
		inbound:      make(chan []byte, 64),
		disconnected: make(chan comms.DisconnectReason, 1),
		ctx:          ctx,
		cancel:       cancel,
	}
	go t.readLoop()
	return t
}

func (t *coderTransport) readLoop() {
	defer close(t.inbound)
	for {
		_, data, err := t.conn.Read(t.ctx)
		if err != nil {
			select {
			case t.disconnected <- comms.NormalizeDisconnect(int(websocket.CloseStatus(err)), err.Error()):
			default:
			}
			return
		}
		select {
		case t.inbound <- data:
		case <-t.ctx.Done():
			return
		}
	}
}

func (t *coderTransport) Send(ctx context.Context, frame []byte, _ bool) error {
	return t.conn.Write(ctx, websocket.MessageBinary, frame)
}

func (t *coderTransport) Inbound() <-chan []byte { return t.inbound }

func (t *coderTransport) Disconnected() <-chan comms.DisconnectReason { return t.disconnected }

func (t *coderTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()
		err = t.conn.Close(websocket.StatusNormalClosure, "")
	})
	return err
}
