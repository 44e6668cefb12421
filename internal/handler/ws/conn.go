package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/courier-chat/courier/internal/model/message"
)

// Conn wraps one websocket session bound to a channel name. It implements
// both registry.Conn and router.Peer. Writes are serialized; gorilla
// websockets do not allow concurrent writers.
type Conn struct {
	channel      string
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
}

func newConn(channel string, wsConn *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{channel: channel, ws: wsConn, writeTimeout: writeTimeout}
}

// Channel returns the channel name this connection is bound to.
func (c *Conn) Channel() string {
	return c.channel
}

// Send writes one message frame to the peer.
func (c *Conn) Send(msg message.Message) error {
	raw, err := msg.Encode()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}

// Close tears the socket down; the read loop observes the closure and runs
// the disconnect path.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close()
	})
	return err
}
