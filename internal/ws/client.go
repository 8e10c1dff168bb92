package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// client is one connected party. Outbound frames go through a bounded send
// channel drained by writePump, so a slow peer loses frames instead of
// stalling the broadcast path.
type client struct {
	conn   *websocket.Conn
	remote string

	mu     sync.RWMutex // guards closed vs. concurrent Deliver
	send   chan []byte
	closed bool
}

func newClient(conn *websocket.Conn, sendBuffer int, remote string) *client {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		remote: remote,
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Deliver queues a frame for the peer without blocking. Returns false when
// the frame was dropped, either because the send buffer is full or the
// connection is already closed. A relay fan-out may race with disconnect;
// the closed check keeps that race harmless.
func (c *client) Deliver(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close stops the write pump, which closes the connection. Safe to call
// more than once.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
