package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Read deadline; refreshed on pong and on every data frame.
	pongWait = 10 * time.Minute

	// Ping interval; must be less than pongWait.
	pingPeriod = 30 * time.Second

	maxMessageSize = 1 << 20

	sendBufferSize = 256
)

// ConnKind separates device connections from passive viewers.
type ConnKind string

const (
	KindDevice ConnKind = "device"
	KindViewer ConnKind = "viewer"
)

// Conn is one websocket connection known to a hub. Name is set once the
// peer registers.
type Conn struct {
	ID   string
	Kind ConnKind
	Name string

	ws   *websocket.Conn
	send chan []byte
}

// NewConn wraps a websocket connection. ws may be nil in tests; the send
// channel still works.
func NewConn(id string, kind ConnKind, ws *websocket.Conn) *Conn {
	return &Conn{
		ID:   id,
		Kind: kind,
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
	}
}

// Send queues an envelope without blocking. A full buffer means the peer
// stopped draining; the frame is dropped and false returned.
func (c *Conn) Send(env Envelope) bool {
	select {
	case c.send <- env.Encode():
		return true
	default:
		return false
	}
}

// readPump reads frames and dispatches them to the hub. It exits on any
// read error and reports the disconnect.
func (c *Conn) readPump(h *Hub) {
	defer func() {
		h.OnDisconnect(c.ID)
		if c.ws != nil {
			c.ws.Close()
		}
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				fmt.Printf("[Hub] WARNING: read error on %s: %v\n", c.ID, err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			// Protocol errors are logged and dropped, never fatal.
			fmt.Printf("[Hub] WARNING: malformed frame from %s: %v\n", c.ID, err)
			continue
		}
		h.handleFrame(c, env)
	}
}

// writePump drains the send channel to the socket and keeps the connection
// alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if c.ws != nil {
			c.ws.Close()
		}
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
