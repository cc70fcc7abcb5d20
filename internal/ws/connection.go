package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultWriteTimeout    = 10 * time.Second
	defaultPongTimeout     = 60 * time.Second
	defaultSendBuffer      = 16
	defaultMaxMessageBytes = 1024
)

// Client-to-server frame.
type ClientMessage struct {
	Action    string `json:"action"`
	Reference string `json:"reference"`
}

// Connection wraps one websocket client. Outbound frames go through a
// buffered channel drained by writePump; enqueue never blocks the publisher.
type Connection struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan ServerMessage

	// topics this connection joined, guarded by hub.mu
	topics map[string]struct{}

	writeTimeout time.Duration
	pongTimeout  time.Duration
	maxMessage   int64

	// sendMu orders enqueue against close: the hub publishes from a snapshot
	// taken outside its lock, so a frame may arrive after Unregister ran.
	sendMu sync.Mutex
	closed bool

	logger *slog.Logger
}

func newConnection(hub *Hub, conn *websocket.Conn, opts Options, logger *slog.Logger) *Connection {
	return &Connection{
		id:           uuid.NewString(),
		hub:          hub,
		conn:         conn,
		send:         make(chan ServerMessage, opts.sendBuffer()),
		topics:       make(map[string]struct{}),
		writeTimeout: opts.writeTimeout(),
		pongTimeout:  opts.pongTimeout(),
		maxMessage:   opts.maxMessageBytes(),
		logger:       logger,
	}
}

func (c *Connection) ID() string {
	return c.id
}

// enqueue hands a frame to the write pump without blocking. A client that
// cannot keep up loses frames, not the hub; a frame racing the disconnect is
// silently dropped instead of hitting a closed channel.
func (c *Connection) enqueue(msg ServerMessage) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- msg:
	default:
		c.logger.Warn("dropping frame for slow client",
			"connection_id", c.id,
			"event", msg.Event,
			"reference", msg.Data.Reference)
	}
}

func (c *Connection) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump consumes subscribe/unsubscribe frames until the client goes away,
// then unregisters the connection.
func (c *Connection) readPump() {
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(c.maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "connection_id", c.id, "error", err)
			}
			return
		}

		if msg.Reference == "" {
			c.logger.Warn("ignoring frame without reference", "connection_id", c.id, "action", msg.Action)
			continue
		}

		switch msg.Action {
		case "subscribe":
			c.hub.Subscribe(c, msg.Reference)
		case "unsubscribe":
			c.hub.Unsubscribe(c, msg.Reference)
		default:
			c.logger.Warn("unknown client action", "connection_id", c.id, "action", msg.Action)
		}
	}
}

// writePump drains the send channel and keeps the connection alive with
// pings. When the channel closes it tells the client and hangs up.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.pongTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn("websocket write error", "connection_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
