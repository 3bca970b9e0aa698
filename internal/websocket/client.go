package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 30 * time.Second

	// Clients only send small control messages.
	maxMessageSize = 4 * 1024
)

// Client represents a WebSocket client connection
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan *Message
	logger *zap.Logger
}

// ControlRequest is a subscribe or unsubscribe request sent by a client.
type ControlRequest struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	id := uuid.New().String()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan *Message, 64),
		logger: hub.logger.With(zap.String("client", id)),
	}
}

// readPump handles control messages until the connection fails.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket unexpected close", zap.Error(err))
			}
			return
		}

		var req ControlRequest
		if err := json.Unmarshal(data, &req); err != nil {
			c.sendError("INVALID_MESSAGE", "Failed to parse message")
			continue
		}

		switch req.Type {
		case "subscribe":
			if len(req.Channels) == 0 {
				c.sendError("INVALID_SUBSCRIBE", "At least one channel is required")
				continue
			}
			c.hub.Subscribe(c, req.Channels)
			c.enqueue(newMessage("ack", "", map[string]any{"subscribed_channels": req.Channels}))
		case "unsubscribe":
			if len(req.Channels) == 0 {
				c.sendError("INVALID_UNSUBSCRIBE", "Channels are required")
				continue
			}
			c.hub.Unsubscribe(c, req.Channels)
		case "pong":
		default:
			c.sendError("UNKNOWN_TYPE", "Unknown message type: "+req.Type)
		}
	}
}

// writePump writes queued messages and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) enqueue(m *Message) {
	// the hub lock keeps send from being closed underneath us
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- m:
	default:
		c.logger.Warn("websocket send buffer full, dropping message", zap.String("type", m.Type))
	}
}

func (c *Client) sendError(code, message string) {
	m := newMessage("error", "", nil)
	m.Error = &ErrorDetails{Code: code, Message: message}
	c.enqueue(m)
}

// Run starts the client's read and write pumps
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}
