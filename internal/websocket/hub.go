package websocket

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/home-dashboard/httping/internal/models"
)

const (
	SchemaVersion = "1.0"

	// ChannelDashboard carries the snapshots of every target.
	ChannelDashboard = "dashboard"

	// TypeSnapshot marks a message carrying a models.Snapshot.
	TypeSnapshot = "snapshot"
)

// TargetChannel returns the channel carrying snapshots of one target.
func TargetChannel(internalName string) string {
	return "target:" + internalName
}

// Hub maintains active WebSocket connections and fans snapshots out to the
// clients subscribed to their channels.
type Hub struct {
	clients map[*Client]bool

	broadcast chan *Message

	// channel -> subscribed clients
	subscriptions map[string]map[*Client]bool

	// channel -> target -> last snapshot message, replayed on subscribe
	latest map[string]map[string]*Message

	logger *zap.Logger
	mu     sync.RWMutex
}

// Message represents a WebSocket message
type Message struct {
	SchemaVersion string        `json:"schema_version"`
	Type          string        `json:"type"`
	Channel       string        `json:"channel,omitempty"`
	EventID       string        `json:"event_id,omitempty"`
	Timestamp     string        `json:"timestamp"`
	Data          any           `json:"data,omitempty"`
	Error         *ErrorDetails `json:"error,omitempty"`
}

// ErrorDetails represents error information in a WebSocket message
type ErrorDetails struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newMessage(msgType, channel string, data any) *Message {
	return &Message{
		SchemaVersion: SchemaVersion,
		Type:          msgType,
		Channel:       channel,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Data:          data,
	}
}

// NewHub creates a new Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:       make(map[*Client]bool),
		broadcast:     make(chan *Message, 256),
		subscriptions: make(map[string]map[*Client]bool),
		latest:        make(map[string]map[string]*Message),
		logger:        logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case message := <-h.broadcast:
			h.broadcastToSubscribers(message)

		case <-ctx.Done():
			h.logger.Info("websocket hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) broadcastToSubscribers(message *Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if message.Type == TypeSnapshot {
		h.remember(message)
	}

	for client := range h.subscriptions[message.Channel] {
		select {
		case client.send <- message:
		default:
			h.logger.Warn("websocket client send buffer full, skipping message",
				zap.String("client", client.id),
				zap.String("channel", message.Channel))
		}
	}
}

// remember keeps message as the latest snapshot of its target on its
// channel. The dashboard channel carries every target, so one entry per
// target is kept there.
func (h *Hub) remember(message *Message) {
	var target string
	if snap, ok := message.Data.(*models.Snapshot); ok {
		target = snap.InternalName
	}
	if h.latest[message.Channel] == nil {
		h.latest[message.Channel] = make(map[string]*Message)
	}
	h.latest[message.Channel][target] = message
}

// Register adds client to the hub. It must be called before the client's
// pumps start.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	h.logger.Debug("websocket client registered", zap.String("client", client.id))
}

// Unregister removes client and closes its send queue.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	for channel := range h.subscriptions {
		delete(h.subscriptions[channel], client)
	}
	h.logger.Debug("websocket client unregistered", zap.String("client", client.id))
}

// Subscribe adds a client to channels and replays the latest snapshot of
// each target on them.
func (h *Hub) Subscribe(client *Client, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		return
	}
	for _, channel := range channels {
		if h.subscriptions[channel] == nil {
			h.subscriptions[channel] = make(map[*Client]bool)
		}
		h.subscriptions[channel][client] = true

		last := h.latest[channel]
		for _, target := range slices.Sorted(maps.Keys(last)) {
			select {
			case client.send <- last[target]:
			default:
				h.logger.Warn("websocket client send buffer full, skipping replay",
					zap.String("client", client.id),
					zap.String("channel", channel))
			}
		}
	}

	h.logger.Debug("websocket client subscribed",
		zap.String("client", client.id),
		zap.Strings("channels", channels))
}

// Unsubscribe removes a client from channel subscriptions
func (h *Hub) Unsubscribe(client *Client, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, channel := range channels {
		if subscribers, ok := h.subscriptions[channel]; ok {
			delete(subscribers, client)
		}
	}
}

// BroadcastToChannel queues data for all subscribers of channel.
func (h *Hub) BroadcastToChannel(channel, msgType string, data any) {
	message := newMessage(msgType, channel, data)
	message.EventID = uuid.New().String()

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("websocket broadcast buffer full, dropping message", zap.String("channel", channel))
	}
}

// PublishSnapshot sends snap to the target's channel and the dashboard
// channel.
func (h *Hub) PublishSnapshot(ctx context.Context, snap *models.Snapshot) error {
	for _, channel := range []string{TargetChannel(snap.InternalName), ChannelDashboard} {
		message := newMessage(TypeSnapshot, channel, snap)
		message.EventID = uuid.New().String()
		select {
		case h.broadcast <- message:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetSubscriptionCount returns the number of active subscriptions
func (h *Hub) GetSubscriptionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, subscribers := range h.subscriptions {
		count += len(subscribers)
	}
	return count
}

// ToJSON marshals the message.
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
