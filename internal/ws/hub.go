package ws

import (
	"log/slog"
	"sync"
)

// StatusUpdate is the event fanned out to subscribers when a payment reaches
// a terminal status.
type StatusUpdate struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Server-to-client frame. Targeted deliveries use EventPaymentUpdate on the
// payment's topic; every connection also receives EventStatusChanged.
type ServerMessage struct {
	Event string       `json:"event"`
	Data  StatusUpdate `json:"data"`
}

const (
	EventPaymentUpdate = "payment_update"
	EventStatusChanged = "payment_status_changed"
)

// TopicName returns the topic a payment's subscribers join.
func TopicName(reference string) string {
	return "payment:" + reference
}

// Hub owns the live connection registry and topic memberships. It is created
// at server start, handed explicitly to whoever needs it, and torn down at
// shutdown. Membership mutations are serialized by the hub mutex; delivery
// happens outside the lock on a membership snapshot.
type Hub struct {
	mu          sync.RWMutex
	connections map[*Connection]struct{}
	topics      map[string]map[*Connection]struct{}
	logger      *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		connections: make(map[*Connection]struct{}),
		topics:      make(map[string]map[*Connection]struct{}),
		logger:      logger,
	}
}

func (h *Hub) Register(c *Connection) {
	h.mu.Lock()
	h.connections[c] = struct{}{}
	total := len(h.connections)
	h.mu.Unlock()

	h.logger.Info("client connected", "connection_id", c.ID(), "total_connections", total)
}

// Unregister removes the connection from every topic it joined and drops it
// from the registry. Runs on every exit path, abnormal disconnects included.
func (h *Hub) Unregister(c *Connection) {
	h.mu.Lock()
	if _, ok := h.connections[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.connections, c)
	for topic := range c.topics {
		h.removeFromTopicLocked(topic, c)
	}
	total := len(h.connections)
	h.mu.Unlock()

	c.close()
	h.logger.Info("client disconnected", "connection_id", c.ID(), "total_connections", total)
}

// Subscribe adds the connection to the payment's topic, creating it lazily.
func (h *Hub) Subscribe(c *Connection, reference string) {
	topic := TopicName(reference)

	h.mu.Lock()
	if _, ok := h.connections[c]; !ok {
		h.mu.Unlock()
		return
	}
	members, ok := h.topics[topic]
	if !ok {
		members = make(map[*Connection]struct{})
		h.topics[topic] = members
	}
	members[c] = struct{}{}
	c.topics[topic] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("client subscribed", "connection_id", c.ID(), "topic", topic)
}

// Unsubscribe removes the membership; an emptied topic is discarded.
func (h *Hub) Unsubscribe(c *Connection, reference string) {
	topic := TopicName(reference)

	h.mu.Lock()
	h.removeFromTopicLocked(topic, c)
	delete(c.topics, topic)
	h.mu.Unlock()

	h.logger.Info("client unsubscribed", "connection_id", c.ID(), "topic", topic)
}

func (h *Hub) removeFromTopicLocked(topic string, c *Connection) {
	members, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.topics, topic)
	}
}

// Publish delivers the update to the payment's topic and broadcasts the
// status change to every connection. Delivery is best effort, at most once
// per currently subscribed connection: the membership snapshot is taken under
// the lock, the sends happen outside it, and a slow client just misses the
// frame rather than stalling the rest.
func (h *Hub) Publish(update StatusUpdate) {
	topic := TopicName(update.Reference)

	h.mu.RLock()
	targeted := make([]*Connection, 0, len(h.topics[topic]))
	for c := range h.topics[topic] {
		targeted = append(targeted, c)
	}
	everyone := make([]*Connection, 0, len(h.connections))
	for c := range h.connections {
		everyone = append(everyone, c)
	}
	h.mu.RUnlock()

	h.logger.Info("broadcasting payment update",
		"reference", update.Reference,
		"status", update.Status,
		"subscribers", len(targeted),
		"connections", len(everyone))

	for _, c := range targeted {
		c.enqueue(ServerMessage{Event: EventPaymentUpdate, Data: update})
	}
	for _, c := range everyone {
		c.enqueue(ServerMessage{Event: EventStatusChanged, Data: update})
	}
}

// ClientCount reports connected clients, for logs and debugging.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Shutdown disconnects every client. Called once at server teardown.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.connections))
	for c := range h.connections {
		conns = append(conns, c)
	}
	h.connections = make(map[*Connection]struct{})
	h.topics = make(map[string]map[*Connection]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}
