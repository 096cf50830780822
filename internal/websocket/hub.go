// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/showtrail/internal/logging"
	"github.com/tomtom215/showtrail/internal/metrics"
)

// Message types.
const (
	MessageTypeBadgeEarned = "badge_earned"
	MessageTypeActivity    = "activity"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
)

// Message is one frame sent to clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// delivery is a message addressed to every connection of one user.
type delivery struct {
	userID string
	msg    Message
}

// Hub routes messages to connected clients.
type Hub struct {
	clients    map[*Client]bool
	deliveries chan delivery
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	stopped  chan struct{}
	stopOnce sync.Once
}

// NewHub creates a hub. It does nothing until RunWithContext runs.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		deliveries: make(chan delivery, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		stopped:    make(chan struct{}),
	}
}

// RunWithContext processes registrations and deliveries until ctx ends,
// then closes every client. Lifecycle events are handled before
// deliveries so a message never misses a client that registered first.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		select {
		case c := <-h.Register:
			h.register(c)
			continue
		case c := <-h.Unregister:
			h.unregister(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case c := <-h.Register:
			h.register(c)
		case c := <-h.Unregister:
			h.unregister(c)
		case d := <-h.deliveries:
			h.deliver(d)
		}
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

func (h *Hub) String() string {
	return "websocket-hub"
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnectionsActive.Set(float64(n))
	logging.Debug().Str("user_id", c.userID).Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnectionsActive.Set(float64(n))
	logging.Debug().Str("user_id", c.userID).Int("total_clients", n).Msg("websocket client disconnected")
}

// sortedClients returns the registered clients in id order. Callers hold mu.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}

// deliver queues d on every client of its user. Clients whose queue is
// full are dropped.
func (h *Hub) deliver(d delivery) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var slow []*Client
	for _, c := range h.sortedClients() {
		if c.userID != d.userID {
			continue
		}
		select {
		case c.send <- d.msg:
			metrics.WSMessagesSent.Inc()
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		close(c.send)
		delete(h.clients, c)
		logging.Warn().Str("user_id", c.userID).Msg("dropped slow websocket client")
	}
	if len(slow) > 0 {
		metrics.WSConnectionsActive.Set(float64(len(h.clients)))
	}
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() { close(h.stopped) })
	h.mu.Lock()
	n := len(h.clients)
	for _, c := range h.sortedClients() {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	metrics.WSConnectionsActive.Set(0)
	logging.Info().Str("component", "websocket-hub").Int("clients_closed", n).Msg("websocket hub stopped")
}

// Attach registers c and starts its pumps. It reports false once the hub
// has stopped.
func (h *Hub) Attach(c *Client) bool {
	select {
	case h.Register <- c:
		c.Start()
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) enqueue(d delivery) bool {
	select {
	case h.deliveries <- d:
		return true
	default:
		logging.Warn().Str("message_type", d.msg.Type).Str("user_id", d.userID).Msg("delivery queue full, dropping message")
		return false
	}
}

// SendToUser queues a message for every connection of userID. It
// reports false when the hub is saturated and the message was dropped.
func (h *Hub) SendToUser(userID, messageType string, data any) bool {
	return h.enqueue(delivery{userID: userID, msg: Message{Type: messageType, Data: data}})
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
