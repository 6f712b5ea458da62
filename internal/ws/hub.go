// Package ws broadcasts history updates to WebSocket subscribers.
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/metrics"
)

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	logger *zap.Logger

	// Registered clients
	clients map[*Client]bool

	// Outbound messages to all clients
	broadcast chan []byte

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc

	mu sync.RWMutex

	maxConnections int
}

// Message represents a WebSocket message sent to subscribers
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		logger:         logger,
		broadcast:      make(chan []byte, 256),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		clients:        make(map[*Client]bool),
		ctx:            ctx,
		cancel:         cancel,
		maxConnections: 256,
	}
}

// Run starts the hub
func (h *Hub) Run() {
	defer h.cancel()

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= h.maxConnections {
				h.mu.Unlock()
				h.logger.Warn("Rejecting WebSocket connection, hub is full",
					zap.String("client", client.id))
				close(client.send)
				continue
			}
			h.clients[client] = true
			h.mu.Unlock()

			metrics.RecordWebSocketConnection()
			h.logger.Debug("WebSocket client registered", zap.String("client", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.RecordWebSocketDisconnection()
			}
			h.mu.Unlock()
			h.logger.Debug("WebSocket client unregistered", zap.String("client", client.id))

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumers are dropped rather than stalling the hub.
					go func(c *Client) { h.unregister <- c }(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop shuts down the hub and disconnects all clients
func (h *Hub) Stop() {
	h.cancel()
}

// Broadcast sends a message to every connected client
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("WebSocket broadcast queue full, dropping message",
			zap.String("type", msg.Type))
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
