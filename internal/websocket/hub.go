// Package websocket pushes pipeline events to connected dashboard
// clients. The hub owns the client set; clients are registered by the
// HTTP upgrade handler and dropped when their connection dies or their
// send buffer fills up.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"sheetvault/pkg/contracts/events"
)

// Hub maintains the set of active clients and fans events out to them.
type Hub struct {
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	logger     *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		clients:    make(map[*Client]bool),
	}
}

// Run drives registration and broadcast until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("hub_stopped")
			return ctx.Err()

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client_registered",
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr),
				slog.Int("total_clients", count))

		case client := <-h.unregister:
			h.drop(client, "disconnected")

		case message := <-h.broadcast:
			h.mu.RLock()
			recipients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				recipients = append(recipients, client)
			}
			h.mu.RUnlock()

			for _, client := range recipients {
				select {
				case client.send <- message:
				default:
					// A full buffer means the client stopped reading.
					h.drop(client, "send buffer full")
				}
			}
		}
	}
}

// Publish serializes an event and queues it for broadcast. Events are
// advisory telemetry: if the queue is full the event is dropped rather
// than stalling the pipeline.
func (h *Hub) Publish(ev events.PipelineEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("event_marshal_failed", slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("event_dropped",
			slog.String("type", ev.Type),
			slog.String("file", ev.File))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) drop(client *Client, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	count := len(h.clients)
	h.mu.Unlock()

	close(client.send)
	h.logger.Info("client_unregistered",
		slog.String("client_id", client.id),
		slog.String("reason", reason),
		slog.Int("total_clients", count))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}
