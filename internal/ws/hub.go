package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/pookietalk/pookie/internal/models"
)

// Hub fans chat messages out to every connected websocket client. All
// client bookkeeping happens on the Run goroutine.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Outbound messages for all clients.
	broadcast chan models.ChatMessage

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	done   chan struct{}
	count  atomic.Int64
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		broadcast:  make(chan models.ChatMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return nil
		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			h.logger.Debug("client registered", zap.String("client", client.id))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}
		case message := <-h.broadcast:
			frame, err := encodeEvent(models.EventMessage, message)
			if err != nil {
				h.logger.Error("encode message", zap.Error(err))
				continue
			}
			for client := range h.clients {
				select {
				case client.send <- frame:
				default:
					// Too slow to keep up; drop the client.
					h.logger.Warn("dropping slow client", zap.String("client", client.id))
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.count.Store(int64(len(h.clients)))
}

// Broadcast queues msg for every connected client. It returns without
// sending once the hub has stopped.
func (h *Hub) Broadcast(msg models.ChatMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// Clients reports how many clients are registered.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

func encodeEvent(name string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.Event{Name: name, Data: data})
}
