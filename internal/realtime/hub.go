package realtime

import (
	"context"
	"encoding/json"

	"ticketly/internal/shared/bus"
	"ticketly/pkg/logger"
)

// envelope is the wire shape every websocket frame uses, both for
// broadcasts and direct responses.
type envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type outbound struct {
	origin string
	data   []byte
}

// Hub fans bus events out to connected websocket clients. All client
// set mutation happens on the Run goroutine; the channels are the API.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound
	clients    map[*Client]bool
	logger     *logger.Logger
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 256),
		clients:    make(map[*Client]bool),
		logger:     logger.GetDefault(),
	}
}

// AttachBus relays every published event to connected clients. Relay
// failures never propagate back to the publishing mutation.
func (h *Hub) AttachBus(b bus.Subscriber) {
	b.Subscribe("", func(ctx context.Context, event bus.Event) {
		h.Broadcast(event)
	})
}

// Broadcast queues an event for delivery to every client except the
// originator. Dropped on overflow; realtime frames are advisory.
func (h *Hub) Broadcast(event bus.Event) {
	data, err := json.Marshal(envelope{Type: event.Type, Payload: event.Payload})
	if err != nil {
		h.logger.ErrorWithContext(context.Background(), "failed to marshal broadcast", err,
			map[string]interface{}{"event_type": event.Type})
		return
	}
	select {
	case h.broadcast <- outbound{origin: event.Origin, data: data}:
	default:
		h.logger.DebugWithContext(context.Background(), "broadcast queue full, dropping event",
			map[string]interface{}{"event_type": event.Type})
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.shutdown()
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				if client.id == message.origin {
					continue
				}
				if !client.enqueue(message.data) {
					// Send queue full: the client is too slow to keep
					// its FIFO, disconnect it rather than block the hub.
					delete(h.clients, client)
					client.shutdown()
				}
			}

		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				client.shutdown()
			}
			return
		}
	}
}
