package websocket

import (
	"encoding/json"
	"log"
	"time"
)

// Event is one message broadcast to connected UI clients
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub maintains the set of active clients and broadcasts sync events
// to them.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound events for all clients
	broadcast chan []byte

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run processes register/unregister/broadcast events. Call in a
// goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("WS client connected (%d total)", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("WS client disconnected (%d total)", len(h.clients))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client; drop it
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// Notify broadcasts a sync lifecycle event to every connected client.
// Satisfies the sync engine's Notifier.
func (h *Hub) Notify(event string, payload interface{}) {
	msg, err := json.Marshal(Event{
		Type:      event,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("Failed to encode %s event: %v", event, err)
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		// Broadcast queue full; UI will catch up via the status endpoint
	}
}
