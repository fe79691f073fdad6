package realtime

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

type Client struct {
	ID     string
	UserID uuid.UUID
	Handle string // mobile handle, the presence key
	Conn   *WebSocketConn
	Send   chan []byte
}

type Hub struct {
	clients    map[string]*Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	// bridge mirrors fanout to other instances; nil disables it
	bridge *Bridge
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// SetBridge attaches the cross-instance Redis bridge. Must be called before Run.
func (h *Hub) SetBridge(b *Bridge) {
	h.bridge = b
}

func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// IsOnline reports whether the user has at least one live connection here.
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.UserID == userID {
			return true
		}
	}
	return false
}

// PresenceSnapshot returns handle -> online for every connected user.
// Full-snapshot semantics: the payload replaces the client's map wholesale.
func (h *Hub) PresenceSnapshot() map[string]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	snap := make(map[string]bool, len(h.clients))
	for _, client := range h.clients {
		if client.Handle != "" {
			snap[client.Handle] = true
		}
	}
	return snap
}

// BroadcastPresence pushes the current snapshot to every connected client.
func (h *Hub) BroadcastPresence() {
	payload, err := json.Marshal(Envelope{Topic: TopicPresence, Data: h.PresenceSnapshot()})
	if err != nil {
		log.Printf("Error marshaling presence snapshot: %v", err)
		return
	}
	h.broadcast <- payload
}

// SendToUser pushes an envelope to every connection of a user. Returns true
// if at least one local connection accepted it.
func (h *Hub) SendToUser(userID uuid.UUID, topic string, data interface{}) bool {
	payload, err := json.Marshal(Envelope{Topic: topic, Data: data})
	if err != nil {
		log.Printf("Error marshaling %s envelope: %v", topic, err)
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := false
	for _, client := range h.clients {
		if client.UserID == userID {
			select {
			case client.Send <- payload:
				delivered = true
			default:
				// queue full, drop rather than block the fanout path
			}
		}
	}
	return delivered
}

// SendToConversation pushes an envelope to both participants.
func (h *Hub) SendToConversation(farmerID, partnerID uuid.UUID, topic string, data interface{}) {
	h.SendToUser(farmerID, topic, data)
	h.SendToUser(partnerID, topic, data)
}

// Relay delivers to the user locally and, when no local connection took it,
// hands the envelope to the bridge so another instance can.
func (h *Hub) Relay(userID uuid.UUID, topic string, data interface{}) {
	if h.SendToUser(userID, topic, data) {
		return
	}
	if h.bridge != nil {
		h.bridge.Forward(userID, topic, data)
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			log.Printf("Client registered: %s (user %s)", client.ID, client.UserID)
			h.BroadcastPresence()

		case client := <-h.unregister:
			h.mu.Lock()
			if old, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(old.Send)
				log.Printf("Client unregistered: %s", client.ID)
			}
			h.mu.Unlock()
			h.BroadcastPresence()

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}
