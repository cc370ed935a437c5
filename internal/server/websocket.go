package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brightpath-energy/fieldsync/internal/logging"
	"github.com/brightpath-energy/fieldsync/internal/models"
	"github.com/brightpath-energy/fieldsync/internal/uuid"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The API only serves the local field client.
		return true
	},
}

// Event types pushed to connected clients.
const (
	EventSyncStarted          = "sync.started"
	EventSyncCompleted        = "sync.completed"
	EventMutationEnqueued     = "mutation.enqueued"
	EventMutationDeadLettered = "mutation.dead_lettered"
	EventPhotoRegistered      = "photo.registered"
	EventConnectivityChanged  = "connectivity.changed"
)

// wsEnvelope wraps all WebSocket messages.
type wsEnvelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// wsClient is one connected WebSocket peer.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub
}

// WSHub fans sync lifecycle events out to connected clients.
type WSHub struct {
	log        *logging.Logger
	clients    map[string]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex
}

// NewWSHub creates a hub and starts its dispatch loop.
func NewWSHub() *WSHub {
	hub := &WSHub{
		log:        logging.Get(),
		clients:    make(map[string]*wsClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
	go hub.run()
	return hub
}

func (h *WSHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("WebSocket client connected",
				map[string]interface{}{"client_id": client.id, "total": total})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("WebSocket client disconnected",
				map[string]interface{}{"client_id": client.id, "total": total})

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Send buffer full: drop the slow client.
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an event to every connected client.
func (h *WSHub) Broadcast(eventType string, data map[string]interface{}) {
	envelope := wsEnvelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		h.log.Error("Failed to marshal WebSocket event", err)
		return
	}

	select {
	case h.broadcast <- raw:
	default:
		h.log.Warn("WebSocket broadcast buffer full, dropping event",
			map[string]interface{}{"type": eventType})
	}
}

// BroadcastSyncState pushes a sync start/stop transition.
func (h *WSHub) BroadcastSyncState(syncing bool) {
	if syncing {
		h.Broadcast(EventSyncStarted, map[string]interface{}{"status": "started"})
		return
	}
	h.Broadcast(EventSyncCompleted, map[string]interface{}{"status": "completed"})
}

// BroadcastMutationEnqueued announces a newly queued mutation.
func (h *WSHub) BroadcastMutationEnqueued(m *models.Mutation) {
	h.Broadcast(EventMutationEnqueued, map[string]interface{}{
		"mutation_id": m.ID.String(),
		"key":         m.Key(),
	})
}

// BroadcastMutationDeadLettered announces a mutation moved to the
// dead-letter store.
func (h *WSHub) BroadcastMutationDeadLettered(m *models.Mutation) {
	h.Broadcast(EventMutationDeadLettered, map[string]interface{}{
		"mutation_id": m.ID.String(),
		"key":         m.Key(),
		"last_error":  m.LastError,
	})
}

// BroadcastConnectivity announces a connectivity change.
func (h *WSHub) BroadcastConnectivity(online bool) {
	h.Broadcast(EventConnectivityChanged, map[string]interface{}{"online": online})
}

// HandleWebSocket upgrades the connection and registers the client.
func (h *WSHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade WebSocket connection", err)
		return
	}

	client := &wsClient{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump drains inbound frames so pings and close frames are handled.
// The API is push-only; client payloads are ignored.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump delivers queued events and keeps the connection alive.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
