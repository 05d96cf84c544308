// Package eventbus is the internal event bus StageView's core emits to and
// the UI layer consumes from, delivered over a WebSocket hub with the usual
// NewHub/Run/Broadcast/HandleConnection shape, built on
// github.com/gorilla/websocket.
package eventbus

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventType names one of the typed events the bus delivers.
type EventType string

const (
	EventCameraStatus  EventType = "camera-status"
	EventStreamHealth  EventType = "stream-health"
	EventStreamError   EventType = "stream-error"
	EventRemoteCommand EventType = "remote-command"
	EventReloadConfig  EventType = "reload-config"
)

// Event is the {type, payload} frame broadcast to every connected client.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

const (
	writeWait      = 10 * time.Second
	clientSendBuf  = 32
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // permissive CORS, no auth 
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// Hub fans out Events to every connected WebSocket client. Subscribers that
// fall behind are dropped rather than allowed to backpressure Broadcast,
// the same drop-slow-reader policy the Stream Supervisor's broadcast
// channel uses.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	register   chan *client
	unregister chan *client
	broadcast  chan Event
}

// NewHub creates a Hub. Call Run in its own goroutine before serving
// connections.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Event, 256),
	}
}

// Run drives the hub's registration and fan-out loop until stop is closed.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case evt := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- evt:
				default:
					// slow client: drop it rather than block the hub
					go func(c *client) { h.unregister <- c }(c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast publishes an event of the given type to every connected client.
func (h *Hub) Broadcast(eventType EventType, payload any) {
	h.broadcast <- Event{Type: eventType, Payload: payload}
}

// HandleConnection upgrades an HTTP request to a WebSocket and registers it
// as an event subscriber (teacher: Handler.HandleWebSocket →
// h.wsHub.HandleConnection).
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{conn: conn, send: make(chan Event, clientSendBuf)}
	h.register <- c

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards inbound frames (the bus is one-directional, server to
// client) but must run so ping/pong control frames and close frames are
// processed.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
