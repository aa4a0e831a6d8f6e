package stream

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/rleusmann/Cambridge-audio-custom/internal/coordinator"
	"github.com/rleusmann/Cambridge-audio-custom/internal/mediaplayer"
	"github.com/rleusmann/Cambridge-audio-custom/internal/receiver"
)

// Message types.
const (
	TypeEvent = "event"
	TypePing  = "ping"
	TypePong  = "pong"
	TypeError = "error"
)

// Event types carried in event messages.
const (
	EventState       = "media_player.state"
	EventUnavailable = "media_player.unavailable"
)

const (
	sendBufferSize   = 256
	defaultPing      = 30 * time.Second
	writeWait        = 10 * time.Second
	maxMessageSize   = 4096
	pongWaitFraction = 2
)

// Message is sent to and received from WebSocket clients.
type Message struct {
	Type      string `json:"type"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Hub fans host-view updates out to every connected client.
type Hub struct {
	logger       *log.Logger
	pingInterval time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub. pingInterval <= 0 uses 30s.
func NewHub(logger *log.Logger, pingInterval time.Duration) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	if pingInterval <= 0 {
		pingInterval = defaultPing
	}
	return &Hub{
		logger:       logger,
		pingInterval: pingInterval,
		clients:      make(map[*client]struct{}),
	}
}

// Attach broadcasts every commit and failure of c. A commit is always
// published as available since it follows a successful refresh.
func (h *Hub) Attach(c *coordinator.Coordinator) {
	c.OnCommit(func(snapshot receiver.Snapshot) {
		h.Broadcast(EventState, mediaplayer.BuildView(snapshot, true))
	})
	c.OnFailure(func(err error) {
		h.Broadcast(EventUnavailable, map[string]any{
			"coordinator": c.Name(),
			"error":       err.Error(),
		})
	})
}

// Handler upgrades the request and streams updates. The current view is sent
// first when one exists.
func (h *Hub) Handler(player *mediaplayer.Player) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		c := &client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}
		if view, err := player.View(); err == nil {
			if data, err := encode(EventState, view); err == nil {
				c.trySend(data)
			}
		}
		h.register(c)

		go c.writePump()
		go c.readPump()
	}
}

// Broadcast sends one event to every client. Slow clients whose buffer is
// full miss the event.
func (h *Hub) Broadcast(eventType string, payload any) {
	data, err := encode(eventType, payload)
	if err != nil {
		h.logger.Printf("Failed to marshal %s broadcast: %v", eventType, err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.trySend(data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RegisterRoutes wires the WebSocket endpoint to the router.
func RegisterRoutes(router chi.Router, hub *Hub, player *mediaplayer.Player) {
	router.Get("/ws/media-player", hub.Handler(player))
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, c)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Printf("[DEBUG] WebSocket client connected (clients=%d)", count)
}

// unregister closes the send channel only if this call removed the client,
// so Close and a disconnecting reader cannot both close it.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(c.send)
	}
	h.logger.Printf("[DEBUG] WebSocket client disconnected (clients=%d)", count)
}

func encode(eventType string, payload any) ([]byte, error) {
	return json.Marshal(Message{
		Type:      TypeEvent,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	pongWait := c.hub.pingInterval * pongWaitFraction
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Printf("WebSocket read error: %v", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handleMessage(data)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(Message{Type: TypeError, Payload: "invalid JSON message"})
		return
	}
	switch msg.Type {
	case TypePing:
		c.reply(Message{Type: TypePong})
	default:
		c.reply(Message{Type: TypeError, Payload: "unknown message type: " + msg.Type})
	}
}

func (c *client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// trySend drops data when the buffer is full and absorbs sends on a channel
// closed by a concurrent unregister.
func (c *client) trySend(data []byte) {
	defer func() {
		_ = recover()
	}()

	select {
	case c.send <- data:
	default:
	}
}
