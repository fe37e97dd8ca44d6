// Package synchub relays session storage snapshots between processes over a
// websocket hub, so a logout or refresh in one process reaches the others.
package synchub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"match-connect/internal/metrics"
	"match-connect/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 << 10
	sendBuffer     = 32
	defaultRoom    = "default"
)

// TypeSnapshot is the only message type the hub forwards
const TypeSnapshot = "snapshot"

// Message is the full storage state of the origin that wrote last.
// Empty tokens mean the keys were removed.
type Message struct {
	Type         string `json:"type"`
	Origin       string `json:"origin"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	User         string `json:"user,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	// Clients are CLI processes and backend workers, not browsers
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type client struct {
	conn *websocket.Conn
	room string
	send chan []byte
}

// Hub forwards snapshots from each connection to every other connection of
// the same room.
type Hub struct {
	log     *logger.Logger
	metrics *metrics.Metrics

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

// NewHub creates an empty hub
func NewHub(log *logger.Logger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		log:     log.WithComponent("synchub"),
		metrics: m,
		rooms:   make(map[string]map[*client]struct{}),
	}
}

// Handler upgrades the request and serves the connection until it closes.
// The room comes from the "room" query parameter.
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Error("WebSocket upgrade failed: %v", err)
			return
		}

		room := c.Query("room")
		if room == "" {
			room = defaultRoom
		}
		cl := &client{conn: conn, room: room, send: make(chan []byte, sendBuffer)}
		h.register(cl)
		h.log.Info("Storage relay connected", "room", room, "client_ip", c.ClientIP())

		go h.writePump(cl)
		h.readPump(cl)
	}
}

// Clients returns the number of open connections in room
func (h *Hub) Clients(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms returns the connection count of every non-empty room
func (h *Hub) Rooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	counts := make(map[string]int, len(h.rooms))
	for room, members := range h.rooms {
		if len(members) > 0 {
			counts[room] = len(members)
		}
	}
	return counts
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]map[*client]struct{})
	h.mu.Unlock()

	for _, members := range rooms {
		for cl := range members {
			close(cl.send)
			h.metrics.HubConnected(-1)
		}
	}
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[cl.room]
	if !ok {
		members = make(map[*client]struct{})
		h.rooms[cl.room] = members
	}
	members[cl] = struct{}{}
	h.metrics.HubConnected(1)
}

// unregister removes cl and closes its send channel, once
func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(cl)
}

func (h *Hub) removeLocked(cl *client) {
	members, ok := h.rooms[cl.room]
	if !ok {
		return
	}
	if _, ok := members[cl]; !ok {
		return
	}
	delete(members, cl)
	if len(members) == 0 {
		delete(h.rooms, cl.room)
	}
	close(cl.send)
	h.metrics.HubConnected(-1)
}

// broadcast queues payload for every peer of from. A peer whose buffer is
// full is disconnected; it resyncs from its own store when it reconnects.
func (h *Hub) broadcast(from *client, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for peer := range h.rooms[from.room] {
		if peer == from {
			continue
		}
		select {
		case peer.send <- payload:
			h.metrics.RecordHubMessage("out")
		default:
			h.log.Warning("Storage relay client too slow, disconnecting", "room", peer.room)
			h.removeLocked(peer)
		}
	}
}

func (h *Hub) readPump(cl *client) {
	defer func() {
		h.unregister(cl)
		cl.conn.Close()
	}()

	cl.conn.SetReadLimit(maxMessageSize)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, payload, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Error("WebSocket error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil || msg.Type != TypeSnapshot || msg.Origin == "" {
			h.log.Warning("Dropping invalid storage message", "room", cl.room)
			continue
		}
		h.metrics.RecordHubMessage("in")
		h.broadcast(cl, payload)
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.log.Error("WebSocket write error: %v", err)
				return
			}

		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
