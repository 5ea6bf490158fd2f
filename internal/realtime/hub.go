package realtime

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"example.com/socialgraph/internal/logger"
	"github.com/gorilla/websocket"
)

var logg = logger.New()

const defaultWriteTimeout = 5 * time.Second

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes on conn
}

func (c *client) write(payload []byte, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub tracks which users are online and delivers notifications to their
// live connection. One connection is kept per user; a newer one replaces it.
type Hub struct {
	mu           sync.RWMutex
	clients      map[string]*client
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		writeTimeout: defaultWriteTimeout,
	}
}

// Register makes conn the live connection of userID, closing any previous one.
func (h *Hub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	old := h.clients[userID]
	h.clients[userID] = &client{conn: conn}
	h.mu.Unlock()

	if old != nil && old.conn != conn {
		_ = old.conn.Close()
	}
	logg.Debug("realtime/hub", "User connected: "+userID)
}

// Unregister drops userID only while conn is still its live connection.
func (h *Hub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	c, ok := h.clients[userID]
	if ok && c.conn == conn {
		delete(h.clients, userID)
	}
	h.mu.Unlock()

	if ok && c.conn == conn {
		_ = conn.Close()
		logg.Debug("realtime/hub", "User disconnected: "+userID)
	}
}

// Send writes payload to the user's connection. It reports false when the
// user is offline or the write failed, in which case the connection is dropped.
func (h *Hub) Send(userID string, payload []byte) bool {
	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if err := c.write(payload, h.writeTimeout); err != nil {
		logg.Warn("realtime/hub", "Dropping connection after failed write: "+err.Error())
		h.Unregister(userID, c.conn)
		return false
	}
	return true
}

func (h *Hub) SendJSON(userID string, v any) (bool, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	return h.Send(userID, payload), nil
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnlineUsers returns the connected user ids in sorted order.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	users := make([]string, 0, len(h.clients))
	for id := range h.clients {
		users = append(users, id)
	}
	h.mu.RUnlock()
	sort.Strings(users)
	return users
}

// Close disconnects everyone.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		_ = c.conn.Close()
	}
}

// ServeWS upgrades the request and holds the connection for userID until the
// client goes away. The caller authenticates userID.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logg.Error("realtime/hub", "Failed to upgrade websocket connection", err)
		return
	}
	h.Register(userID, conn)
	defer h.Unregister(userID, conn)

	for {
		// inbound frames are ignored; reading keeps ping/close handling alive
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
