package realtime

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4 << 10
)

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Hub keeps one websocket per user and pushes JSON payloads to it.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// NewHub constructs a Hub. allowedOrigins empty or containing "*" accepts any origin.
func NewHub(logger *zap.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{logger: logger, clients: make(map[string]*client)}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, origin := range allowed {
		if origin == "*" {
			allowed = nil
			break
		}
	}
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, candidate := range allowed {
			if strings.EqualFold(candidate, origin) {
				return true
			}
		}
		return false
	}
}

// Serve upgrades the request and registers the connection for userID.
// An existing connection for the same user is replaced.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return err
	}

	c := &client{conn: conn}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	if old, ok := h.clients[userID]; ok {
		_ = old.conn.Close()
	}
	h.clients[userID] = c
	h.mu.Unlock()

	h.logger.Debug("websocket connected", zap.String("user_id", userID))
	go h.pingLoop(userID, c)
	go h.readLoop(userID, c)
	return nil
}

// Publish sends payload to userID if connected. Delivery is best effort.
func (h *Hub) Publish(userID string, payload interface{}) {
	if h == nil || userID == "" {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("realtime payload marshal failed", zap.Error(err))
		return
	}
	h.write(userID, func(conn *websocket.Conn) error {
		return conn.WriteMessage(websocket.TextMessage, data)
	})
}

// Connected reports whether userID currently holds a connection.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// Close drops every connection and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.closed = true
	h.mu.Unlock()
	for _, c := range clients {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(time.Second))
		_ = c.conn.Close()
		c.mu.Unlock()
	}
}

func (h *Hub) pingLoop(userID string, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		if !h.current(userID, c) {
			return
		}
		h.write(userID, func(conn *websocket.Conn) error {
			return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		})
	}
}

func (h *Hub) readLoop(userID string, c *client) {
	defer h.drop(userID, c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", zap.String("user_id", userID), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (h *Hub) current(userID string, c *client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[userID] == c
}

func (h *Hub) drop(userID string, c *client) {
	_ = c.conn.Close()
	h.mu.Lock()
	if h.clients[userID] == c {
		delete(h.clients, userID)
	}
	h.mu.Unlock()
}

func (h *Hub) write(userID string, fn func(*websocket.Conn) error) {
	h.mu.RLock()
	c := h.clients[userID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	c.mu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := fn(c.conn)
	c.mu.Unlock()
	if err != nil {
		h.logger.Debug("websocket write failed", zap.String("user_id", userID), zap.Error(err))
		h.drop(userID, c)
	}
}
