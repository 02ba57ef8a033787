package devserver

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/notify"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 4 << 10
	sendBufferSize = 64
	// Inbound frames per second per connection. Clients only ever send SUBSCRIBE.
	frameRate  = 2
	frameBurst = 4
)

// Hub tracks push connections per user and delivers notifications to the ones
// that subscribed to the user's destination.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	closed   bool
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

type client struct {
	hub        *Hub
	conn       *websocket.Conn
	userID     string
	send       chan []byte
	limiter    *rate.Limiter
	subscribed atomic.Bool
	closeOnce  sync.Once
}

// NewHub creates a hub. Requests without an Origin header (non-browser clients)
// are always accepted; browser origins must be listed.
func NewHub(allowedOrigins []string, logger *zap.Logger) *Hub {
	h := &Hub{
		clients: make(map[string]map[*client]struct{}),
		logger:  logger,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: checkOrigin(allowedOrigins)}
	return h
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o = strings.ToLower(strings.TrimSpace(o)); o != "" {
			set[o] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := strings.ToLower(strings.TrimSpace(r.Header.Get("Origin")))
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		_, ok := set[u.Scheme+"://"+u.Host]
		return ok
	}
}

// Serve upgrades an authenticated request and runs the connection until it ends.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	c := &client{
		hub:     h,
		conn:    conn,
		userID:  userID,
		send:    make(chan []byte, sendBufferSize),
		limiter: rate.NewLimiter(frameRate, frameBurst),
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	h.logger.Info("push connection opened", zap.String("user_id", userID))

	go c.writePump()
	c.readPump()
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if conns, ok := h.clients[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
	c.close()
}

// Online reports whether userID has at least one open push connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// Notify delivers n to every subscribed connection of userID. A connection whose
// buffer is full is dropped; the client reloads when it reconnects.
func (h *Hub) Notify(userID string, n chat.Notification) {
	data, err := chat.EncodeNotification(n)
	if err != nil {
		h.logger.Error("encode notification", zap.Error(err))
		return
	}

	var slow []*client
	h.mu.RLock()
	delivered := 0
	for c := range h.clients[userID] {
		if !c.subscribed.Load() {
			continue
		}
		select {
		case c.send <- data:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow push connection", zap.String("user_id", userID))
		h.unregister(c)
	}
	h.logger.Debug("notification pushed",
		zap.String("user_id", userID),
		zap.String("type", string(n.Type)),
		zap.String("chat_id", n.ChatID),
		zap.Int("connections", delivered),
	)
}

// Close ends every connection and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*client
	for _, conns := range h.clients {
		for c := range conns {
			all = append(all, c)
		}
	}
	h.clients = make(map[string]map[*client]struct{})
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

func (c *client) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Debug("push connection read failed", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		if !c.limiter.Allow() {
			c.hub.logger.Warn("push frame rate exceeded", zap.String("user_id", c.userID))
			continue
		}

		var f notify.SubscribeFrame
		if err := json.Unmarshal(data, &f); err != nil || f.Action != notify.ActionSubscribe {
			c.hub.logger.Debug("ignoring push frame", zap.String("user_id", c.userID))
			continue
		}
		// A user can only listen to its own notifications.
		if f.Destination != notify.Destination(c.userID) {
			c.hub.logger.Warn("subscribe to foreign destination refused",
				zap.String("user_id", c.userID), zap.String("destination", f.Destination))
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "forbidden destination")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
		c.subscribed.Store(true)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
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
