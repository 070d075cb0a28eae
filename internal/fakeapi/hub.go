package fakeapi

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rupesh-2/matrimonial-UI/internal/logging"
)

const (
	hubWriteWait  = 10 * time.Second
	hubPongWait   = 60 * time.Second
	hubPingPeriod = hubPongWait * 9 / 10
	hubSendBuffer = 16
)

// event is the frame pushed to chat clients.
type event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type client struct {
	userID int64
	conn   *websocket.Conn
	send   chan event
}

// Hub fans chat events out to every socket a user has open.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*client]struct{}

	upgrader websocket.Upgrader
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: map[int64]map[*client]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Connected reports how many sockets userID has open.
func (h *Hub) Connected(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = map[*client]struct{}{}
	}
	h.clients[c.userID][c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peers, ok := h.clients[c.userID]; ok {
		if _, ok := peers[c]; ok {
			delete(peers, c)
			close(c.send)
		}
		if len(peers) == 0 {
			delete(h.clients, c.userID)
		}
	}
}

// sendToUser queues evt for every socket of userID. Slow sockets drop events.
func (h *Hub) sendToUser(userID int64, evt event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- evt:
		default:
		}
	}
}

// serve upgrades the request and pumps events until the socket closes.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, userID int64) {
	logger := logging.FromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "userId", userID, "error", err)
		return
	}

	c := &client{userID: userID, conn: conn, send: make(chan event, hubSendBuffer)}
	h.register(c)
	c.send <- event{Type: "info", Data: "connected"}

	go h.writer(c, logger)
	h.reader(c)
}

func (h *Hub) reader(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	}
}

func (h *Hub) writer(c *client, logger *slog.Logger) {
	ticker := time.NewTicker(hubPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(evt); err != nil {
				logger.Debug("websocket write failed", "userId", c.userID, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
