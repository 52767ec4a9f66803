package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pueblokc/fail2ban/internal/banlog"
	"github.com/pueblokc/fail2ban/internal/metrics"
	"github.com/rs/zerolog"
)

// Hub fans appended action log entries out to connected WebSocket clients.
// A client whose send buffer is full is dropped rather than allowed to
// block an append.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

type client struct {
	conn *websocket.Conn
	send chan banlog.Entry
}

// NewHub creates an empty Hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Dashboard is same-origin; reverse proxies rewrite Host.
				return true
			},
		},
		log: log,
	}
}

// Broadcast queues e for every connected client.
func (h *Hub) Broadcast(e banlog.Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- e:
		default:
			// Slow consumer: drop it
			h.dropLocked(c)
		}
	}
}

// ServeHTTP upgrades the request and streams entries until the client goes
// away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan banlog.Entry, 16)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	metrics.WSClients.Set(float64(len(h.clients)))
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

// writeLoop pushes queued entries to the client.
func (h *Hub) writeLoop(c *client) {
	for e := range c.send {
		if err := c.conn.WriteJSON(e); err != nil {
			h.drop(c)
			return
		}
	}
}

// readLoop discards inbound frames; its only purpose is to notice the close.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	_ = c.conn.Close()
	metrics.WSClients.Set(float64(len(h.clients)))
}

// CloseAll disconnects every client. Called on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}
