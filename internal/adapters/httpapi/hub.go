package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// message is what every websocket client receives.
type message struct {
	Type    domain.EventType `json:"type"`
	Payload domain.Event     `json:"payload"`
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	account string // empty: every event
}

func (c *client) wants(e domain.Event) bool {
	return c.account == "" || c.account == e.Account
}

// Hub fans committed events out to websocket clients. It implements
// ports.Publisher; Publish never blocks, a client whose buffer is full is
// disconnected.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
}

// NewHub crea un Hub. allowedOrigins vacío acepta cualquier origen.
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{clients: make(map[*client]struct{})}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(allowedOrigins) == 0 || origin == "" || slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// Publish envía los eventos a los clientes suscritos.
func (h *Hub) Publish(events ...domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}
	for _, e := range events {
		js, err := json.Marshal(message{Type: e.Type, Payload: e})
		if err != nil {
			slog.Error("hub: encode event", "seq", e.Seq, "err", err)
			continue
		}
		for c := range h.clients {
			if !c.wants(e) {
				continue
			}
			select {
			case c.send <- js:
			default:
				slog.Warn("hub: slow client dropped", "account", c.account)
				h.removeLocked(c)
			}
		}
	}
}

// Clients devuelve el número de conexiones activas.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close desconecta a todos los clientes.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Debug("hub: client connected", "account", c.account, "clients", len(h.clients))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked closes c.send once; callers hold h.mu.
func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// ServeWS upgrades the request; ?account= limits the stream to one account.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade ya respondió al cliente
		slog.Warn("hub: upgrade failed", "err", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), account: r.URL.Query().Get("account")}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards inbound messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("hub: read", "err", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
