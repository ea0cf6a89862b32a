// Package hub fans dashboard updates out to connected browsers.
package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/nshruti113/ddos-defense-dashboard/internal/metrics"
)

// Message types sent to the dashboard
const (
	TypeAttackMode = "attack_mode"
	TypeAlert      = "alert"
	TypeAlerts     = "alerts"
	TypeTraffic    = "traffic"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 32
)

// Message is the envelope of every dashboard update
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

type Hub struct {
	upgrader websocket.Upgrader
	logger   *logrus.Logger
	metrics  *metrics.Metrics

	// snapshot builds the messages a new client receives on connect
	snapshot func() []Message

	mu      sync.RWMutex
	clients map[string]*client
}

func New(logger *logrus.Logger, m *metrics.Metrics, checkOrigin func(r *http.Request) bool) *Hub {
	if m == nil {
		m = metrics.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger:  logger,
		metrics: m,
		clients: make(map[string]*client),
	}
}

// OnConnect sets the initial state pushed to each new client. snapshot runs
// with the hub locked and must not call back into the hub.
func (h *Hub) OnConnect(snapshot func() []Message) {
	h.snapshot = snapshot
}

// ServeWS upgrades the request and keeps the client registered until it
// disconnects
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	// Registering under the same lock as the snapshot means no broadcast
	// falls between the two, and any later one is queued after it.
	h.mu.Lock()
	if h.snapshot != nil {
		for _, msg := range h.snapshot() {
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			select {
			case c.send <- data:
			default:
			}
		}
	}
	h.clients[c.id] = c
	h.mu.Unlock()
	h.metrics.DashboardWSClients.Inc()
	h.logger.Debugf("Dashboard client %s connected", c.id)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debugf("Dashboard client %s read error: %v", c.id, err)
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
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debugf("Dashboard client %s write error: %v", c.id, err)
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()

	if ok {
		h.metrics.DashboardWSClients.Dec()
		c.close()
		h.logger.Debugf("Dashboard client %s disconnected", c.id)
	}
}

// Broadcast sends one message to every client. Clients whose buffer is full
// are disconnected rather than blocking the caller.
func (h *Hub) Broadcast(msgType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Errorf("Failed to encode %s message: %v", msgType, err)
		return
	}

	h.mu.RLock()
	var slow []*client
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warnf("Dropping slow dashboard client %s", c.id)
		h.remove(c)
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.remove(c)
	}
}
