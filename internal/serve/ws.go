package serve

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Websocket timeouts.
const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// Origin checks are skipped: the server binds loopback and the stream is
// read-only.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsMessage is one frame pushed to subscribers.
type wsMessage struct {
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan wsMessage
}

// wsHub tracks websocket subscribers. Slow clients are dropped rather than
// allowed to back-pressure the aggregator's delivery loop.
type wsHub struct {
	mu      sync.Mutex
	clients map[string]*wsClient
}

func newWSHub() *wsHub {
	return &wsHub{clients: make(map[string]*wsClient)}
}

func (h *wsHub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *wsHub) remove(id string) {
	h.mu.Lock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *wsHub) broadcast(topic string, data any) {
	msg := wsMessage{Topic: topic, Timestamp: time.Now().UTC(), Data: data}

	h.mu.Lock()
	var stale []string
	for id, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			stale = append(stale, id)
		}
	}
	h.mu.Unlock()

	for _, id := range stale {
		slog.Warn("dropping slow websocket client", "client", id)
		h.remove(id)
	}
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*wsClient)
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
	}
}

// handleWS upgrades the connection and streams merged snapshot batches until
// the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan wsMessage, 8),
	}
	s.hub.add(client)
	s.logger.Debug("websocket client connected", "client", client.id)

	// First frame: the current merged view, so clients render immediately
	// instead of waiting for the next refresh.
	client.send <- wsMessage{Topic: "sessions", Timestamp: time.Now().UTC(), Data: s.agg.Merged()}

	go s.wsWriteLoop(client)
	s.wsReadLoop(client)
}

func (s *Server) wsWriteLoop(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wsReadLoop discards inbound frames; the stream is one-way. It exists to
// notice disconnects and service pongs.
func (s *Server) wsReadLoop(c *wsClient) {
	defer s.hub.remove(c.id)

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			s.logger.Debug("websocket client disconnected", "client", c.id)
			return
		}
	}
}
