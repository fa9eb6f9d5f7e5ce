package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"AssistChat/internal/controller"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// hub fans controller snapshots out to websocket clients
type hub struct {
	logger  *slog.Logger
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan controller.Snapshot
	once sync.Once
	// last queued version, guarded by hub.mu
	version uint64
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

func newHub(logger *slog.Logger) *hub {
	return &hub{logger: logger, clients: make(map[*wsClient]struct{})}
}

// broadcast queues snap for every client that has not already been sent a
// newer one. A client that cannot keep up is dropped rather than stalling
// the controller.
func (h *hub) broadcast(snap controller.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if snap.Version <= c.version {
			continue
		}
		select {
		case c.send <- snap:
			c.version = snap.Version
		default:
			h.logger.Warn("dropping slow websocket client")
			delete(h.clients, c)
			c.close()
		}
	}
}

// register adds c and queues initial as its first snapshot. Both happen under
// the hub lock so no broadcast can slip in between.
func (h *hub) register(c *wsClient, initial func() controller.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := initial()
	c.send <- snap
	c.version = snap.Version
	h.clients[c] = struct{}{}
}

func (h *hub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// handleWebSocket streams a snapshot on connect and after every change.
// Incoming frames are ignored; chat input goes through POST /messages.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan controller.Snapshot, sendBuffer)}
	s.hub.register(client, s.ctl.Snapshot)

	go s.writePump(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.unregister(client)
}

func (s *Server) writePump(c *wsClient) {
	defer c.conn.Close()
	for snap := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			s.logger.Debug("websocket set write deadline failed", "error", err)
		}
		if err := c.conn.WriteJSON(snap); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			s.hub.unregister(c)
			break
		}
	}
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	if err != nil {
		s.logger.Debug("websocket close frame failed", "error", err)
	}
}
