package gateway

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// connection is one accepted websocket upgrade: a session id, the user it
// is bound to, and a buffered outbound queue drained by writePump.
// Grounded on the teacher's pack-wide Client{UserID, Conn, Send chan}
// shape (abdulsametsahin-poker-engine/.../websocket/client.go).
type connection struct {
	sid    string
	userID int64
	ws     *websocket.Conn
	send   chan outboundEnvelope
}

// Hub is the Gateway's connection registry. It implements
// sessionrouter.Sender so the Session Router can deliver to whichever
// session is live in this process, without knowing anything about
// websockets itself.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*connection
	log   *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{conns: make(map[string]*connection), log: log}
}

func (h *Hub) register(c *connection) {
	h.mu.Lock()
	h.conns[c.sid] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(sid string) {
	h.mu.Lock()
	c, ok := h.conns[sid]
	if ok {
		delete(h.conns, sid)
	}
	h.mu.Unlock()
	if ok {
		close(c.send)
	}
}

// Send implements sessionrouter.Sender: best-effort, non-blocking delivery
// to one session. A session with no live connection in this process (or a
// slow consumer whose queue is full) silently drops the event — the spec
// treats emissions as fire-and-forget (§5).
func (h *Hub) Send(sessionID string, event string, payload interface{}) {
	h.mu.RLock()
	c, ok := h.conns[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.send <- outboundEnvelope{Type: event, Payload: payload}:
	default:
		h.log.Warn("dropping event to slow consumer", "sid", sessionID, "event", event)
	}
}
