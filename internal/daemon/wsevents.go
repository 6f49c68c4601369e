package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/loopr-dev/loopr/internal/events"
)

// wsHub fans Bus events out to read-only WebSocket observers connected
// to /events, for a remote dashboard watching unit lifecycle without
// dialing the IPC socket. Grounded on internal/gateway/ws/hub.go's
// client registry and broadcast loop, narrowed to one direction (no
// inbound request handling — that's the IPC socket's job) and stripped
// of its session/plugin/encryption concerns, which have no Loopr
// analogue.
type wsHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newWSHub() *wsHub {
	return &wsHub{clients: make(map[*wsClient]struct{})}
}

// broadcast fans e out to every connected observer as JSON. Grounded on
// Server.broadcastEvent's same best-effort, drop-on-full-buffer shape.
func (h *wsHub) broadcast(e events.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("daemon: marshal ws event", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slog.Warn("daemon: ws observer buffer full, dropping event", "event", e.Type)
		}
	}
}

func (h *wsHub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *wsHub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		close(c.send)
		delete(h.clients, c)
	}
}

// handleEvents upgrades r to a WebSocket and streams Bus events to it
// until the client disconnects or the connection errors. Local-only:
// InsecureSkipVerify matches the loopback-only scope /metrics and
// /healthz already assume.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		slog.Error("daemon: ws accept", "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, 64)}
	s.wsHub.register(c)

	ctx := r.Context()
	defer func() {
		s.wsHub.unregister(c)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
