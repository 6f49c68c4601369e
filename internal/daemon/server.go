package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/loopr-dev/loopr/internal/events"
	"github.com/loopr-dev/loopr/internal/metrics"
)

// Server accepts IPC connections on a Unix domain socket and serves
// /healthz, /metrics, and a read-only /events WebSocket stream over a
// separate loopback HTTP listener, per spec.md §6. Grounded on
// internal/gateway/server.go's chi-routed http.Server shape; the IPC
// socket's own framing is adapted from internal/gateway/ws/hub.go's
// client registry to a raw length-prefixed Unix socket (the control
// plane doesn't need a WebSocket upgrade), while /events keeps
// coder/websocket wired for exactly the one-way broadcast Hub also
// did, now serving a remote dashboard rather than the interactive TUI.
type Server struct {
	handler *Handler
	bus     *events.Bus

	socketPath string
	httpAddr   string
	httpServer *http.Server
	wsHub      *wsHub

	mu      sync.Mutex
	clients map[*client]struct{}
	unsub   func()
}

// NewServer builds a Server. socketPath is the Unix socket the IPC
// surface listens on; httpAddr (e.g. "127.0.0.1:9090") is where
// /metrics and /healthz are served. mtr may be nil, in which case
// /metrics reports 503 rather than panicking.
func NewServer(handler *Handler, bus *events.Bus, mtr *metrics.Metrics, socketPath, httpAddr string) *Server {
	s := &Server{
		handler:    handler,
		bus:        bus,
		socketPath: socketPath,
		httpAddr:   httpAddr,
		clients:    make(map[*client]struct{}),
		wsHub:      newWSHub(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/events", s.handleEvents)
	r.Handle("/metrics", mtr.Handler())
	s.httpServer = &http.Server{Addr: httpAddr, Handler: r}

	if bus != nil {
		s.unsub = bus.Subscribe(s.broadcastEvent)
	}
	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// broadcastEvent fans a published Bus event out to every connected IPC
// client as an event Frame, and to every /events WebSocket observer as
// a JSON message.
func (s *Server) broadcastEvent(e events.Event) {
	f, err := newEventFrame(string(e.Type), e.Payload)
	if err != nil {
		slog.Error("daemon: marshal event frame", "error", err)
		return
	}
	s.mu.Lock()
	for c := range s.clients {
		select {
		case c.send <- f:
		default:
			slog.Warn("daemon: client send buffer full, dropping event", "event", e.Type)
		}
	}
	s.mu.Unlock()

	s.wsHub.broadcast(e)
}

// Run starts both listeners and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("daemon: remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("daemon: listen %s: %w", s.socketPath, err)
	}

	errCh := make(chan error, 2)

	go func() {
		errCh <- s.acceptLoop(ctx, ln)
	}()

	go func() {
		slog.Info("daemon: serving metrics/health", "addr", s.httpAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("daemon: http server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.Shutdown()
		ln.Close()
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		s.Shutdown()
		ln.Close()
		return err
	}
}

// Shutdown closes every connected IPC and WebSocket client, plus the
// HTTP server.
func (s *Server) Shutdown() {
	if s.unsub != nil {
		s.unsub()
	}
	_ = s.httpServer.Shutdown(context.Background())

	s.wsHub.closeAll()

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.conn.Close()
		close(c.send)
		delete(s.clients, c)
	}
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	slog.Info("daemon: ipc socket listening", "path", s.socketPath)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("daemon: accept: %w", err)
			}
		}
		c := &client{conn: conn, send: make(chan Frame, 64)}
		s.register(c)
		go s.serveClient(c)
	}
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) serveClient(c *client) {
	defer func() {
		s.unregister(c)
		c.conn.Close()
	}()

	go c.writePump()

	for {
		f, err := readFrame(c.conn)
		if err != nil {
			return
		}
		if f.Type != FrameTypeRequest {
			continue
		}
		payload, ipcErr := s.handler.Dispatch(f)
		resp, err := newResponseFrame(f.ID, payload, ipcErr)
		if err != nil {
			slog.Error("daemon: build response frame", "error", err)
			continue
		}
		select {
		case c.send <- resp:
		default:
			slog.Warn("daemon: client send buffer full, dropping response", "id", f.ID)
		}
	}
}

// client is one accepted IPC connection.
type client struct {
	conn net.Conn
	send chan Frame
}

func (c *client) writePump() {
	for f := range c.send {
		if err := writeFrame(c.conn, f); err != nil {
			return
		}
	}
}
