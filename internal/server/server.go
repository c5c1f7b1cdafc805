package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Server is the transport gateway: HTTP polling, WebSocket and operator
// endpoints, all forwarding to one Hub.
type Server struct {
	addr        string
	hub         *Hub
	upgrader    websocket.Upgrader
	router      *mux.Router
	httpServer  *http.Server
	connections map[*Connection]struct{}
	logger      *log.Logger
	mu          sync.Mutex
}

// NewServer creates a gateway for hub listening on addr.
func NewServer(addr string, hub *Hub, logger *log.Logger) *Server {
	s := &Server{
		addr: addr,
		hub:  hub,
		upgrader: websocket.Upgrader{
			// Devices are lab tablets served from arbitrary origins.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]struct{}),
		logger:      logger.WithPrefix("server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	admin.HandleFunc("/start", s.handleStart).Methods(http.MethodPost)
	admin.HandleFunc("/stop", s.handleStop).Methods(http.MethodPost)
	admin.HandleFunc("/save", s.handleSave).Methods(http.MethodPost)

	// Everything else is a request line encoded in the path.
	r.PathPrefix("/").HandlerFunc(s.handlePoll).Methods(http.MethodGet)
	return r
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and blocks until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("Starting server", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes WebSocket connections and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.Close()
	}
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	line := strings.TrimPrefix(r.URL.Path, "/")
	reply, err := s.hub.Call(r.Context(), line)
	if err != nil {
		s.logger.Debug("Poll request dropped", "line", line, "error", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprint(w, reply)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	conn := NewConnection(ws, s.hub, s.logger)
	s.mu.Lock()
	s.connections[conn] = struct{}{}
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Info("Client connected", "remote", r.RemoteAddr, "total", total)

	conn.Start()
	go func() {
		<-conn.Done()
		s.mu.Lock()
		delete(s.connections, conn)
		total := len(s.connections)
		s.mu.Unlock()
		s.logger.Info("Client disconnected", "remote", r.RemoteAddr, "total", total)
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.hub.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, status)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, "start", func(ctx context.Context, rt *Router) error { return rt.Start(ctx) })
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, "stop", func(ctx context.Context, rt *Router) error { return rt.RequestStop(ctx) })
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, "save", func(ctx context.Context, rt *Router) error { return rt.Save(ctx) })
}

func (s *Server) admin(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, *Router) error) {
	var phase, turnNo any
	err := s.hub.Do(r.Context(), func(ctx context.Context, rt *Router) error {
		if err := fn(ctx, rt); err != nil {
			return err
		}
		phase, turnNo = rt.Phase(), rt.Turn()
		return nil
	})
	if err != nil {
		s.logger.Error("Admin action failed", "action", action, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.Info("Admin action", "action", action, "phase", phase, "turn", turnNo)
	writeJSON(w, map[string]any{"action": action, "phase": phase, "turn": turnNo})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
