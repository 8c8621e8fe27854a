package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/fortuna/scout/internal/coordinator"
	"github.com/fortuna/scout/internal/session"
	"github.com/fortuna/scout/internal/view"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Sessions looks up the coordinator of a session
type Sessions interface {
	Get(ctx context.Context, id string) (*coordinator.Coordinator, error)
}

// Server serves the per-session state push
type Server struct {
	server   *http.Server
	hub      *Hub
	sessions Sessions
	upgrader websocket.Upgrader
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewServer creates a WebSocket server. An empty origin list accepts any
// origin.
func NewServer(hub *Hub, sessions Sessions, allowedOrigins []string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		hub:      hub,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handler returns the server's routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/sessions/{id}", s.handleSession)
	mux.HandleFunc("GET /ws/health", s.handleHealth)
	return mux
}

// Start runs the hub and listens on the given port
func (s *Server) Start(port string) error {
	go s.hub.Run(s.ctx)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: s.Handler(),
	}

	log.Printf("[websocket] listening on :%s", port)
	return s.server.ListenAndServe()
}

// handleSession upgrades the connection and subscribes it to a session
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	mode, err := view.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	coord, err := s.sessions.Get(r.Context(), sessionID)
	switch {
	case errors.Is(err, session.ErrInvalidID):
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	case errors.Is(err, session.ErrNotFound):
		http.Error(w, "session not found", http.StatusNotFound)
		return
	case err != nil:
		log.Printf("[websocket] session %s lookup failed: %v", sessionID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] ⚠️  upgrade error: %v", err)
		return
	}

	s.hub.Seed(sessionID, coord.State())

	c := NewClient(uuid.NewString(), sessionID, conn, s.hub, mode)
	s.hub.Register(c)

	// pumps outlive the request
	go c.writePump(s.ctx)
	go c.readPump(s.ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.hub.Metrics()
	health["status"] = "healthy"

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// Shutdown stops the hub and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
