package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Server represents the REST API server
type Server struct {
	port   string
	server *http.Server
}

// NewRouter builds the API routes
func NewRouter(handler *Handler, corsOrigins []string) *mux.Router {
	router := mux.NewRouter()

	// Apply middleware
	router.Use(RecoveryMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(CORSMiddleware(corsOrigins))

	// Health check
	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Sessions
	api.HandleFunc("/sessions", handler.CreateSession).Methods("POST", "OPTIONS")
	api.HandleFunc("/sessions/{sessionID}", handler.GetPage).Methods("GET")
	api.HandleFunc("/sessions/{sessionID}", handler.EndSession).Methods("DELETE")
	api.HandleFunc("/sessions/{sessionID}/history", handler.GetHistory).Methods("GET")

	// Basketball
	api.HandleFunc("/sessions/{sessionID}/chat", handler.SubmitChat).Methods("POST", "OPTIONS")
	api.HandleFunc("/sessions/{sessionID}/search", handler.SubmitSearch).Methods("POST", "OPTIONS")
	api.HandleFunc("/sessions/{sessionID}/stats", handler.FetchStats).Methods("POST", "OPTIONS")
	api.HandleFunc("/sessions/{sessionID}/stats", handler.CloseProfile).Methods("DELETE")

	// Football
	api.HandleFunc("/sessions/{sessionID}/listing", handler.SearchListing).Methods("POST", "OPTIONS")
	api.HandleFunc("/sessions/{sessionID}/listing/page", handler.ChangePage).Methods("POST", "OPTIONS")
	api.HandleFunc("/sessions/{sessionID}/listing/sort", handler.SortListing).Methods("POST", "OPTIONS")

	// Profile images
	api.HandleFunc("/profile/image", handler.GetProfileImage).Methods("GET")

	return router
}

// NewServer creates a new REST API server
func NewServer(port string, handler *Handler, corsOrigins []string) *Server {
	return &Server{
		port: port,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%s", port),
			Handler:           NewRouter(handler, corsOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start starts the REST API server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
