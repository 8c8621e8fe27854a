package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/fortuna/scout/internal/backend"
	"github.com/fortuna/scout/internal/coordinator"
	"github.com/fortuna/scout/internal/profile"
	"github.com/fortuna/scout/internal/session"
	"github.com/fortuna/scout/internal/view"
	"github.com/gorilla/mux"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 64 << 10

// Sessions is what the handlers need from the session manager
type Sessions interface {
	Create(ctx context.Context) (string, error)
	Get(ctx context.Context, id string) (*coordinator.Coordinator, error)
	History(ctx context.Context, id string, limit int) ([]coordinator.ChatTurn, error)
	End(ctx context.Context, id string) error
}

// ImageResolver finds a player's picture on a profile page
type ImageResolver interface {
	ImageURL(ctx context.Context, profileURL string) (string, error)
}

// HealthFunc checks one dependency
type HealthFunc func(ctx context.Context) error

// Handler contains dependencies for HTTP handlers
type Handler struct {
	sessions Sessions
	images   ImageResolver
	checks   map[string]HealthFunc
}

// NewHandler creates a new handler. checks are reported by /health.
func NewHandler(sessions Sessions, images ImageResolver, checks map[string]HealthFunc) *Handler {
	return &Handler{
		sessions: sessions,
		images:   images,
		checks:   checks,
	}
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "healthy"
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":       status,
		"service":      "scout",
		"dependencies": deps,
	})
}

// CreateSession starts a session and returns its first page
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	mode, ok := h.mode(w, r, view.ModeBasketball)
	if !ok {
		return
	}

	id, err := h.sessions.Create(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create session", err)
		return
	}
	c, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create session", err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": id,
		"page":       view.Build(c.State(), mode),
	})
}

// EndSession forgets a session and its history
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(r.Context(), mux.Vars(r)["sessionID"]); err != nil {
		h.sessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPage returns the current page of a session
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, view.ModeBasketball, func(ctx context.Context, c *coordinator.Coordinator) error {
		return nil
	})
}

// GetHistory returns the persisted chat turns of a session
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	turns, err := h.sessions.History(r.Context(), mux.Vars(r)["sessionID"], limit)
	if err != nil {
		h.sessionError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"turns": turns,
		"count": len(turns),
	})
}

type chatRequest struct {
	Message  string `json:"message"`
	FollowUp bool   `json:"follow_up"`
}

// SubmitChat asks the assistant a question
func (h *Handler) SubmitChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	h.run(w, r, view.ModeBasketball, func(ctx context.Context, c *coordinator.Coordinator) error {
		return c.SubmitChatQuery(ctx, req.Message, req.FollowUp)
	})
}

// SubmitSearch runs a structured player search
func (h *Handler) SubmitSearch(w http.ResponseWriter, r *http.Request) {
	var q coordinator.SearchQuery
	if !decode(w, r, &q) {
		return
	}
	h.run(w, r, view.ModeBasketball, func(ctx context.Context, c *coordinator.Coordinator) error {
		return c.SubmitStructuredSearch(ctx, q)
	})
}

type statsRequest struct {
	PlayerName string `json:"player_name"`
}

// FetchStats opens the profile of a player
func (h *Handler) FetchStats(w http.ResponseWriter, r *http.Request) {
	var req statsRequest
	if !decode(w, r, &req) {
		return
	}
	h.run(w, r, view.ModeBasketball, func(ctx context.Context, c *coordinator.Coordinator) error {
		return c.FetchPlayerStats(ctx, req.PlayerName)
	})
}

// CloseProfile leaves the profile view
func (h *Handler) CloseProfile(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, view.ModeBasketball, func(ctx context.Context, c *coordinator.Coordinator) error {
		c.CloseProfile()
		return nil
	})
}

// SearchListing loads the first listing page for new filters
func (h *Handler) SearchListing(w http.ResponseWriter, r *http.Request) {
	var filters coordinator.ListingFilters
	if !decode(w, r, &filters) {
		return
	}
	h.run(w, r, view.ModeFootball, func(ctx context.Context, c *coordinator.Coordinator) error {
		return c.SearchListing(ctx, filters)
	})
}

type pageRequest struct {
	Direction coordinator.Direction `json:"direction"`
}

// ChangePage moves the listing one page
func (h *Handler) ChangePage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if !decode(w, r, &req) {
		return
	}
	h.run(w, r, view.ModeFootball, func(ctx context.Context, c *coordinator.Coordinator) error {
		return c.ChangePage(ctx, req.Direction)
	})
}

type sortRequest struct {
	Field string `json:"field"`
}

// SortListing toggles the listing order on a column
func (h *Handler) SortListing(w http.ResponseWriter, r *http.Request) {
	var req sortRequest
	if !decode(w, r, &req) {
		return
	}
	h.run(w, r, view.ModeFootball, func(ctx context.Context, c *coordinator.Coordinator) error {
		return c.SortBy(ctx, req.Field)
	})
}

// GetProfileImage resolves a player picture from a profile page URL
func (h *Handler) GetProfileImage(w http.ResponseWriter, r *http.Request) {
	pageURL := r.URL.Query().Get("url")
	if pageURL == "" {
		respondError(w, http.StatusBadRequest, "url parameter required", nil)
		return
	}

	img, err := h.images.ImageURL(r.Context(), pageURL)
	switch {
	case errors.Is(err, profile.ErrNoImage):
		respondError(w, http.StatusNotFound, "No image found", nil)
		return
	case errors.Is(err, profile.ErrInvalidURL), errors.Is(err, profile.ErrHostNotAllowed):
		respondError(w, http.StatusBadRequest, "Profile URL not allowed", err)
		return
	case err != nil:
		respondError(w, http.StatusBadGateway, "Failed to resolve image", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"image_url": img})
}

// run looks up the session, applies op and responds with the new page.
// Outcomes the coordinator records in state (notices, misses, stale
// responses) are not request errors.
func (h *Handler) run(w http.ResponseWriter, r *http.Request, fallback view.Mode, op func(context.Context, *coordinator.Coordinator) error) {
	mode, ok := h.mode(w, r, fallback)
	if !ok {
		return
	}

	c, err := h.sessions.Get(r.Context(), mux.Vars(r)["sessionID"])
	if err != nil {
		h.sessionError(w, err)
		return
	}

	// a closed tab must not turn a pending answer into an error
	ctx := context.WithoutCancel(r.Context())

	status := http.StatusOK
	if err := op(ctx, c); err != nil {
		switch {
		case errors.Is(err, coordinator.ErrInvalidSortField), errors.Is(err, coordinator.ErrInvalidDirection):
			respondError(w, http.StatusBadRequest, "Invalid listing request", err)
			return
		case errors.Is(err, coordinator.ErrPageOutOfRange):
			status = http.StatusConflict
		case backend.IsTransport(err) && !isCoordinatorOutcome(err):
			status = http.StatusBadGateway
		}
	}

	respondJSON(w, status, view.Build(c.State(), mode))
}

func isCoordinatorOutcome(err error) bool {
	return errors.Is(err, coordinator.ErrBlankQuery) ||
		errors.Is(err, coordinator.ErrNameRequired) ||
		errors.Is(err, coordinator.ErrStale)
}

func (h *Handler) mode(w http.ResponseWriter, r *http.Request, fallback view.Mode) (view.Mode, bool) {
	raw := r.URL.Query().Get("mode")
	if raw == "" {
		return fallback, true
	}
	mode, err := view.ParseMode(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid mode", err)
		return "", false
	}
	return mode, true
}

func (h *Handler) sessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidID):
		respondError(w, http.StatusBadRequest, "Invalid session ID", err)
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, "Session not found", err)
	default:
		respondError(w, http.StatusInternalServerError, "Failed to load session", err)
	}
}

// decode reads a JSON body, responding 400 when it is malformed
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// respondJSON writes a JSON response. The body is encoded before the
// status goes out so an encoding failure can still become a 500.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		log.Printf("[rest] ⚠️  encoding %d response failed: %v", status, err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"Failed to encode response","status":500}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
