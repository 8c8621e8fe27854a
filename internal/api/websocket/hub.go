package websocket

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fortuna/scout/internal/coordinator"
	"github.com/fortuna/scout/internal/view"
)

type update struct {
	sessionID string
	state     coordinator.State
}

// Hub tracks the sockets of every session and pushes each state
// transition to them as a rendered page
type Hub struct {
	clients   map[string]map[*Client]bool
	clientsMu sync.RWMutex

	latest   map[string]coordinator.State
	latestMu sync.Mutex

	broadcast  chan update
	register   chan *Client
	unregister chan *Client
	refresh    chan *Client
	done       chan struct{}

	totalConnections int64
	totalMessages    int64
	metricsMu        sync.Mutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		latest:     make(map[string]coordinator.State),
		broadcast:  make(chan update, 1000),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		refresh:    make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	log.Println("[websocket] ✓ hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case c := <-h.register:
			h.registerClient(c)

		case c := <-h.unregister:
			h.unregisterClient(c)

		case c := <-h.refresh:
			h.sendLatest(c)

		case u := <-h.broadcast:
			h.deliver(u)
		}
	}
}

// Register subscribes a client to its session. The client gets the last
// known state right away.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Refresh re-sends the last known state to one client
func (h *Hub) Refresh(c *Client) {
	select {
	case h.refresh <- c:
	default:
	}
}

// Seed records a session's state without pushing it
func (h *Hub) Seed(sessionID string, state coordinator.State) {
	h.latestMu.Lock()
	defer h.latestMu.Unlock()
	if cur, ok := h.latest[sessionID]; !ok || state.Version >= cur.Version {
		h.latest[sessionID] = state
	}
}

// Broadcast pushes a session's new state to its subscribers
func (h *Hub) Broadcast(sessionID string, state coordinator.State) {
	h.Seed(sessionID, state)

	select {
	case h.broadcast <- update{sessionID: sessionID, state: state}:
	default:
		log.Printf("[websocket] ⚠️  broadcast buffer full, dropping version %d of %s", state.Version, sessionID)
	}
}

func (h *Hub) registerClient(c *Client) {
	h.clientsMu.Lock()
	if h.clients[c.SessionID] == nil {
		h.clients[c.SessionID] = make(map[*Client]bool)
	}
	h.clients[c.SessionID][c] = true
	total := h.countLocked()
	h.clientsMu.Unlock()

	h.metricsMu.Lock()
	h.totalConnections++
	h.metricsMu.Unlock()

	log.Printf("[websocket] client %s joined %s (total: %d)", c.ID, c.SessionID, total)
	h.sendLatest(c)
}

func (h *Hub) unregisterClient(c *Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	set := h.clients[c.SessionID]
	if !set[c] {
		return
	}
	delete(set, c)
	c.close()
	if len(set) == 0 {
		delete(h.clients, c.SessionID)
		h.latestMu.Lock()
		delete(h.latest, c.SessionID)
		h.latestMu.Unlock()
	}
	log.Printf("[websocket] client %s left %s (total: %d)", c.ID, c.SessionID, h.countLocked())
}

func (h *Hub) sendLatest(c *Client) {
	h.clientsMu.RLock()
	registered := h.clients[c.SessionID][c]
	h.clientsMu.RUnlock()
	if !registered {
		return
	}

	h.latestMu.Lock()
	state, ok := h.latest[c.SessionID]
	h.latestMu.Unlock()
	if !ok {
		return
	}
	h.push(c, state)
}

func (h *Hub) deliver(u update) {
	h.clientsMu.RLock()
	clients := make([]*Client, 0, len(h.clients[u.sessionID]))
	for c := range h.clients[u.sessionID] {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	for _, c := range clients {
		h.push(c, u.state)
	}
}

// push renders the state for the client's mode. Clients that cannot keep
// up are disconnected.
func (h *Hub) push(c *Client, state coordinator.State) {
	msg := ServerMessage{
		Type:      MessageTypePage,
		SessionID: c.SessionID,
		Payload:   view.Build(state, c.Mode()),
		Timestamp: time.Now(),
	}
	if !c.TrySend(msg) {
		log.Printf("[websocket] ⚠️  client %s buffer full, disconnecting", c.ID)
		h.unregisterClient(c)
		return
	}

	h.metricsMu.Lock()
	h.totalMessages++
	h.metricsMu.Unlock()
}

// ClientCount returns the number of connected sockets
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return h.countLocked()
}

// Metrics returns hub counters
func (h *Hub) Metrics() map[string]interface{} {
	active := h.ClientCount()

	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	return map[string]interface{}{
		"active_clients":     active,
		"total_connections":  h.totalConnections,
		"total_messages":     h.totalMessages,
		"broadcast_capacity": cap(h.broadcast),
		"broadcast_usage":    len(h.broadcast),
	}
}

func (h *Hub) countLocked() int {
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

func (h *Hub) shutdown() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	log.Printf("[websocket] shutting down hub (%d active clients)", h.countLocked())
	for sessionID, set := range h.clients {
		for c := range set {
			c.close()
		}
		delete(h.clients, sessionID)
	}
}
