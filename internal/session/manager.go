// Package session keeps one coordinator per browser session and fans its
// transitions out to the snapshot cache, the chat history store, the event
// stream and WebSocket subscribers.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fortuna/scout/internal/cache"
	"github.com/fortuna/scout/internal/coordinator"
	"github.com/fortuna/scout/internal/publisher"
	"github.com/fortuna/scout/internal/store"
	"github.com/fortuna/scout/internal/store/repository"
	"github.com/google/uuid"
)

var (
	// ErrInvalidID is returned for IDs that are not UUIDs
	ErrInvalidID = errors.New("invalid session id")

	// ErrNotFound is returned when a session is neither live nor cached
	ErrNotFound = errors.New("session not found")
)

// Snapshots persists coordinator state between requests and restarts
type Snapshots interface {
	Save(ctx context.Context, sessionID string, state coordinator.State) error
	Load(ctx context.Context, sessionID string) (coordinator.State, error)
	Exists(ctx context.Context, sessionID string) (bool, error)
	Delete(ctx context.Context, sessionID string) error
}

// History is the durable chat log
type History interface {
	Append(ctx context.Context, sessionID string, turn coordinator.ChatTurn) (int64, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*store.ChatTurn, error)
}

// Registry records which sessions exist
type Registry interface {
	Upsert(ctx context.Context, sessionID string) error
	Get(ctx context.Context, sessionID string) (*store.Session, error)
	Delete(ctx context.Context, sessionID string) error
}

// Events publishes session activity
type Events interface {
	PublishChatTurn(ctx context.Context, sessionID string, turn coordinator.ChatTurn) error
	PublishActivity(ctx context.Context, a publisher.Activity) error
}

// Broadcaster pushes state to live subscribers
type Broadcaster interface {
	Broadcast(sessionID string, state coordinator.State)
}

// DefaultFanoutTimeout bounds each observer fan-out
const DefaultFanoutTimeout = 5 * time.Second

type entry struct {
	coord    *coordinator.Coordinator
	lastUsed time.Time
}

// Manager owns the live coordinators
type Manager struct {
	api           coordinator.API
	snapshots     Snapshots
	history       History
	registry      Registry
	events        Events
	broadcaster   Broadcaster
	fanoutTimeout time.Duration
	now           func() time.Time

	mu   sync.Mutex
	live map[string]*entry
}

// Option configures a Manager
type Option func(*Manager)

// WithSnapshots enables state persistence
func WithSnapshots(s Snapshots) Option {
	return func(m *Manager) { m.snapshots = s }
}

// WithHistory enables the durable chat log and session registry
func WithHistory(h History, r Registry) Option {
	return func(m *Manager) {
		m.history = h
		m.registry = r
	}
}

// WithEvents enables the event stream
func WithEvents(e Events) Option {
	return func(m *Manager) { m.events = e }
}

// WithBroadcaster enables WebSocket push
func WithBroadcaster(b Broadcaster) Option {
	return func(m *Manager) { m.broadcaster = b }
}

// WithFanoutTimeout overrides DefaultFanoutTimeout
func WithFanoutTimeout(d time.Duration) Option {
	return func(m *Manager) { m.fanoutTimeout = d }
}

// NewManager creates a session manager over the given backend
func NewManager(api coordinator.API, opts ...Option) *Manager {
	m := &Manager{
		api:           api,
		fanoutTimeout: DefaultFanoutTimeout,
		now:           time.Now,
		live:          make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a new session and returns its ID
func (m *Manager) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()

	if m.registry != nil {
		if err := m.registry.Upsert(ctx, id); err != nil {
			return "", fmt.Errorf("registering session: %w", err)
		}
	}

	c := coordinator.New(m.api, coordinator.WithObserver(m.observer(id, coordinator.NewState())))
	if m.snapshots != nil {
		if err := m.snapshots.Save(ctx, id, c.State()); err != nil {
			return "", fmt.Errorf("saving initial snapshot: %w", err)
		}
	}

	m.mu.Lock()
	m.live[id] = &entry{coord: c, lastUsed: m.now()}
	m.mu.Unlock()

	log.Printf("[session] created %s", id)
	return id, nil
}

// Get returns the live coordinator of a session. A session not in memory
// is restored from its snapshot, or rebuilt from the chat history store
// when the snapshot has expired.
func (m *Manager) Get(ctx context.Context, id string) (*coordinator.Coordinator, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	m.mu.Lock()
	if e, ok := m.live[id]; ok {
		e.lastUsed = m.now()
		m.mu.Unlock()
		return e.coord, nil
	}
	m.mu.Unlock()

	saved, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	c := coordinator.New(m.api, coordinator.WithObserver(m.observer(id, saved)))
	c.Restore(saved)

	m.mu.Lock()
	defer m.mu.Unlock()
	// another request may have restored it meanwhile
	if e, ok := m.live[id]; ok {
		e.lastUsed = m.now()
		return e.coord, nil
	}
	m.live[id] = &entry{coord: c, lastUsed: m.now()}

	log.Printf("[session] restored %s (version %d)", id, saved.Version)
	return c, nil
}

// load finds the last known state of a session that is not in memory
func (m *Manager) load(ctx context.Context, id string) (coordinator.State, error) {
	if m.snapshots != nil {
		saved, err := m.snapshots.Load(ctx, id)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			return coordinator.State{}, fmt.Errorf("restoring session %s: %w", id, err)
		}
	}

	if m.registry == nil {
		return coordinator.State{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	sess, err := m.registry.Get(ctx, id)
	if errors.Is(err, store.ErrSessionNotFound) {
		return coordinator.State{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return coordinator.State{}, fmt.Errorf("looking up session %s: %w", id, err)
	}

	state := coordinator.NewState()
	if m.history != nil {
		rows, err := m.history.ListBySession(ctx, id, 0)
		if err != nil {
			return coordinator.State{}, fmt.Errorf("loading history of %s: %w", id, err)
		}
		for _, row := range rows {
			state.History = append(state.History, repository.ToChatTurn(row))
		}
		state.ConversationStarted = len(state.History) > 0
	}

	log.Printf("[session] rebuilt %s from chat history (%d turns, created %s)",
		id, len(state.History), sess.CreatedAt.Format(time.RFC3339))
	return state, nil
}

// End forgets a session: its coordinator, snapshot and chat history
func (m *Manager) End(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	m.mu.Lock()
	_, live := m.live[id]
	delete(m.live, id)
	m.mu.Unlock()

	known := live
	if m.snapshots != nil {
		ok, err := m.snapshots.Exists(ctx, id)
		if err != nil {
			return fmt.Errorf("checking snapshot of %s: %w", id, err)
		}
		if ok {
			known = true
			if err := m.snapshots.Delete(ctx, id); err != nil {
				return fmt.Errorf("deleting snapshot of %s: %w", id, err)
			}
		}
	}
	if m.registry != nil {
		err := m.registry.Delete(ctx, id)
		switch {
		case err == nil:
			known = true
		case !errors.Is(err, store.ErrSessionNotFound):
			return fmt.Errorf("deleting session %s: %w", id, err)
		}
	}

	if !known {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	log.Printf("[session] ended %s", id)
	return nil
}

// History returns a session's chat turns, oldest first. Without a durable
// log the in-memory history is used.
func (m *Manager) History(ctx context.Context, id string, limit int) ([]coordinator.ChatTurn, error) {
	c, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if m.history == nil {
		turns := c.State().History
		if limit > 0 && len(turns) > limit {
			turns = turns[len(turns)-limit:]
		}
		return turns, nil
	}

	rows, err := m.history.ListBySession(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	turns := make([]coordinator.ChatTurn, 0, len(rows))
	for _, row := range rows {
		turns = append(turns, repository.ToChatTurn(row))
	}
	return turns, nil
}

// Evict drops coordinators idle for longer than maxIdle that have no
// request in flight. Their snapshots stay in the cache so the next Get
// restores them; a session whose snapshot has expired is saved again
// first. Without a snapshot cache nothing is evicted.
func (m *Manager) Evict(ctx context.Context, maxIdle time.Duration) int {
	if m.snapshots == nil {
		return 0
	}
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	candidates := make(map[string]*coordinator.Coordinator)
	for id, e := range m.live {
		if e.lastUsed.Before(cutoff) && !busy(e.coord.State()) {
			candidates[id] = e.coord
		}
	}
	m.mu.Unlock()

	evicted := 0
	for id, c := range candidates {
		if err := m.ensureSnapshot(ctx, id, c); err != nil {
			log.Printf("[session] ⚠️  keeping %s in memory: %v", id, err)
			continue
		}

		m.mu.Lock()
		if e, ok := m.live[id]; ok && e.coord == c && e.lastUsed.Before(cutoff) && !busy(c.State()) {
			delete(m.live, id)
			evicted++
		}
		m.mu.Unlock()
	}
	return evicted
}

func (m *Manager) ensureSnapshot(ctx context.Context, id string, c *coordinator.Coordinator) error {
	ok, err := m.snapshots.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("checking snapshot: %w", err)
	}
	if ok {
		return nil
	}
	if err := m.snapshots.Save(ctx, id, c.State()); err != nil {
		return fmt.Errorf("re-saving snapshot: %w", err)
	}
	return nil
}

// Live returns the number of sessions in memory
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func busy(s coordinator.State) bool {
	for _, cat := range coordinator.Categories {
		if s.Loading(cat) {
			return true
		}
	}
	return false
}
