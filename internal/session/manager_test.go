package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fortuna/scout/internal/backend"
	"github.com/fortuna/scout/internal/cache"
	"github.com/fortuna/scout/internal/coordinator"
	"github.com/fortuna/scout/internal/publisher"
	"github.com/fortuna/scout/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAPI struct{}

func (stubAPI) Chat(ctx context.Context, message string) (*backend.ChatAnswer, error) {
	return &backend.ChatAnswer{Type: "text", Content: "answer to " + message}, nil
}

func (stubAPI) PlayerStats(ctx context.Context, playerName string) (*backend.StatsResponse, error) {
	return nil, backend.ErrMissingField
}

func (stubAPI) SearchPlayers(ctx context.Context, query string) ([]backend.PlayerSummary, error) {
	return []backend.PlayerSummary{{Name: query}}, nil
}

func (stubAPI) ListPlayers(ctx context.Context, q backend.ListingQuery) (*backend.ListingResponse, error) {
	return &backend.ListingResponse{Players: []backend.FootballPlayer{}, Total: 0}, nil
}

func (stubAPI) ScrapeSalaries(ctx context.Context) error { return nil }

type memSnapshots struct {
	mu    sync.Mutex
	data  map[string]coordinator.State
	saves int
	err   error
	delay time.Duration
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{data: make(map[string]coordinator.State)}
}

func (s *memSnapshots) Save(ctx context.Context, id string, state coordinator.State) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.err != nil {
		return s.err
	}
	s.data[id] = state.Clone()
	return nil
}

func (s *memSnapshots) Load(ctx context.Context, id string) (coordinator.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[id]
	if !ok {
		return coordinator.State{}, cache.ErrNotFound
	}
	return st.Clone(), nil
}

func (s *memSnapshots) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[id]
	return ok, nil
}

func (s *memSnapshots) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

func (s *memSnapshots) get(id string) (coordinator.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[id]
	return st, ok
}

type memHistory struct {
	mu    sync.Mutex
	turns map[string][]*store.ChatTurn
	seen  map[string]bool
}

func newMemHistory() *memHistory {
	return &memHistory{turns: make(map[string][]*store.ChatTurn), seen: make(map[string]bool)}
}

func (h *memHistory) Upsert(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen[id] = true
	return nil
}

func (h *memHistory) Get(ctx context.Context, id string) (*store.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.seen[id] {
		return nil, store.ErrSessionNotFound
	}
	return &store.Session{SessionID: id, CreatedAt: time.Now()}, nil
}

func (h *memHistory) Delete(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.seen[id] {
		return store.ErrSessionNotFound
	}
	delete(h.seen, id)
	delete(h.turns, id)
	return nil
}

func (h *memHistory) Append(ctx context.Context, id string, turn coordinator.ChatTurn) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns[id] = append(h.turns[id], &store.ChatTurn{
		SessionID: id, Question: turn.Question, Kind: turn.Kind, Content: turn.Content, AskedAt: turn.AskedAt,
	})
	return int64(len(h.turns[id])), nil
}

func (h *memHistory) ListBySession(ctx context.Context, id string, limit int) ([]*store.ChatTurn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.turns[id], nil
}

type memEvents struct {
	mu          sync.Mutex
	turns       []coordinator.ChatTurn
	activities  []publisher.Activity
	activityErr error
}

func (e *memEvents) PublishChatTurn(ctx context.Context, id string, turn coordinator.ChatTurn) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.turns = append(e.turns, turn)
	return nil
}

func (e *memEvents) PublishActivity(ctx context.Context, a publisher.Activity) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.activityErr != nil {
		return e.activityErr
	}
	e.activities = append(e.activities, a)
	return nil
}

type memBroadcaster struct {
	mu       sync.Mutex
	versions []uint64
}

func (b *memBroadcaster) Broadcast(id string, state coordinator.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.versions = append(b.versions, state.Version)
}

func TestManager_CreateAndGet(t *testing.T) {
	snaps := newMemSnapshots()
	hist := newMemHistory()
	m := NewManager(stubAPI{}, WithSnapshots(snaps), WithHistory(hist, hist))
	ctx := context.Background()

	id, err := m.Create(ctx)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)
	assert.True(t, hist.seen[id])
	assert.Contains(t, snaps.data, id)

	c1, err := m.Get(ctx, id)
	require.NoError(t, err)
	c2, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Same(t, c1, c2)
}

func TestManager_GetErrors(t *testing.T) {
	m := NewManager(stubAPI{}, WithSnapshots(newMemSnapshots()))

	_, err := m.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = m.Get(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_FanOut(t *testing.T) {
	snaps := newMemSnapshots()
	hist := newMemHistory()
	events := &memEvents{}
	bc := &memBroadcaster{}
	m := NewManager(stubAPI{},
		WithSnapshots(snaps),
		WithHistory(hist, hist),
		WithEvents(events),
		WithBroadcaster(bc),
	)
	ctx := context.Background()

	id, err := m.Create(ctx)
	require.NoError(t, err)
	c, err := m.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, c.SubmitChatQuery(ctx, "who leads in assists", false))
	require.NoError(t, c.SubmitStructuredSearch(ctx, coordinator.SearchQuery{Name: "Haliburton"}))

	assert.Equal(t, []uint64{1, 2, 3, 4}, bc.versions)
	assert.Equal(t, uint64(4), snaps.data[id].Version)

	require.Len(t, hist.turns[id], 1)
	assert.Equal(t, "answer to who leads in assists", hist.turns[id][0].Content)
	require.Len(t, events.turns, 1)

	require.Len(t, events.activities, 1)
	assert.Equal(t, coordinator.CategorySearch, events.activities[0].Category)
	assert.Equal(t, "Haliburton", events.activities[0].Query)

	turns, err := m.History(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "who leads in assists", turns[0].Question)
}

func TestManager_FanOutFailureIsNotSurfaced(t *testing.T) {
	snaps := newMemSnapshots()
	m := NewManager(stubAPI{}, WithSnapshots(snaps))
	ctx := context.Background()

	id, err := m.Create(ctx)
	require.NoError(t, err)
	c, err := m.Get(ctx, id)
	require.NoError(t, err)

	snaps.err = errors.New("redis down")
	require.NoError(t, c.SubmitChatQuery(ctx, "hello", false))
	assert.Len(t, c.State().History, 1)
}

func TestManager_EvictAndRestore(t *testing.T) {
	snaps := newMemSnapshots()
	m := NewManager(stubAPI{}, WithSnapshots(snaps))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	id, err := m.Create(ctx)
	require.NoError(t, err)
	c, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.NoError(t, c.SubmitChatQuery(ctx, "hello", false))
	version := c.State().Version

	now = now.Add(time.Hour)
	assert.Equal(t, 1, m.Evict(ctx, 30*time.Minute))
	assert.Equal(t, 0, m.Live())

	restored, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.NotSame(t, c, restored)

	s := restored.State()
	assert.Greater(t, s.Version, version)
	assert.True(t, s.ConversationStarted)
	require.Len(t, s.History, 1)
	assert.Equal(t, "answer to hello", s.History[0].Content)
}

func TestManager_HistoryWithoutStore(t *testing.T) {
	m := NewManager(stubAPI{})
	ctx := context.Background()

	id, err := m.Create(ctx)
	require.NoError(t, err)
	c, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.NoError(t, c.SubmitChatQuery(ctx, "one", false))
	require.NoError(t, c.SubmitChatQuery(ctx, "two", true))

	turns, err := m.History(ctx, id, 1)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "two", turns[0].Question)

	assert.Equal(t, 0, m.Evict(ctx, 0), "nothing to restore from")
}

func TestManager_FanOutSinksAreIndependent(t *testing.T) {
	snaps := newMemSnapshots()
	events := &memEvents{activityErr: errors.New("stream down")}
	m := NewManager(stubAPI{}, WithSnapshots(snaps), WithEvents(events))
	ctx := context.Background()

	id, err := m.Create(ctx)
	require.NoError(t, err)
	c, err := m.Get(ctx, id)
	require.NoError(t, err)

	snaps.delay = 50 * time.Millisecond
	require.NoError(t, c.SubmitStructuredSearch(ctx, coordinator.SearchQuery{Name: "Brunson"}))

	saved, ok := snaps.get(id)
	require.True(t, ok)
	assert.Equal(t, c.State().Version, saved.Version)
	assert.Len(t, saved.Results, 1)
}

func TestManager_RebuildsFromHistory(t *testing.T) {
	hist := newMemHistory()
	ctx := context.Background()

	first := NewManager(stubAPI{}, WithHistory(hist, hist))
	id, err := first.Create(ctx)
	require.NoError(t, err)
	c, err := first.Get(ctx, id)
	require.NoError(t, err)
	require.NoError(t, c.SubmitChatQuery(ctx, "mvp odds", false))

	// a new process with an empty snapshot cache
	second := NewManager(stubAPI{}, WithSnapshots(newMemSnapshots()), WithHistory(hist, hist))
	rebuilt, err := second.Get(ctx, id)
	require.NoError(t, err)

	s := rebuilt.State()
	assert.True(t, s.ConversationStarted)
	require.Len(t, s.History, 1)
	assert.Equal(t, "answer to mvp odds", s.History[0].Content)

	_, err = second.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_End(t *testing.T) {
	snaps := newMemSnapshots()
	hist := newMemHistory()
	m := NewManager(stubAPI{}, WithSnapshots(snaps), WithHistory(hist, hist))
	ctx := context.Background()

	id, err := m.Create(ctx)
	require.NoError(t, err)
	c, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.NoError(t, c.SubmitChatQuery(ctx, "hello", false))

	require.NoError(t, m.End(ctx, id))
	assert.Equal(t, 0, m.Live())
	_, ok := snaps.get(id)
	assert.False(t, ok)
	assert.False(t, hist.seen[id])

	_, err = m.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.End(ctx, id), ErrNotFound)
	assert.ErrorIs(t, m.End(ctx, "nope"), ErrInvalidID)
}

func TestManager_EvictResavesExpiredSnapshot(t *testing.T) {
	snaps := newMemSnapshots()
	m := NewManager(stubAPI{}, WithSnapshots(snaps))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	id, err := m.Create(ctx)
	require.NoError(t, err)
	c, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.NoError(t, c.SubmitChatQuery(ctx, "hello", false))

	require.NoError(t, snaps.Delete(ctx, id))
	now = now.Add(time.Hour)
	assert.Equal(t, 1, m.Evict(ctx, 30*time.Minute))

	saved, ok := snaps.get(id)
	require.True(t, ok)
	require.Len(t, saved.History, 1)

	restored, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, restored.State().History, 1)
}

func TestManager_EvictKeepsSessionWhenSnapshotFails(t *testing.T) {
	snaps := newMemSnapshots()
	m := NewManager(stubAPI{}, WithSnapshots(snaps))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	id, err := m.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, snaps.Delete(ctx, id))
	snaps.err = errors.New("redis down")

	now = now.Add(time.Hour)
	assert.Equal(t, 0, m.Evict(ctx, 30*time.Minute))
	assert.Equal(t, 1, m.Live())
}
