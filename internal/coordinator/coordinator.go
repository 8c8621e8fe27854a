package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fortuna/scout/internal/backend"
)

// API is the slice of the analytics backend the coordinator drives
type API interface {
	Chat(ctx context.Context, message string) (*backend.ChatAnswer, error)
	PlayerStats(ctx context.Context, playerName string) (*backend.StatsResponse, error)
	SearchPlayers(ctx context.Context, query string) ([]backend.PlayerSummary, error)
	ListPlayers(ctx context.Context, q backend.ListingQuery) (*backend.ListingResponse, error)
	ScrapeSalaries(ctx context.Context) error
}

// Observer is notified after every transition, in transition order.
// Implementations must not call back into the coordinator.
type Observer interface {
	StateChanged(state State)
	ChatTurnAppended(turn ChatTurn)
}

// Direction moves the listing cursor
type Direction string

const (
	DirectionNext Direction = "next"
	DirectionPrev Direction = "prev"
)

// SortFields are the listing columns the backend can order by
var SortFields = []string{"nombre", "equipo", "posicion", "edad", "nacionalidad", "salario_semanal", "salario_anual"}

// Coordinator owns the client-visible state of one page and sequences the
// backend calls that change it. Operations of different categories run in
// parallel; within a category the latest request wins.
type Coordinator struct {
	api      API
	observer Observer
	now      func() time.Time

	mu      sync.Mutex
	state   State
	seq     map[Category]uint64
	cancels map[Category]context.CancelFunc

	// held from the end of a transition until observers have seen it
	notifyMu sync.Mutex

	warmMu sync.Mutex
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithObserver registers the transition observer
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		c.observer = o
	}
}

// WithState starts the coordinator from a saved state
func WithState(s State) Option {
	return func(c *Coordinator) {
		c.state = restored(s.Clone())
	}
}

// WithClock overrides the clock used to stamp chat turns
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// New creates a coordinator over the given backend
func New(api API, opts ...Option) *Coordinator {
	c := &Coordinator{
		api:     api,
		now:     time.Now,
		state:   NewState(),
		seq:     make(map[Category]uint64),
		cancels: make(map[Category]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns a copy of the current state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Restore replaces the state with a saved one. In-flight requests are
// cancelled and their responses discarded.
func (c *Coordinator) Restore(saved State) {
	c.mu.Lock()
	for _, cat := range Categories {
		c.seq[cat]++
		if cancel := c.cancels[cat]; cancel != nil {
			cancel()
			delete(c.cancels, cat)
		}
	}
	if saved.Version > c.state.Version {
		c.state.Version = saved.Version
	}
	c.replaceLocked(restored(saved.Clone()), nil)
}

// SubmitChatQuery asks the assistant a question. Blank input is a no-op
// returning ErrBlankQuery. The text is sent as typed.
func (c *Coordinator) SubmitChatQuery(ctx context.Context, text string, isFollowUp bool) error {
	if strings.TrimSpace(text) == "" {
		return ErrBlankQuery
	}

	reqCtx, seq := c.start(ctx, CategoryChat, startChat)

	answer, err := c.api.Chat(reqCtx, text)

	applied := c.finish(CategoryChat, seq, func(s State) State {
		if err != nil {
			if errors.Is(err, backend.ErrMissingField) {
				return fail(s, CategoryChat, MsgNoAnswer)
			}
			return fail(s, CategoryChat, MsgServerUnreachable)
		}
		return chatAnswered(s, text, isFollowUp, answer, c.now())
	})
	if !applied {
		return ErrStale
	}
	if err != nil {
		log.Printf("[coordinator] chat failed: %v", err)
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}

// SubmitStructuredSearch looks players up by the Name filter. A blank
// name raises a validation notice without calling the backend.
func (c *Coordinator) SubmitStructuredSearch(ctx context.Context, q SearchQuery) error {
	q.Name = strings.TrimSpace(q.Name)
	if q.Name == "" {
		c.update(func(s State) State {
			s.Query = q
			return reject(s, CategorySearch, MsgNameRequired)
		})
		return ErrNameRequired
	}

	reqCtx, seq := c.start(ctx, CategorySearch, func(s State) State {
		return startSearch(s, q)
	})

	players, err := c.api.SearchPlayers(reqCtx, q.Name)

	applied := c.finish(CategorySearch, seq, func(s State) State {
		switch {
		case err == nil:
			return searchAnswered(s, players)
		case errors.Is(err, backend.ErrMissingField):
			return searchMissed(s)
		default:
			return fail(s, CategorySearch, MsgServerUnreachable)
		}
	})
	if !applied {
		return ErrStale
	}
	if err != nil && backend.IsTransport(err) {
		log.Printf("[coordinator] search %q failed: %v", q.Name, err)
		return fmt.Errorf("search: %w", err)
	}
	return nil
}

// FetchPlayerStats loads the stats snapshot for a player by display name.
// A miss is a notice, not an error.
func (c *Coordinator) FetchPlayerStats(ctx context.Context, playerName string) error {
	name := strings.TrimSpace(playerName)
	if name == "" {
		c.update(func(s State) State {
			return reject(s, CategoryStats, MsgNameRequired)
		})
		return ErrNameRequired
	}

	reqCtx, seq := c.start(ctx, CategoryStats, startStats)

	resp, err := c.api.PlayerStats(reqCtx, name)

	applied := c.finish(CategoryStats, seq, func(s State) State {
		switch {
		case err == nil:
			return statsAnswered(s, name, resp)
		case errors.Is(err, backend.ErrMissingField):
			return miss(s, CategoryStats, MsgNoStatsFound)
		default:
			return fail(s, CategoryStats, MsgServerUnreachable)
		}
	})
	if !applied {
		return ErrStale
	}
	if err != nil && backend.IsTransport(err) {
		log.Printf("[coordinator] stats for %q failed: %v", name, err)
		return fmt.Errorf("stats: %w", err)
	}
	return nil
}

// CloseProfile discards the stats snapshot when the profile view is left.
// A stats request still in flight is cancelled.
func (c *Coordinator) CloseProfile() {
	c.mu.Lock()
	if c.state.Phases.Stats == PhaseLoading {
		c.seq[CategoryStats]++
		if cancel := c.cancels[CategoryStats]; cancel != nil {
			cancel()
			delete(c.cancels, CategoryStats)
		}
		c.state.Phases.Stats = PhaseIdle
	}
	c.commitLocked(closeProfile(c.state))
}

// SearchListing fetches the first page of the listing for new filters.
// When the filters carry no sort selection the current one is kept.
func (c *Coordinator) SearchListing(ctx context.Context, filters ListingFilters) error {
	if filters.OrderBy == "" && filters.Order == "" {
		current := c.State().Listing.Filters
		filters.OrderBy = current.OrderBy
		filters.Order = current.Order
	}
	if filters.OrderBy != "" && !validSortField(filters.OrderBy) {
		return fmt.Errorf("%w: %q", ErrInvalidSortField, filters.OrderBy)
	}
	if filters.Order != OrderAsc {
		filters.Order = OrderDesc
	}
	return c.fetchListing(ctx, filters, 1)
}

// ChangePage moves the listing one page forward or back
func (c *Coordinator) ChangePage(ctx context.Context, dir Direction) error {
	s := c.State()
	p := s.Listing.Pagination

	var page int
	switch dir {
	case DirectionNext:
		if !p.HasNext() {
			return ErrPageOutOfRange
		}
		page = p.Page + 1
	case DirectionPrev:
		if !p.HasPrev() {
			return ErrPageOutOfRange
		}
		page = p.Page - 1
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
	}

	return c.fetchListing(ctx, s.Listing.Filters, page)
}

// SortBy toggles the listing order on a column and refetches the current page
func (c *Coordinator) SortBy(ctx context.Context, field string) error {
	if !validSortField(field) {
		return fmt.Errorf("%w: %q", ErrInvalidSortField, field)
	}
	s := c.State()
	filters := toggleSort(s.Listing.Filters, field)
	return c.fetchListing(ctx, filters, s.Listing.Pagination.Page)
}

// WarmUp asks the backend to scrape salaries once. Failures are logged and
// leave the listing un-warmed so the next listing fetch tries again.
func (c *Coordinator) WarmUp(ctx context.Context) {
	c.warmMu.Lock()
	defer c.warmMu.Unlock()

	if c.State().Listing.Warmed {
		return
	}

	if err := c.api.ScrapeSalaries(ctx); err != nil {
		log.Printf("[coordinator] ⚠️  salary warm-up failed: %v", err)
		return
	}

	log.Println("[coordinator] ✓ salaries scraped")
	c.update(func(s State) State {
		s.Listing.Warmed = true
		return s
	})
}

func (c *Coordinator) fetchListing(ctx context.Context, filters ListingFilters, page int) error {
	c.WarmUp(ctx)

	var limit int
	reqCtx, seq := c.start(ctx, CategoryListing, func(s State) State {
		s = startListing(s, filters, page)
		limit = s.Listing.Pagination.Limit
		return s
	})

	resp, err := c.api.ListPlayers(reqCtx, backend.ListingQuery{
		Position:    filters.Position,
		MaxSalary:   filters.MaxSalary,
		Nationality: filters.Nationality,
		MaxAge:      filters.MaxAge,
		OrderBy:     filters.OrderBy,
		Order:       filters.Order,
		Skip:        (page - 1) * limit,
		Limit:       limit,
	})

	applied := c.finish(CategoryListing, seq, func(s State) State {
		if err != nil {
			return fail(s, CategoryListing, MsgServerUnreachable)
		}
		return listingAnswered(s, resp)
	})
	if !applied {
		return ErrStale
	}
	if err != nil {
		log.Printf("[coordinator] listing page %d failed: %v", page, err)
		return fmt.Errorf("listing: %w", err)
	}
	return nil
}

// start applies a Loading transition, supersedes any in-flight request of
// the same category, and returns the context and sequence number for the
// new request.
func (c *Coordinator) start(ctx context.Context, cat Category, transition func(State) State) (context.Context, uint64) {
	reqCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if prev := c.cancels[cat]; prev != nil {
		prev()
	}
	c.seq[cat]++
	seq := c.seq[cat]
	c.cancels[cat] = cancel
	c.commitLocked(transition(c.state))

	return reqCtx, seq
}

// finish applies a completion transition unless a newer request of the
// category has started since.
func (c *Coordinator) finish(cat Category, seq uint64, transition func(State) State) bool {
	c.mu.Lock()
	if c.seq[cat] != seq {
		c.mu.Unlock()
		log.Printf("[coordinator] discarding stale %s response (seq %d)", cat, seq)
		return false
	}
	if cancel := c.cancels[cat]; cancel != nil {
		cancel()
		delete(c.cancels, cat)
	}

	c.commitLocked(transition(c.state))
	return true
}

// update applies a transition that involves no request
func (c *Coordinator) update(transition func(State) State) {
	c.mu.Lock()
	c.commitLocked(transition(c.state))
}

// commitLocked stores the next state, releases c.mu and notifies the
// observer. Holding notifyMu across the hand-off keeps notifications in
// transition order.
func (c *Coordinator) commitLocked(next State) {
	var appended *ChatTurn
	if n := len(next.History); n == len(c.state.History)+1 {
		turn := next.History[n-1]
		appended = &turn
	}
	c.replaceLocked(next, appended)
}

func (c *Coordinator) replaceLocked(next State, appended *ChatTurn) {
	next.Version = c.state.Version + 1
	c.state = next
	snapshot := c.state.Clone()

	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()

	if c.observer == nil {
		return
	}
	if appended != nil {
		c.observer.ChatTurnAppended(*appended)
	}
	c.observer.StateChanged(snapshot)
}

func validSortField(field string) bool {
	for _, f := range SortFields {
		if f == field {
			return true
		}
	}
	return false
}
