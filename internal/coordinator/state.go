package coordinator

import (
	"time"

	"github.com/fortuna/scout/internal/backend"
)

// Category identifies one independent operation state machine
type Category string

const (
	CategoryChat    Category = "chat"
	CategorySearch  Category = "search"
	CategoryStats   Category = "stats"
	CategoryListing Category = "listing"
)

// Categories lists every operation category in display order
var Categories = []Category{CategoryChat, CategorySearch, CategoryStats, CategoryListing}

// Phase is the state of one operation category.
// Idle, Success and Error are all at rest; only Loading has a request in flight.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseSuccess Phase = "success"
	PhaseError   Phase = "error"
)

// Phases holds the phase of every category
type Phases struct {
	Chat    Phase `json:"chat"`
	Search  Phase `json:"search"`
	Stats   Phase `json:"stats"`
	Listing Phase `json:"listing"`
}

// Get returns the phase of a category
func (p Phases) Get(cat Category) Phase {
	switch cat {
	case CategoryChat:
		return p.Chat
	case CategorySearch:
		return p.Search
	case CategoryStats:
		return p.Stats
	case CategoryListing:
		return p.Listing
	}
	return PhaseIdle
}

func (p *Phases) set(cat Category, phase Phase) {
	switch cat {
	case CategoryChat:
		p.Chat = phase
	case CategorySearch:
		p.Search = phase
	case CategoryStats:
		p.Stats = phase
	case CategoryListing:
		p.Listing = phase
	}
}

// NoticeKind classifies non-fatal notices
type NoticeKind string

const (
	NoticeValidation NoticeKind = "validation"
	NoticeNotFound   NoticeKind = "not_found"
)

// Notice is a non-fatal message for the user
type Notice struct {
	Kind     NoticeKind `json:"kind"`
	Category Category   `json:"category"`
	Message  string     `json:"message"`
}

// ChatTurn is one question/answer exchange with the assistant
type ChatTurn struct {
	Question string      `json:"question"`
	Kind     string      `json:"kind"`
	Content  string      `json:"content"`
	Player   *PlayerCard `json:"player,omitempty"`
	FollowUp bool        `json:"follow_up"`
	AskedAt  time.Time   `json:"asked_at"`
}

// PlayerCard is the player an answer mentions
type PlayerCard struct {
	Name     string `json:"name"`
	ImageURL string `json:"image_url,omitempty"`
}

// SearchQuery is the structured search form. Only Name is sent to the
// backend; the other filters persist with the form.
type SearchQuery struct {
	Name        string  `json:"name"`
	Nationality string  `json:"nationality,omitempty"`
	Height      string  `json:"height,omitempty"`
	Position    string  `json:"position,omitempty"`
	Year        string  `json:"year,omitempty"`
	MinPoints   float64 `json:"min_points,omitempty"`
	MinRebounds float64 `json:"min_rebounds,omitempty"`
	MinAssists  float64 `json:"min_assists,omitempty"`
}

// PlayerStatSnapshot is the per-game line of one player for the latest
// season, plus the season-by-season table when the backend has it.
type PlayerStatSnapshot struct {
	PlayerName                   string               `json:"player_name"`
	Team                         string               `json:"team"`
	Position                     string               `json:"position,omitempty"`
	Age                          string               `json:"age,omitempty"`
	GamesPlayed                  string               `json:"games_played"`
	MinutesPerGame               string               `json:"minutes_per_game,omitempty"`
	PointsPerGame                string               `json:"points_per_game"`
	TotalReboundsPerGame         string               `json:"total_rebounds_per_game"`
	AssistsPerGame               string               `json:"assists_per_game"`
	StealsPerGame                string               `json:"steals_per_game"`
	BlocksPerGame                string               `json:"blocks_per_game"`
	TurnoversPerGame             string               `json:"turnovers_per_game"`
	PersonalFoulsPerGame         string               `json:"personal_fouls_per_game,omitempty"`
	FieldGoalPercentage          string               `json:"field_goal_percentage"`
	ThreePointPercentage         string               `json:"three_point_percentage"`
	FreeThrowPercentage          string               `json:"free_throw_percentage"`
	EffectiveFieldGoalPercentage string               `json:"effective_field_goal_percentage,omitempty"`
	Seasons                      []backend.SeasonLine `json:"seasons,omitempty"`
}

// Sort orders for the listing
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// ListingFilters is the football listing filter form
type ListingFilters struct {
	Position    string `json:"position,omitempty"`
	MaxSalary   string `json:"max_salary,omitempty"`
	Nationality string `json:"nationality,omitempty"`
	MaxAge      string `json:"max_age,omitempty"`
	OrderBy     string `json:"order_by,omitempty"`
	Order       string `json:"order"`
}

// DefaultPageSize is the listing page size
const DefaultPageSize = 50

// Pagination is the listing cursor
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// PageCount is ceil(total/limit)
func (p Pagination) PageCount() int {
	if p.Limit <= 0 || p.Total <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// HasNext reports whether a next page exists
func (p Pagination) HasNext() bool {
	return p.Page < p.PageCount()
}

// HasPrev reports whether a previous page exists
func (p Pagination) HasPrev() bool {
	return p.Page > 1
}

// Skip is the row offset of the current page
func (p Pagination) Skip() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Listing is the paginated football table
type Listing struct {
	Filters    ListingFilters           `json:"filters"`
	Players    []backend.FootballPlayer `json:"players"`
	Pagination Pagination               `json:"pagination"`
	Warmed     bool                     `json:"warmed"`
}

// State is everything the view layer renders. It is plain data and
// round-trips through JSON.
type State struct {
	Version             uint64                  `json:"version"`
	Phases              Phases                  `json:"phases"`
	Error               string                  `json:"error,omitempty"`
	Notice              *Notice                 `json:"notice,omitempty"`
	ConversationStarted bool                    `json:"conversation_started"`
	History             []ChatTurn              `json:"history"`
	Query               SearchQuery             `json:"query"`
	Results             []backend.PlayerSummary `json:"results"`
	Stats               *PlayerStatSnapshot     `json:"stats,omitempty"`
	Listing             Listing                 `json:"listing"`
}

// NewState returns the initial state
func NewState() State {
	return State{
		Phases: Phases{
			Chat:    PhaseIdle,
			Search:  PhaseIdle,
			Stats:   PhaseIdle,
			Listing: PhaseIdle,
		},
		History: []ChatTurn{},
		Listing: Listing{
			Filters:    ListingFilters{Order: OrderDesc},
			Players:    []backend.FootballPlayer{},
			Pagination: Pagination{Page: 1, Limit: DefaultPageSize},
		},
	}
}

// Loading reports whether a category has a request in flight
func (s State) Loading(cat Category) bool {
	return s.Phases.Get(cat) == PhaseLoading
}

// Clone returns a deep copy
func (s State) Clone() State {
	out := s
	if s.Notice != nil {
		n := *s.Notice
		out.Notice = &n
	}
	if s.History != nil {
		out.History = make([]ChatTurn, len(s.History))
		for i, turn := range s.History {
			out.History[i] = turn
			if turn.Player != nil {
				p := *turn.Player
				out.History[i].Player = &p
			}
		}
	}
	if s.Results != nil {
		out.Results = append([]backend.PlayerSummary{}, s.Results...)
	}
	if s.Stats != nil {
		st := *s.Stats
		if s.Stats.Seasons != nil {
			st.Seasons = make([]backend.SeasonLine, len(s.Stats.Seasons))
			for i, line := range s.Stats.Seasons {
				st.Seasons[i] = backend.SeasonLine{Columns: append([]backend.Column{}, line.Columns...)}
			}
		}
		out.Stats = &st
	}
	if s.Listing.Players != nil {
		out.Listing.Players = append([]backend.FootballPlayer{}, s.Listing.Players...)
	}
	return out
}
