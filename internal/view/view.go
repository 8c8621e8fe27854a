// Package view turns coordinator state into the page model the browser
// renders. One page serves both sports; Mode picks the sections.
package view

import (
	"fmt"
	"strings"

	"github.com/fortuna/scout/internal/backend"
	"github.com/fortuna/scout/internal/coordinator"
)

// Mode selects the sport the page is rendered for
type Mode string

const (
	ModeBasketball Mode = "basketball"
	ModeFootball   Mode = "football"
)

// ParseMode maps a query value to a Mode, defaulting to basketball
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeBasketball:
		return ModeBasketball, nil
	case ModeFootball:
		return ModeFootball, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Layout is the overall arrangement of the basketball page
type Layout string

const (
	// LayoutHero shows the centred search bar before the first answer
	LayoutHero Layout = "hero"

	// LayoutConversation shows the answer history with a follow-up box
	LayoutConversation Layout = "conversation"
)

// RadarDomainMax is the upper bound of the radar chart axis
const RadarDomainMax = 30

// Page is the render-ready model for one session
type Page struct {
	Mode    Mode                `json:"mode"`
	Version uint64              `json:"version"`
	Layout  Layout              `json:"layout,omitempty"`
	Loading map[string]bool     `json:"loading"`
	Error   string              `json:"error,omitempty"`
	Notice  *coordinator.Notice `json:"notice,omitempty"`

	Conversation []coordinator.ChatTurn  `json:"conversation,omitempty"`
	Results      []backend.PlayerSummary `json:"results,omitempty"`
	Profile      *Profile                `json:"profile,omitempty"`

	Listing *ListingView `json:"listing,omitempty"`
}

// Profile is the player stats view
type Profile struct {
	PlayerName string               `json:"player_name"`
	Cards      []StatCard           `json:"cards"`
	Radar      []RadarPoint         `json:"radar"`
	RadarMax   float64              `json:"radar_max"`
	Seasons    []backend.SeasonLine `json:"seasons,omitempty"`
}

// StatCard is one labelled value on the profile
type StatCard struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// RadarPoint is one axis of the radar chart
type RadarPoint struct {
	Stat  string  `json:"stat"`
	Value float64 `json:"value"`
}

// ListingView is the football table with its controls
type ListingView struct {
	Columns   []Column                   `json:"columns"`
	Rows      []backend.FootballPlayer   `json:"rows"`
	PageLabel string                     `json:"page_label"`
	Page      int                        `json:"page"`
	PageCount int                        `json:"page_count"`
	CanPrev   bool                       `json:"can_prev"`
	CanNext   bool                       `json:"can_next"`
	Filters   coordinator.ListingFilters `json:"filters"`
}

// Column is one sortable header of the listing
type Column struct {
	Field     string `json:"field"`
	Label     string `json:"label"`
	Indicator string `json:"indicator,omitempty"`
}

var listingColumns = []Column{
	{Field: "nombre", Label: "Name"},
	{Field: "equipo", Label: "Team"},
	{Field: "posicion", Label: "Position"},
	{Field: "edad", Label: "Age"},
	{Field: "nacionalidad", Label: "Nationality"},
	{Field: "salario_semanal", Label: "Weekly Salary"},
	{Field: "salario_anual", Label: "Annual Salary"},
}

// Build renders state for a mode
func Build(s coordinator.State, mode Mode) Page {
	page := Page{
		Mode:    mode,
		Version: s.Version,
		Error:   s.Error,
		Notice:  s.Notice,
		Loading: make(map[string]bool, len(coordinator.Categories)),
	}
	for _, cat := range coordinator.Categories {
		page.Loading[string(cat)] = s.Loading(cat)
	}

	switch mode {
	case ModeFootball:
		page.Listing = buildListing(s.Listing)
	default:
		page.Layout = LayoutHero
		if s.ConversationStarted {
			page.Layout = LayoutConversation
		}
		page.Conversation = s.History
		page.Results = s.Results
		if s.Stats != nil {
			page.Profile = BuildProfile(s.Stats)
		}
	}

	return page
}

// BuildProfile lays out the stat cards and radar chart of a snapshot
func BuildProfile(snap *coordinator.PlayerStatSnapshot) *Profile {
	return &Profile{
		PlayerName: snap.PlayerName,
		Cards: []StatCard{
			{Label: "Team", Value: snap.Team},
			{Label: "Position", Value: snap.Position},
			{Label: "Age", Value: snap.Age},
			{Label: "Games Played", Value: snap.GamesPlayed},
			{Label: "Minutes per Game", Value: snap.MinutesPerGame},
			{Label: "Points per Game", Value: snap.PointsPerGame},
			{Label: "Rebounds per Game", Value: snap.TotalReboundsPerGame},
			{Label: "Assists per Game", Value: snap.AssistsPerGame},
			{Label: "Steals per Game", Value: snap.StealsPerGame},
			{Label: "Blocks per Game", Value: snap.BlocksPerGame},
			{Label: "Turnovers per Game", Value: snap.TurnoversPerGame},
			{Label: "Personal Fouls", Value: snap.PersonalFoulsPerGame},
			{Label: "Field Goal %", Value: snap.FieldGoalPercentage},
			{Label: "3-Point %", Value: snap.ThreePointPercentage},
			{Label: "Free Throw %", Value: snap.FreeThrowPercentage},
			{Label: "Effective FG %", Value: snap.EffectiveFieldGoalPercentage},
		},

		Radar: []RadarPoint{
			{Stat: "PPG", Value: parseStat(snap.PointsPerGame)},
			{Stat: "RPG", Value: parseStat(snap.TotalReboundsPerGame)},
			{Stat: "APG", Value: parseStat(snap.AssistsPerGame)},
			{Stat: "SPG", Value: parseStat(snap.StealsPerGame)},
			{Stat: "BPG", Value: parseStat(snap.BlocksPerGame)},
		},
		RadarMax: RadarDomainMax,
		Seasons:  snap.Seasons,
	}
}

func buildListing(l coordinator.Listing) *ListingView {
	p := l.Pagination
	columns := make([]Column, len(listingColumns))
	copy(columns, listingColumns)
	for i := range columns {
		columns[i].Indicator = SortIndicator(l.Filters, columns[i].Field)
	}

	return &ListingView{
		Columns:   columns,
		Rows:      l.Players,
		PageLabel: PageLabel(p),
		Page:      p.Page,
		PageCount: p.PageCount(),
		CanPrev:   p.HasPrev(),
		CanNext:   p.HasNext(),
		Filters:   l.Filters,
	}
}

// PageLabel reads "Page X of Y", never showing fewer than one page
func PageLabel(p coordinator.Pagination) string {
	count := p.PageCount()
	if count < 1 {
		count = 1
	}
	return fmt.Sprintf("Page %d of %d", p.Page, count)
}

// SortIndicator returns ▲ or ▼ for the active sort column, empty otherwise
func SortIndicator(f coordinator.ListingFilters, field string) string {
	if f.OrderBy != field {
		return ""
	}
	if f.Order == coordinator.OrderAsc {
		return "▲"
	}
	return "▼"
}

// parseStat reads a numeric-as-string stat; anything unparseable or
// non-finite is 0
func parseStat(v string) float64 {
	f, ok := backend.Number(strings.TrimSpace(v)).Float()
	if !ok {
		return 0
	}
	return f
}
