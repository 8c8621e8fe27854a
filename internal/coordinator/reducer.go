package coordinator

import (
	"time"

	"github.com/fortuna/scout/internal/backend"
)

// Transitions below take a state by value and return the next one. They
// never write through slices shared with the input.

// begin moves a category to Loading and clears the single error and notice slots
func begin(s State, cat Category) State {
	s.Phases.set(cat, PhaseLoading)
	s.Error = ""
	s.Notice = nil
	return s
}

// fail moves a category to Error with a user-facing message
func fail(s State, cat Category, message string) State {
	s.Phases.set(cat, PhaseError)
	s.Error = message
	return s
}

// miss moves a category to Success with a not-found notice
func miss(s State, cat Category, message string) State {
	s.Phases.set(cat, PhaseSuccess)
	s.Notice = &Notice{Kind: NoticeNotFound, Category: cat, Message: message}
	return s
}

// reject records a validation notice without touching any phase. It is
// the latest outcome, so an earlier error is cleared.
func reject(s State, cat Category, message string) State {
	s.Error = ""
	s.Notice = &Notice{Kind: NoticeValidation, Category: cat, Message: message}
	return s
}

func startChat(s State) State {
	s = begin(s, CategoryChat)
	s.Results = nil
	s.Stats = nil
	return s
}

func chatAnswered(s State, question string, followUp bool, answer *backend.ChatAnswer, at time.Time) State {
	turn := ChatTurn{
		Question: question,
		Kind:     answer.Type,
		Content:  answer.Content,
		FollowUp: followUp,
		AskedAt:  at,
	}
	if turn.Kind == "" {
		turn.Kind = "text"
	}
	if info := answer.PlayerInfo; info != nil {
		card := &PlayerCard{ImageURL: info.ImageURL}
		if info.Player != nil {
			card.Name = info.Player.Name
		}
		if card.Name != "" || card.ImageURL != "" {
			turn.Player = card
		}
	}

	n := len(s.History)
	s.History = append(s.History[:n:n], turn)
	if !followUp {
		s.ConversationStarted = true
	}
	s.Phases.Chat = PhaseSuccess
	return s
}

func startSearch(s State, q SearchQuery) State {
	s = begin(s, CategorySearch)
	s.Query = q
	s.Results = nil
	s.Listing.Pagination.Page = 1
	return s
}

func searchAnswered(s State, players []backend.PlayerSummary) State {
	s.Results = append([]backend.PlayerSummary{}, players...)
	if len(players) == 0 {
		return miss(s, CategorySearch, MsgNoPlayersFound)
	}
	s.Phases.Search = PhaseSuccess
	return s
}

func searchMissed(s State) State {
	s.Results = []backend.PlayerSummary{}
	return miss(s, CategorySearch, MsgNoPlayersFound)
}

func startStats(s State) State {
	s = begin(s, CategoryStats)
	s.Stats = nil
	return s
}

func statsAnswered(s State, playerName string, resp *backend.StatsResponse) State {
	pg := resp.PerGameStats
	snap := &PlayerStatSnapshot{
		PlayerName:                   playerName,
		Team:                         string(pg.Team),
		Position:                     string(pg.Position),
		Age:                          string(pg.Age),
		GamesPlayed:                  string(pg.GamesPlayed),
		MinutesPerGame:               string(pg.MinutesPerGame),
		PointsPerGame:                string(pg.PointsPerGame),
		TotalReboundsPerGame:         string(pg.TotalReboundsPerGame),
		AssistsPerGame:               string(pg.AssistsPerGame),
		StealsPerGame:                string(pg.StealsPerGame),
		BlocksPerGame:                string(pg.BlocksPerGame),
		TurnoversPerGame:             string(pg.TurnoversPerGame),
		PersonalFoulsPerGame:         string(pg.PersonalFoulsPerGame),
		FieldGoalPercentage:          string(pg.FieldGoalPercentage),
		ThreePointPercentage:         string(pg.ThreePointPercentage),
		FreeThrowPercentage:          string(pg.FreeThrowPercentage),
		EffectiveFieldGoalPercentage: string(pg.EffectiveFieldGoalPercentage),
	}
	if len(resp.AllSeasonsStats) > 0 {
		snap.Seasons = make([]backend.SeasonLine, len(resp.AllSeasonsStats))
		for i, line := range resp.AllSeasonsStats {
			snap.Seasons[i] = backend.SeasonLine{Columns: append([]backend.Column{}, line.Columns...)}
		}
	}
	s.Stats = snap
	s.Phases.Stats = PhaseSuccess
	return s
}

func closeProfile(s State) State {
	s.Stats = nil
	if s.Notice != nil && s.Notice.Category == CategoryStats {
		s.Notice = nil
	}
	if s.Phases.Stats != PhaseLoading {
		s.Phases.Stats = PhaseIdle
	}
	return s
}

func startListing(s State, filters ListingFilters, page int) State {
	s = begin(s, CategoryListing)
	s.Listing.Filters = filters
	s.Listing.Pagination.Page = page
	if s.Listing.Pagination.Limit <= 0 {
		s.Listing.Pagination.Limit = DefaultPageSize
	}
	return s
}

func listingAnswered(s State, resp *backend.ListingResponse) State {
	s.Listing.Players = append([]backend.FootballPlayer{}, resp.Players...)
	s.Listing.Pagination.Total = resp.Total
	s.Phases.Listing = PhaseSuccess
	return s
}

// restored resets in-flight phases; no request survives a restore
func restored(s State) State {
	for _, cat := range Categories {
		if s.Phases.Get(cat) == PhaseLoading || s.Phases.Get(cat) == "" {
			s.Phases.set(cat, PhaseIdle)
		}
	}
	if s.History == nil {
		s.History = []ChatTurn{}
	}
	if s.Listing.Players == nil {
		s.Listing.Players = []backend.FootballPlayer{}
	}
	if s.Listing.Pagination.Limit <= 0 {
		s.Listing.Pagination.Limit = DefaultPageSize
	}
	if s.Listing.Pagination.Page < 1 {
		s.Listing.Pagination.Page = 1
	}
	if s.Listing.Filters.Order == "" {
		s.Listing.Filters.Order = OrderDesc
	}
	return s
}

// toggleSort flips the order when the field is already active and
// ascending; any other selection sorts ascending.
func toggleSort(f ListingFilters, field string) ListingFilters {
	if f.OrderBy == field && f.Order == OrderAsc {
		f.Order = OrderDesc
	} else {
		f.Order = OrderAsc
	}
	f.OrderBy = field
	return f
}
