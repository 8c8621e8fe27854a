package view

import (
	"encoding/json"
	"testing"

	"github.com/fortuna/scout/internal/backend"
	"github.com/fortuna/scout/internal/coordinator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeBasketball},
		{in: "basketball", want: ModeBasketball},
		{in: " Football ", want: ModeFootball},
		{in: "cricket", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuild_BasketballLayout(t *testing.T) {
	s := coordinator.NewState()

	page := Build(s, ModeBasketball)
	assert.Equal(t, LayoutHero, page.Layout)
	assert.Nil(t, page.Listing)
	assert.False(t, page.Loading["chat"])

	s.ConversationStarted = true
	s.Phases.Chat = coordinator.PhaseLoading
	s.History = []coordinator.ChatTurn{{Question: "q", Content: "a"}}

	page = Build(s, ModeBasketball)
	assert.Equal(t, LayoutConversation, page.Layout)
	assert.True(t, page.Loading["chat"])
	assert.False(t, page.Loading["search"])
	assert.Len(t, page.Conversation, 1)
}

func TestBuildProfile_Radar(t *testing.T) {
	snap := &coordinator.PlayerStatSnapshot{
		PlayerName:           "Victor Wembanyama",
		Team:                 "SAS",
		PointsPerGame:        "21.4",
		TotalReboundsPerGame: " 10.6",
		AssistsPerGame:       "3.9",
		StealsPerGame:        "",
		BlocksPerGame:        "n/a",
	}

	profile := BuildProfile(snap)

	require.Len(t, profile.Radar, 5)
	assert.Equal(t, RadarPoint{Stat: "PPG", Value: 21.4}, profile.Radar[0])
	assert.Equal(t, RadarPoint{Stat: "RPG", Value: 10.6}, profile.Radar[1])
	assert.Equal(t, 0.0, profile.Radar[3].Value)
	assert.Equal(t, 0.0, profile.Radar[4].Value)
	assert.Equal(t, float64(RadarDomainMax), profile.RadarMax)
	assert.Equal(t, "SAS", profile.Cards[0].Value)
}

func TestBuildProfile_NonFiniteStatsStayEncodable(t *testing.T) {
	snap := &coordinator.PlayerStatSnapshot{
		PlayerName:     "Nikola Jokic",
		PointsPerGame:  "NaN",
		AssistsPerGame: "9.8",
		StealsPerGame:  "Inf",
		BlocksPerGame:  "-infinity",
	}

	profile := BuildProfile(snap)

	assert.Equal(t, 0.0, profile.Radar[0].Value)
	assert.Equal(t, 9.8, profile.Radar[2].Value)
	assert.Equal(t, 0.0, profile.Radar[3].Value)
	assert.Equal(t, 0.0, profile.Radar[4].Value)

	s := coordinator.NewState()
	s.Stats = snap
	_, err := json.Marshal(Build(s, ModeBasketball))
	assert.NoError(t, err)
}

func TestBuildProfile_Cards(t *testing.T) {
	snap := &coordinator.PlayerStatSnapshot{
		Team:                         "DEN",
		Position:                     "C",
		Age:                          "29",
		MinutesPerGame:               "34.6",
		PersonalFoulsPerGame:         "2.4",
		EffectiveFieldGoalPercentage: ".626",
	}

	profile := BuildProfile(snap)

	require.Len(t, profile.Cards, 16)
	byLabel := make(map[string]string, len(profile.Cards))
	for _, c := range profile.Cards {
		byLabel[c.Label] = c.Value
	}
	assert.Equal(t, "C", byLabel["Position"])
	assert.Equal(t, "29", byLabel["Age"])
	assert.Equal(t, "34.6", byLabel["Minutes per Game"])
	assert.Equal(t, "2.4", byLabel["Personal Fouls"])
	assert.Equal(t, ".626", byLabel["Effective FG %"])
	assert.Contains(t, byLabel, "Steals per Game")
	assert.Contains(t, byLabel, "3-Point %")
	assert.Contains(t, byLabel, "Free Throw %")
}

func TestBuild_FootballListing(t *testing.T) {
	s := coordinator.NewState()
	s.Listing.Players = []backend.FootballPlayer{{Name: "Pedri"}}
	s.Listing.Pagination = coordinator.Pagination{Page: 3, Limit: 50, Total: 137}
	s.Listing.Filters = coordinator.ListingFilters{OrderBy: "edad", Order: coordinator.OrderAsc}

	page := Build(s, ModeFootball)

	require.NotNil(t, page.Listing)
	assert.Empty(t, page.Layout)
	assert.Nil(t, page.Conversation)
	l := page.Listing
	assert.Equal(t, "Page 3 of 3", l.PageLabel)
	assert.Equal(t, 3, l.PageCount)
	assert.True(t, l.CanPrev)
	assert.False(t, l.CanNext)

	for _, col := range l.Columns {
		if col.Field == "edad" {
			assert.Equal(t, "▲", col.Indicator)
		} else {
			assert.Empty(t, col.Indicator)
		}
	}
}

func TestPageLabel_EmptyListing(t *testing.T) {
	assert.Equal(t, "Page 1 of 1", PageLabel(coordinator.Pagination{Page: 1, Limit: 50}))
}

func TestSortIndicator(t *testing.T) {
	f := coordinator.ListingFilters{OrderBy: "salario_anual", Order: coordinator.OrderDesc}
	assert.Equal(t, "▼", SortIndicator(f, "salario_anual"))
	assert.Equal(t, "", SortIndicator(f, "nombre"))
}
