package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, srv.Client())
}

func TestChat_Success(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "who led the league in assists?", req.Message)

		w.Write([]byte(`{"response":{"type":"text","content":"**Trae Young**","player_info":{"image_url":"http://img/trae.png","player":{"name":"Trae Young"}}}}`))
	})

	answer, err := client.Chat(context.Background(), "who led the league in assists?")
	require.NoError(t, err)
	assert.Equal(t, "text", answer.Type)
	assert.Equal(t, "**Trae Young**", answer.Content)
	require.NotNil(t, answer.PlayerInfo)
	assert.Equal(t, "http://img/trae.png", answer.PlayerInfo.ImageURL)
	assert.Equal(t, "Trae Young", answer.PlayerInfo.Player.Name)
}

func TestChat_MissingResponseField(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"Debes proporcionar un mensaje"}`))
	})

	_, err := client.Chat(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingField))
	assert.False(t, IsTransport(err))
}

func TestChat_StatusError(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Error interno del servidor"}`, http.StatusInternalServerError)
	})

	_, err := client.Chat(context.Background(), "hello")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "/api/chat", statusErr.Path)
	assert.True(t, IsTransport(err))
}

func TestChat_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := New(srv.URL, nil)
	_, err := client.Chat(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestPlayerStats(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req StatsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Nikola Jokic", req.PlayerName)

		w.Write([]byte(`{
			"per_game_stats": {"team": "DEN", "position": "C", "age": 28, "games_played": "79", "minutes_per_game": "34.6", "points_per_game": 26.4, "personal_fouls_per_game": 2.4, "field_goal_percentage": ".583", "effective_field_goal_percentage": ".626"},
			"all_seasons_stats": [{"season": "2015-16", "team": "DEN", "pts": 10.0}, {"season": "2016-17", "team": "DEN", "pts": 16.7}]
		}`))
	})

	resp, err := client.PlayerStats(context.Background(), "Nikola Jokic")
	require.NoError(t, err)
	assert.Equal(t, Number("DEN"), resp.PerGameStats.Team)
	assert.Equal(t, Number("79"), resp.PerGameStats.GamesPlayed)
	assert.Equal(t, Number("26.4"), resp.PerGameStats.PointsPerGame)
	assert.Equal(t, Number("C"), resp.PerGameStats.Position)
	assert.Equal(t, Number("28"), resp.PerGameStats.Age)
	assert.Equal(t, Number("34.6"), resp.PerGameStats.MinutesPerGame)
	assert.Equal(t, Number("2.4"), resp.PerGameStats.PersonalFoulsPerGame)
	assert.Equal(t, Number(".626"), resp.PerGameStats.EffectiveFieldGoalPercentage)

	require.Len(t, resp.AllSeasonsStats, 2)
	first := resp.AllSeasonsStats[0].Columns
	require.Len(t, first, 3)
	assert.Equal(t, "season", first[0].Key)
	assert.Equal(t, "team", first[1].Key)
	assert.Equal(t, "pts", first[2].Key)
	assert.Equal(t, Number("10.0"), first[2].Value)
}

func TestPlayerStats_Miss(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"player not found"}`))
	})

	_, err := client.PlayerStats(context.Background(), "Nobody")
	assert.True(t, errors.Is(err, ErrMissingField))
}

func TestSearchPlayers(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantLen  int
		wantMiss bool
	}{
		{name: "matches", body: `{"players":[{"name":"LeBron James","age":39,"height":"6-9","sex":"M","player_url":"https://example.com/jamesle01.html"}]}`, wantLen: 1},
		{name: "empty is not an error", body: `{"players":[]}`, wantLen: 0},
		{name: "absent field is a miss", body: `{}`, wantMiss: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/search_player", r.URL.Path)
				var req SearchRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "LeBron", req.Query)
				w.Write([]byte(tt.body))
			})

			players, err := client.SearchPlayers(context.Background(), "LeBron")
			if tt.wantMiss {
				assert.True(t, errors.Is(err, ErrMissingField))
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, players)
			assert.Len(t, players, tt.wantLen)
		})
	}
}

func TestListPlayers_QueryString(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "Defender", q.Get("posicion"))
		assert.Equal(t, "edad", q.Get("ordenar_por"))
		assert.Equal(t, "asc", q.Get("orden"))
		assert.Equal(t, "50", q.Get("skip"))
		assert.Equal(t, "50", q.Get("limit"))
		assert.False(t, q.Has("nacionalidad"))
		assert.False(t, q.Has("max_sueldo"))

		w.Write([]byte(`{"players":[{"nombre":"Virgil van Dijk","posicion":"Defender","edad":33,"nacionalidad":"Netherlands","salario_semanal":220000,"salario_anual":11440000,"equipo":"Liverpool"}],"total":137}`))
	})

	resp, err := client.ListPlayers(context.Background(), ListingQuery{
		Position: "Defender",
		OrderBy:  "edad",
		Order:    "asc",
		Skip:     50,
		Limit:    50,
	})
	require.NoError(t, err)
	assert.Equal(t, 137, resp.Total)
	require.Len(t, resp.Players, 1)
	assert.Equal(t, "Liverpool", resp.Players[0].Team)
}

func TestListPlayers_MissingFieldsReadAsEmpty(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	resp, err := client.ListPlayers(context.Background(), ListingQuery{Limit: 50})
	require.NoError(t, err)
	assert.NotNil(t, resp.Players)
	assert.Equal(t, 0, resp.Total)
}

func TestScrapeSalaries(t *testing.T) {
	called := false
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/api/scrape/salaries", r.URL.Path)
		w.Write([]byte(`{"message":"ok"}`))
	})

	require.NoError(t, client.ScrapeSalaries(context.Background()))
	assert.True(t, called)
}

func TestNumber_UnmarshalJSON(t *testing.T) {
	var v struct {
		A Number `json:"a"`
		B Number `json:"b"`
		C Number `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"12.5","b":7,"c":null}`), &v))
	assert.Equal(t, Number("12.5"), v.A)
	assert.Equal(t, Number("7"), v.B)
	assert.Equal(t, Number(""), v.C)

	f, ok := v.A.Float()
	assert.True(t, ok)
	assert.InDelta(t, 12.5, f, 1e-9)

	for _, raw := range []string{"DEN", "NaN", "Inf", "-infinity"} {
		_, ok = Number(raw).Float()
		assert.False(t, ok, raw)
	}
}

func TestSeasonLine_RoundTripKeepsOrder(t *testing.T) {
	var line SeasonLine
	require.NoError(t, json.Unmarshal([]byte(`{"season":"2023-24","team":"DEN","pts":26.4}`), &line))

	data, err := json.Marshal(line)
	require.NoError(t, err)
	assert.JSONEq(t, `{"season":"2023-24","team":"DEN","pts":"26.4"}`, string(data))

	var again SeasonLine
	require.NoError(t, json.Unmarshal(data, &again))
	assert.Equal(t, line, again)
}
