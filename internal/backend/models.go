package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse wraps the AI answer. Response is nil when the backend
// answered without the expected field.
type ChatResponse struct {
	Response *ChatAnswer `json:"response"`
	Error    string      `json:"error,omitempty"`
}

// ChatAnswer is one AI answer
type ChatAnswer struct {
	Type       string      `json:"type"`
	Content    string      `json:"content"`
	PlayerInfo *PlayerInfo `json:"player_info,omitempty"`
}

// PlayerInfo carries the player an answer is about, if any
type PlayerInfo struct {
	ImageURL string     `json:"image_url,omitempty"`
	Player   *PlayerRef `json:"player,omitempty"`
}

// PlayerRef names a player
type PlayerRef struct {
	Name string `json:"name"`
}

// StatsRequest is the body of POST /api/stats
type StatsRequest struct {
	PlayerName string `json:"player_name"`
}

// StatsResponse holds per-game stats for the latest season plus the
// optional season-by-season table.
type StatsResponse struct {
	PerGameStats    *PerGameStats `json:"per_game_stats"`
	AllSeasonsStats []SeasonLine  `json:"all_seasons_stats,omitempty"`
}

// PerGameStats are per-game averages. Values arrive as strings or numbers
// depending on the scraper, so they are kept as Number.
type PerGameStats struct {
	Team                         Number `json:"team"`
	Position                     Number `json:"position"`
	Age                          Number `json:"age"`
	GamesPlayed                  Number `json:"games_played"`
	MinutesPerGame               Number `json:"minutes_per_game"`
	PointsPerGame                Number `json:"points_per_game"`
	TotalReboundsPerGame         Number `json:"total_rebounds_per_game"`
	AssistsPerGame               Number `json:"assists_per_game"`
	StealsPerGame                Number `json:"steals_per_game"`
	BlocksPerGame                Number `json:"blocks_per_game"`
	TurnoversPerGame             Number `json:"turnovers_per_game"`
	PersonalFoulsPerGame         Number `json:"personal_fouls_per_game"`
	FieldGoalPercentage          Number `json:"field_goal_percentage"`
	ThreePointPercentage         Number `json:"three_point_percentage"`
	FreeThrowPercentage          Number `json:"free_throw_percentage"`
	EffectiveFieldGoalPercentage Number `json:"effective_field_goal_percentage"`
}

// SeasonLine is one row of the season-by-season table. Columns keep the
// order the backend sent them in, which is the display order.
type SeasonLine struct {
	Columns []Column `json:"columns"`
}

// Column is one cell of a SeasonLine
type Column struct {
	Key   string `json:"key"`
	Value Number `json:"value"`
}

// MarshalJSON writes the columns back as one object, in order
func (l SeasonLine) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range l.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(string(col.Value))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object while preserving key order
func (l *SeasonLine) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("season line: expected object, got %v", tok)
	}

	l.Columns = l.Columns[:0]
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("season line: unexpected key %v", keyTok)
		}
		var value Number
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("season line %q: %w", key, err)
		}
		l.Columns = append(l.Columns, Column{Key: key, Value: value})
	}

	_, err = dec.Token()
	return err
}

// SearchRequest is the body of POST /api/search_player
type SearchRequest struct {
	Query string `json:"query"`
}

// SearchResponse lists candidate players. Players is nil when the field
// was absent and empty when nothing matched.
type SearchResponse struct {
	Players []PlayerSummary `json:"players"`
}

// PlayerSummary is one candidate row from a structured search
type PlayerSummary struct {
	Name      string `json:"name"`
	Age       Number `json:"age"`
	Height    string `json:"height"`
	Sex       string `json:"sex"`
	PlayerURL string `json:"player_url"`
}

// ListingQuery maps to the query string of GET /api/players
type ListingQuery struct {
	Position    string
	MaxSalary   string
	Nationality string
	MaxAge      string
	OrderBy     string
	Order       string
	Skip        int
	Limit       int
}

// ListingResponse is one page of the football listing
type ListingResponse struct {
	Players []FootballPlayer `json:"players"`
	Total   int              `json:"total"`
}

// FootballPlayer is one listing row
type FootballPlayer struct {
	Name         string  `json:"nombre"`
	Position     string  `json:"posicion"`
	Age          int     `json:"edad"`
	Nationality  string  `json:"nacionalidad"`
	WeeklySalary float64 `json:"salario_semanal"`
	AnnualSalary float64 `json:"salario_anual"`
	Team         string  `json:"equipo"`
}

// Number is a scalar that may be encoded as a JSON string or number.
// It is always kept in its textual form.
type Number string

// UnmarshalJSON accepts strings, numbers and null
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Number(s)
		return nil
	}
	var f json.Number
	if err := json.Unmarshal(data, &f); err != nil {
		// booleans and nested values are kept verbatim
		*n = Number(data)
		return nil
	}
	*n = Number(f.String())
	return nil
}

// Float parses the value, reporting false when it is not a finite number
func (n Number) Float() (float64, bool) {
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
