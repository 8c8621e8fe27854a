package coordinator

import "errors"

var (
	// ErrBlankQuery is returned when a chat question is empty or whitespace
	ErrBlankQuery = errors.New("query is blank")

	// ErrNameRequired is returned when a structured search or stats lookup has no player name
	ErrNameRequired = errors.New("player name is required")

	// ErrStale is returned when a newer request of the same category
	// superseded this one; its response was discarded
	ErrStale = errors.New("superseded by a newer request")

	// ErrPageOutOfRange is returned when paging past either end of the listing
	ErrPageOutOfRange = errors.New("page out of range")

	// ErrInvalidSortField is returned for a column the listing cannot sort on
	ErrInvalidSortField = errors.New("invalid sort field")

	// ErrInvalidDirection is returned for an unknown page direction
	ErrInvalidDirection = errors.New("invalid page direction")
)

// User-facing messages
const (
	MsgServerUnreachable = "Could not reach the server. Please try again."
	MsgNoAnswer          = "The assistant did not return an answer."
	MsgNameRequired      = "Please enter a player name."
	MsgNoPlayersFound    = "No players found."
	MsgNoStatsFound      = "No statistics found."
)
