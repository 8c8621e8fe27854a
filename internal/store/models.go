package store

import (
	"database/sql"
	"errors"
	"time"
)

// ErrSessionNotFound is returned for turns of an unknown session
var ErrSessionNotFound = errors.New("session not found")

// Session is a browser session
type Session struct {
	SessionID  string    `json:"session_id" db:"session_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at" db:"last_seen_at"`
}

// ChatTurn is one persisted question/answer exchange
type ChatTurn struct {
	TurnID         int64          `json:"turn_id" db:"turn_id"`
	SessionID      string         `json:"session_id" db:"session_id"`
	Question       string         `json:"question" db:"question"`
	Kind           string         `json:"kind" db:"kind"`
	Content        string         `json:"content" db:"content"`
	PlayerName     sql.NullString `json:"player_name,omitempty" db:"player_name"`
	PlayerImageURL sql.NullString `json:"player_image_url,omitempty" db:"player_image_url"`
	FollowUp       bool           `json:"follow_up" db:"follow_up"`
	AskedAt        time.Time      `json:"asked_at" db:"asked_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}
