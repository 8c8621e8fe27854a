package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fortuna/scout/internal/coordinator"
	"github.com/fortuna/scout/internal/store"
	"github.com/lib/pq"
)

// foreign_key_violation
const pqForeignKeyViolation = "23503"

// ChatRepository is the append-only chat history
type ChatRepository struct {
	db *store.Database
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *store.Database) *ChatRepository {
	return &ChatRepository{db: db}
}

// Append stores one turn for a session
func (r *ChatRepository) Append(ctx context.Context, sessionID string, turn coordinator.ChatTurn) (int64, error) {
	query := `
		INSERT INTO chat_turns (
			session_id, question, kind, content, player_name, player_image_url, follow_up, asked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING turn_id
	`

	var name, image sql.NullString
	if turn.Player != nil {
		name = sql.NullString{String: turn.Player.Name, Valid: turn.Player.Name != ""}
		image = sql.NullString{String: turn.Player.ImageURL, Valid: turn.Player.ImageURL != ""}
	}

	var id int64
	err := r.db.DB().QueryRowContext(ctx, query,
		sessionID, turn.Question, turn.Kind, turn.Content, name, image, turn.FollowUp, turn.AskedAt,
	).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return 0, fmt.Errorf("%w: %s", store.ErrSessionNotFound, sessionID)
		}
		return 0, fmt.Errorf("inserting chat turn: %w", err)
	}
	return id, nil
}

// ListBySession returns a session's turns oldest first
func (r *ChatRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*store.ChatTurn, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT turn_id, session_id, question, kind, content, player_name,
			player_image_url, follow_up, asked_at, created_at
		FROM (
			SELECT * FROM chat_turns
			WHERE session_id = $1
			ORDER BY turn_id DESC
			LIMIT $2
		) recent
		ORDER BY turn_id
	`

	rows, err := r.db.DB().QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying chat turns: %w", err)
	}
	defer rows.Close()

	var turns []*store.ChatTurn
	for rows.Next() {
		t := &store.ChatTurn{}
		err := rows.Scan(
			&t.TurnID, &t.SessionID, &t.Question, &t.Kind, &t.Content, &t.PlayerName,
			&t.PlayerImageURL, &t.FollowUp, &t.AskedAt, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning chat turn: %w", err)
		}
		turns = append(turns, t)
	}

	return turns, rows.Err()
}

// ToChatTurn converts a stored row back into the coordinator's shape
func ToChatTurn(t *store.ChatTurn) coordinator.ChatTurn {
	turn := coordinator.ChatTurn{
		Question: t.Question,
		Kind:     t.Kind,
		Content:  t.Content,
		FollowUp: t.FollowUp,
		AskedAt:  t.AskedAt,
	}
	if t.PlayerName.Valid || t.PlayerImageURL.Valid {
		turn.Player = &coordinator.PlayerCard{Name: t.PlayerName.String, ImageURL: t.PlayerImageURL.String}
	}
	return turn
}
