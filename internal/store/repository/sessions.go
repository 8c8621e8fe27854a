package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fortuna/scout/internal/store"
)

// SessionRepository handles session rows
type SessionRepository struct {
	db *store.Database
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *store.Database) *SessionRepository {
	return &SessionRepository{db: db}
}

// Upsert records a session, refreshing last_seen_at when it already exists
func (r *SessionRepository) Upsert(ctx context.Context, sessionID string) error {
	query := `
		INSERT INTO sessions (session_id)
		VALUES ($1)
		ON CONFLICT (session_id) DO UPDATE SET last_seen_at = NOW()
	`
	if _, err := r.db.DB().ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}
	return nil
}

// Get finds a session by ID
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*store.Session, error) {
	query := `
		SELECT session_id, created_at, last_seen_at
		FROM sessions
		WHERE session_id = $1
	`

	s := &store.Session{}
	err := r.db.DB().QueryRowContext(ctx, query, sessionID).Scan(&s.SessionID, &s.CreatedAt, &s.LastSeenAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", store.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return s, nil
}

// Delete removes a session and, by cascade, its chat turns
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	res, err := r.db.DB().ExecContext(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrSessionNotFound, sessionID)
	}
	return nil
}
