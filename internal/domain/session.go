package domain

import (
	"context"
	"errors"
	"time"
)

// SessionTTL is the absolute lifetime of a session from the moment it is created.
const SessionTTL = 30 * 24 * time.Hour

var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionConflict       = errors.New("session id already exists")
	ErrStoreUnavailable      = errors.New("session store unavailable")
	ErrRandomnessUnavailable = errors.New("secure randomness unavailable")
)

// Session binds a session id (the hash of a client-held token) to a user.
// The raw token is never part of it.
type Session struct {
	ID        string    `json:"-"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired reports whether the session is no longer valid at now.
// A session whose ExpiresAt equals now is expired.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionValidationResult is either a session with its user, or both nil.
type SessionValidationResult struct {
	Session *Session
	User    *User
}

// Authenticated reports whether the result carries a live session and its user.
func (r SessionValidationResult) Authenticated() bool {
	return r.Session != nil && r.User != nil
}

// SessionRepository defines the interface for session data access
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	// FindByID loads the session and its owner in one read. When the session
	// exists but its owner does not, the returned user is nil.
	FindByID(ctx context.Context, id string) (*Session, *User, error)
	ListByUserID(ctx context.Context, userID string, now time.Time) ([]*Session, error)
	Delete(ctx context.Context, id string) error
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
