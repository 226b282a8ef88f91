package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"liftlog/internal/domain"
	"liftlog/internal/security"

	"golang.org/x/crypto/bcrypt"
)

var fixtureSeq atomic.Int64

// TestPassword is the plaintext behind every fixture user's default hash.
const TestPassword = "correct-horse-battery"

// HashPassword hashes at bcrypt.MinCost; production cost would make the
// service tests take seconds.
func HashPassword(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(hash)
}

type UserOptions struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

func NewTestUser(opts ...func(*UserOptions)) *domain.User {
	return &NewTestCredentials(opts...).User
}

// NewTestCredentials builds a user row whose hash verifies TestPassword
// unless an option replaces it. Usernames are unique per test binary.
func NewTestCredentials(opts ...func(*UserOptions)) *domain.UserCredentials {
	n := fixtureSeq.Add(1)
	o := &UserOptions{
		ID:        fmt.Sprintf("user-%d", n),
		Username:  fmt.Sprintf("lifter%d", n),
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.Email == "" {
		o.Email = o.Username + "@example.com"
	}
	if o.PasswordHash == "" {
		o.PasswordHash = HashPassword(TestPassword)
	}

	return &domain.UserCredentials{
		User: domain.User{
			ID:        o.ID,
			Username:  o.Username,
			Email:     o.Email,
			CreatedAt: o.CreatedAt,
		},
		PasswordHash: o.PasswordHash,
	}
}

func WithUserID(id string) func(*UserOptions) {
	return func(o *UserOptions) { o.ID = id }
}

func WithUsername(username string) func(*UserOptions) {
	return func(o *UserOptions) { o.Username = username }
}

func WithEmail(email string) func(*UserOptions) {
	return func(o *UserOptions) { o.Email = email }
}

type SessionOptions struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// NewTestSession mints a real token and returns it with the session row
// derived from it, expiring one SessionTTL from now.
func NewTestSession(opts ...func(*SessionOptions)) (string, *domain.Session) {
	now := time.Now()
	o := &SessionOptions{
		Token:     security.MustGenerateToken(),
		UserID:    fmt.Sprintf("user-%d", fixtureSeq.Add(1)),
		ExpiresAt: now.Add(domain.SessionTTL),
	}
	for _, opt := range opts {
		opt(o)
	}

	return o.Token, &domain.Session{
		ID:        security.DeriveSessionID(o.Token),
		UserID:    o.UserID,
		ExpiresAt: o.ExpiresAt,
		CreatedAt: now,
	}
}

func WithToken(token string) func(*SessionOptions) {
	return func(o *SessionOptions) { o.Token = token }
}

func WithSessionUserID(userID string) func(*SessionOptions) {
	return func(o *SessionOptions) { o.UserID = userID }
}

func WithExpiresAt(t time.Time) func(*SessionOptions) {
	return func(o *SessionOptions) { o.ExpiresAt = t }
}
