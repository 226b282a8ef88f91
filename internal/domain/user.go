package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameExists     = errors.New("username already exists")
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")
)

// User is the public profile of an account. It never carries the password hash.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// UserCredentials is a user together with its bcrypt password hash.
// Only the login and password-change paths load it.
type UserCredentials struct {
	User
	PasswordHash string `json:"-"`
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *UserCredentials) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetCredentialsByID(ctx context.Context, id string) (*UserCredentials, error)
	GetCredentialsByUsername(ctx context.Context, username string) (*UserCredentials, error)
	// UpdatePasswordAndRevokeSessions replaces the password hash and deletes
	// every session of the user atomically. It returns the number of sessions removed.
	UpdatePasswordAndRevokeSessions(ctx context.Context, userID, passwordHash string) (int64, error)
	// Delete removes the user; its sessions go with it.
	Delete(ctx context.Context, id string) error
}
