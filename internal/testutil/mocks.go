// Package testutil holds in-memory repositories, fixtures and HTTP assertions
// shared by the liftlog test suites.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"liftlog/internal/domain"
)

// NewMockRepositories returns a user and a session repository sharing one
// in-memory store: FindByID joins users, and deleting a user cascades.
func NewMockRepositories() (*MockUserRepository, *MockSessionRepository) {
	users := NewMockUserRepository()
	sessions := NewMockSessionRepository()
	users.sessions = sessions
	sessions.users = users
	return users, sessions
}

// MockUserRepository is an in-memory domain.UserRepository. Any *Func field
// that is set replaces the in-memory behaviour of that method.
type MockUserRepository struct {
	mu sync.RWMutex

	CreateFunc                          func(ctx context.Context, user *domain.UserCredentials) error
	GetByIDFunc                         func(ctx context.Context, id string) (*domain.User, error)
	GetCredentialsByIDFunc              func(ctx context.Context, id string) (*domain.UserCredentials, error)
	GetCredentialsByUsernameFunc        func(ctx context.Context, username string) (*domain.UserCredentials, error)
	UpdatePasswordAndRevokeSessionsFunc func(ctx context.Context, userID, passwordHash string) (int64, error)
	DeleteFunc                          func(ctx context.Context, id string) error

	Users map[string]*domain.UserCredentials

	sessions *MockSessionRepository
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		Users: make(map[string]*domain.UserCredentials),
	}
}

// Add stores user directly, bypassing uniqueness checks.
func (m *MockUserRepository) Add(user *domain.UserCredentials) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users[user.ID] = user
}

// Remove drops a user without cascading to its sessions, leaving them orphaned.
func (m *MockUserRepository) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Users, id)
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.UserCredentials) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.Users {
		if u.Username == user.Username {
			return domain.ErrUsernameExists
		}
		if u.Email == user.Email {
			return domain.ErrEmailExists
		}
	}

	if user.ID == "" {
		user.ID = "user-" + user.Username
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	m.Users[user.ID] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	user, ok := m.lookup(id)
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (m *MockUserRepository) GetCredentialsByID(ctx context.Context, id string) (*domain.UserCredentials, error) {
	if m.GetCredentialsByIDFunc != nil {
		return m.GetCredentialsByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if user, ok := m.Users[id]; ok {
		creds := *user
		return &creds, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetCredentialsByUsername(ctx context.Context, username string) (*domain.UserCredentials, error) {
	if m.GetCredentialsByUsernameFunc != nil {
		return m.GetCredentialsByUsernameFunc(ctx, username)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.Users {
		if user.Username == username {
			creds := *user
			return &creds, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) UpdatePasswordAndRevokeSessions(ctx context.Context, userID, passwordHash string) (int64, error) {
	if m.UpdatePasswordAndRevokeSessionsFunc != nil {
		return m.UpdatePasswordAndRevokeSessionsFunc(ctx, userID, passwordHash)
	}

	m.mu.Lock()
	user, ok := m.Users[userID]
	if ok {
		user.PasswordHash = passwordHash
	}
	m.mu.Unlock()

	if !ok {
		return 0, domain.ErrUserNotFound
	}
	if m.sessions == nil {
		return 0, nil
	}
	return m.sessions.DeleteByUserID(ctx, userID)
}

func (m *MockUserRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}

	m.mu.Lock()
	_, ok := m.Users[id]
	delete(m.Users, id)
	m.mu.Unlock()

	if !ok {
		return domain.ErrUserNotFound
	}
	if m.sessions != nil {
		_, err := m.sessions.DeleteByUserID(ctx, id)
		return err
	}
	return nil
}

func (m *MockUserRepository) lookup(id string) (*domain.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.Users[id]
	if !ok {
		return nil, false
	}
	u := user.User
	return &u, true
}

// MockSessionRepository is an in-memory domain.SessionRepository. FindByID
// counts its calls so tests can assert one store read per request.
type MockSessionRepository struct {
	mu sync.RWMutex

	CreateFunc         func(ctx context.Context, session *domain.Session) error
	FindByIDFunc       func(ctx context.Context, id string) (*domain.Session, *domain.User, error)
	ListByUserIDFunc   func(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
	DeleteFunc         func(ctx context.Context, id string) error
	DeleteByUserIDFunc func(ctx context.Context, userID string) (int64, error)
	DeleteExpiredFunc  func(ctx context.Context, now time.Time) (int64, error)

	Sessions map[string]*domain.Session

	findByIDCalls int
	users         *MockUserRepository
}

func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{
		Sessions: make(map[string]*domain.Session),
	}
}

// Add stores session directly.
func (m *MockSessionRepository) Add(session *domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sessions[session.ID] = session
}

// Has reports whether a session with id is stored.
func (m *MockSessionRepository) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.Sessions[id]
	return ok
}

// Len returns the number of stored sessions.
func (m *MockSessionRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Sessions)
}

// FindByIDCalls returns how many times FindByID was called.
func (m *MockSessionRepository) FindByIDCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findByIDCalls
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.Sessions[session.ID]; exists {
		return domain.ErrSessionConflict
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	stored := *session
	m.Sessions[session.ID] = &stored
	return nil
}

func (m *MockSessionRepository) FindByID(ctx context.Context, id string) (*domain.Session, *domain.User, error) {
	m.mu.Lock()
	m.findByIDCalls++
	m.mu.Unlock()

	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}

	m.mu.RLock()
	stored, ok := m.Sessions[id]
	var session domain.Session
	if ok {
		session = *stored
	}
	m.mu.RUnlock()

	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	if m.users == nil {
		return &session, nil, nil
	}
	user, found := m.users.lookup(session.UserID)
	if !found {
		return &session, nil, nil
	}
	return &session, user, nil
}

func (m *MockSessionRepository) ListByUserID(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID, now)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.Session
	for _, s := range m.Sessions {
		if s.UserID == userID && now.Before(s.ExpiresAt) {
			session := *s
			result = append(result, &session)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MockSessionRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.Sessions, id)
	return nil
}

func (m *MockSessionRepository) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	if m.DeleteByUserIDFunc != nil {
		return m.DeleteByUserIDFunc(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for id, s := range m.Sessions {
		if s.UserID == userID {
			delete(m.Sessions, id)
			count++
		}
	}
	return count, nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for id, s := range m.Sessions {
		if s.IsExpired(now) {
			delete(m.Sessions, id)
			count++
		}
	}
	return count, nil
}

var (
	_ domain.UserRepository    = (*MockUserRepository)(nil)
	_ domain.SessionRepository = (*MockSessionRepository)(nil)
)
