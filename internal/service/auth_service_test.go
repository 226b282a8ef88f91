package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"liftlog/internal/domain"
	"liftlog/internal/security"
	"liftlog/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type authFixture struct {
	service  *AuthService
	users    *testutil.MockUserRepository
	sessions *testutil.MockSessionRepository
	clock    *fakeClock
}

func newAuthFixture(opts ...Option) *authFixture {
	users, sessions := testutil.NewMockRepositories()
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now), WithBcryptCost(bcrypt.MinCost)}, opts...)
	return &authFixture{
		service:  NewAuthService(users, sessions, opts...),
		users:    users,
		sessions: sessions,
		clock:    clock,
	}
}

func (f *authFixture) addUser(opts ...func(*testutil.UserOptions)) *domain.UserCredentials {
	user := testutil.NewTestCredentials(opts...)
	f.users.Add(user)
	return user
}

func TestAuthService_Register_Success(t *testing.T) {
	f := newAuthFixture()

	user, err := f.service.Register(context.Background(), "alice", "alice@example.com", "password123")
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEmpty(t, user.ID)

	creds, err := f.users.GetCredentialsByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "password123", creds.PasswordHash, "password should be hashed")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte("password123")))
}

func TestAuthService_Register_Duplicates(t *testing.T) {
	f := newAuthFixture()
	f.addUser(testutil.WithUsername("alice"), testutil.WithEmail("alice@example.com"))

	_, err := f.service.Register(context.Background(), "alice", "newalice@example.com", "password123")
	assert.ErrorIs(t, err, domain.ErrUsernameExists)

	_, err = f.service.Register(context.Background(), "bob", "alice@example.com", "password123")
	assert.ErrorIs(t, err, domain.ErrEmailExists)
}

func TestAuthService_Register_StoreFailure(t *testing.T) {
	f := newAuthFixture()
	f.users.CreateFunc = func(ctx context.Context, user *domain.UserCredentials) error {
		return errors.New("connection refused")
	}

	user, err := f.service.Register(context.Background(), "alice", "alice@example.com", "password123")
	assert.Nil(t, user)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestAuthService_Register_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"empty_username", "", "alice@example.com", "password123"},
		{"short_username", "al", "alice@example.com", "password123"},
		{"username_with_spaces", "al ice", "alice@example.com", "password123"},
		{"invalid_email", "alice", "not-an-email", "password123"},
		{"short_password", "alice", "alice@example.com", "short"},
		{"password_over_bcrypt_limit", "alice", "alice@example.com", string(make([]byte, 73))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture()

			user, err := f.service.Register(context.Background(), tt.username, tt.email, tt.password)
			assert.Nil(t, user)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestAuthService_Login_Success(t *testing.T) {
	f := newAuthFixture()
	user := f.addUser(testutil.WithUsername("alice"))

	token, session, loggedIn, err := f.service.Login(context.Background(), "alice", testutil.TestPassword)
	require.NoError(t, err)

	assert.Regexp(t, `^[a-z2-7]{32}$`, token)
	assert.Equal(t, security.DeriveSessionID(token), session.ID)
	assert.Equal(t, user.ID, session.UserID)
	assert.Equal(t, f.clock.Now().Add(domain.SessionTTL), session.ExpiresAt)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.True(t, f.sessions.Has(session.ID))
}

func TestAuthService_Login_InvalidCredentials(t *testing.T) {
	f := newAuthFixture()
	f.addUser(testutil.WithUsername("alice"))

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong_password", "alice", "wrong-password"},
		{"unknown_user", "nobody", testutil.TestPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, session, user, err := f.service.Login(context.Background(), tt.username, tt.password)
			assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
			assert.Empty(t, token)
			assert.Nil(t, session)
			assert.Nil(t, user)
		})
	}
	assert.Equal(t, 0, f.sessions.Len())
}

func TestAuthService_Login_StoreUnavailable(t *testing.T) {
	t.Run("user_lookup_fails", func(t *testing.T) {
		f := newAuthFixture()
		f.users.GetCredentialsByUsernameFunc = func(ctx context.Context, username string) (*domain.UserCredentials, error) {
			return nil, errors.New("connection refused")
		}

		_, _, _, err := f.service.Login(context.Background(), "alice", testutil.TestPassword)
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})

	t.Run("session_insert_fails", func(t *testing.T) {
		f := newAuthFixture()
		f.addUser(testutil.WithUsername("alice"))
		f.sessions.CreateFunc = func(ctx context.Context, session *domain.Session) error {
			return errors.New("connection refused")
		}

		_, _, _, err := f.service.Login(context.Background(), "alice", testutil.TestPassword)
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})
}

func TestAuthService_Login_RandomnessUnavailable(t *testing.T) {
	f := newAuthFixture(WithTokenGenerator(func() (string, error) {
		return "", domain.ErrRandomnessUnavailable
	}))
	f.addUser(testutil.WithUsername("alice"))

	_, _, _, err := f.service.Login(context.Background(), "alice", testutil.TestPassword)
	assert.ErrorIs(t, err, domain.ErrRandomnessUnavailable)
	assert.Equal(t, 0, f.sessions.Len())
}

func TestAuthService_CreateSession_UnknownUser(t *testing.T) {
	f := newAuthFixture()
	f.sessions.CreateFunc = func(ctx context.Context, session *domain.Session) error {
		return domain.ErrUserNotFound
	}

	_, _, err := f.service.CreateSession(context.Background(), "ghost")

	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestAuthService_CreateSession_Conflict(t *testing.T) {
	t.Run("retries_once_with_new_token", func(t *testing.T) {
		tokens := []string{"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"}
		calls := 0
		f := newAuthFixture(WithTokenGenerator(func() (string, error) {
			token := tokens[calls]
			calls++
			return token, nil
		}))
		_, existing := testutil.NewTestSession(testutil.WithToken(tokens[0]))
		f.sessions.Add(existing)

		token, session, err := f.service.CreateSession(context.Background(), "user-1")
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.Equal(t, tokens[1], token)
		assert.Equal(t, security.DeriveSessionID(tokens[1]), session.ID)
	})

	t.Run("gives_up_after_second_conflict", func(t *testing.T) {
		f := newAuthFixture()
		attempts := 0
		f.sessions.CreateFunc = func(ctx context.Context, session *domain.Session) error {
			attempts++
			return domain.ErrSessionConflict
		}

		_, _, err := f.service.CreateSession(context.Background(), "user-1")
		assert.ErrorIs(t, err, domain.ErrSessionConflict)
		assert.Equal(t, 2, attempts)
	})
}

func TestAuthService_ValidateSessionToken_RoundTrip(t *testing.T) {
	f := newAuthFixture()
	user := f.addUser()

	token, created, err := f.service.CreateSession(context.Background(), user.ID)
	require.NoError(t, err)

	result, err := f.service.ValidateSessionToken(context.Background(), token)
	require.NoError(t, err)
	require.True(t, result.Authenticated())
	assert.Equal(t, created.ID, result.Session.ID)
	assert.Equal(t, user.ID, result.Session.UserID)
	assert.Equal(t, user.ID, result.User.ID)
	assert.Equal(t, user.Username, result.User.Username)
}

func TestAuthService_ValidateSessionToken_Absent(t *testing.T) {
	f := newAuthFixture()

	tests := []struct {
		name  string
		token string
	}{
		{"empty_token", ""},
		{"never_issued", security.MustGenerateToken()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.service.ValidateSessionToken(context.Background(), tt.token)
			require.NoError(t, err)
			assert.False(t, result.Authenticated())
			assert.Nil(t, result.Session)
			assert.Nil(t, result.User)
		})
	}
}

func TestAuthService_ValidateSessionToken_ExpiryBoundary(t *testing.T) {
	tests := []struct {
		name          string
		offset        time.Duration
		authenticated bool
	}{
		{"one_nanosecond_before_expiry", -time.Nanosecond, true},
		{"exactly_at_expiry", 0, false},
		{"after_expiry", time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture()
			user := f.addUser()
			token, session := testutil.NewTestSession(
				testutil.WithSessionUserID(user.ID),
				testutil.WithExpiresAt(f.clock.Now().Add(-tt.offset)),
			)
			f.sessions.Add(session)

			result, err := f.service.ValidateSessionToken(context.Background(), token)
			require.NoError(t, err)
			assert.Equal(t, tt.authenticated, result.Authenticated())
			assert.Equal(t, tt.authenticated, f.sessions.Has(session.ID))
		})
	}
}

func TestAuthService_ValidateSessionToken_ThirtyOneDays(t *testing.T) {
	f := newAuthFixture()
	user := f.addUser()

	token, session, err := f.service.CreateSession(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, security.DeriveSessionID(token), session.ID)

	f.clock.Advance(29 * 24 * time.Hour)
	result, err := f.service.ValidateSessionToken(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, result.Authenticated())

	f.clock.Advance(2 * 24 * time.Hour)
	result, err = f.service.ValidateSessionToken(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, result.Authenticated())

	_, _, err = f.sessions.FindByID(context.Background(), session.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Equal(t, 0, f.sessions.Len())
}

func TestAuthService_ValidateSessionToken_Orphaned(t *testing.T) {
	f := newAuthFixture()
	user := f.addUser()

	token, session, err := f.service.CreateSession(context.Background(), user.ID)
	require.NoError(t, err)

	// Remove the owner without the cascade, as a partially applied delete would
	f.users.Remove(user.ID)

	result, err := f.service.ValidateSessionToken(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, result.Authenticated())
	assert.False(t, f.sessions.Has(session.ID))
}

func TestAuthService_ValidateSessionToken_StoreUnavailable(t *testing.T) {
	t.Run("lookup_fails", func(t *testing.T) {
		f := newAuthFixture()
		f.sessions.FindByIDFunc = func(ctx context.Context, id string) (*domain.Session, *domain.User, error) {
			return nil, nil, errors.New("connection refused")
		}

		result, err := f.service.ValidateSessionToken(context.Background(), security.MustGenerateToken())
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
		assert.False(t, result.Authenticated())
	})

	t.Run("expired_delete_fails", func(t *testing.T) {
		f := newAuthFixture()
		user := f.addUser()
		token, session := testutil.NewTestSession(
			testutil.WithSessionUserID(user.ID),
			testutil.WithExpiresAt(f.clock.Now().Add(-time.Hour)),
		)
		f.sessions.Add(session)
		f.sessions.DeleteFunc = func(ctx context.Context, id string) error {
			return errors.New("connection refused")
		}

		result, err := f.service.ValidateSessionToken(context.Background(), token)
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
		assert.False(t, result.Authenticated())
	})
}

func TestAuthService_ValidateSessionToken_ConcurrentExpiredDelete(t *testing.T) {
	f := newAuthFixture()
	user := f.addUser()
	token, session := testutil.NewTestSession(
		testutil.WithSessionUserID(user.ID),
		testutil.WithExpiresAt(f.clock.Now()),
	)
	f.sessions.Add(session)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.service.ValidateSessionToken(context.Background(), token)
			if result.Authenticated() {
				err = errors.New("expired session was honoured")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.False(t, f.sessions.Has(session.ID))
}

func TestAuthService_InvalidateSession(t *testing.T) {
	f := newAuthFixture()
	user := f.addUser()

	_, keep, err := f.service.CreateSession(context.Background(), user.ID)
	require.NoError(t, err)
	_, drop, err := f.service.CreateSession(context.Background(), user.ID)
	require.NoError(t, err)

	require.NoError(t, f.service.InvalidateSession(context.Background(), drop.ID))
	assert.False(t, f.sessions.Has(drop.ID))
	assert.True(t, f.sessions.Has(keep.ID))

	// Deleting again, or deleting an id that never existed, is fine
	require.NoError(t, f.service.InvalidateSession(context.Background(), drop.ID))
	require.NoError(t, f.service.InvalidateSession(context.Background(), security.DeriveSessionID("nope")))
	assert.True(t, f.sessions.Has(keep.ID))
}

func TestAuthService_InvalidateUserSessions(t *testing.T) {
	f := newAuthFixture()
	alice := f.addUser()
	bob := f.addUser()

	for i := 0; i < 3; i++ {
		_, _, err := f.service.CreateSession(context.Background(), alice.ID)
		require.NoError(t, err)
	}
	_, bobSession, err := f.service.CreateSession(context.Background(), bob.ID)
	require.NoError(t, err)

	count, err := f.service.InvalidateUserSessions(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.Equal(t, 1, f.sessions.Len())
	assert.True(t, f.sessions.Has(bobSession.ID))

	count, err = f.service.InvalidateUserSessions(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestAuthService_ListActiveSessions(t *testing.T) {
	f := newAuthFixture()
	user := f.addUser()

	_, live, err := f.service.CreateSession(context.Background(), user.ID)
	require.NoError(t, err)
	_, stale := testutil.NewTestSession(
		testutil.WithSessionUserID(user.ID),
		testutil.WithExpiresAt(f.clock.Now().Add(-time.Minute)),
	)
	f.sessions.Add(stale)

	sessions, err := f.service.ListActiveSessions(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, live.ID, sessions[0].ID)
}

func TestAuthService_ChangePassword(t *testing.T) {
	t.Run("revokes_all_sessions_and_issues_new_one", func(t *testing.T) {
		f := newAuthFixture()
		user := f.addUser()

		oldToken, _, err := f.service.CreateSession(context.Background(), user.ID)
		require.NoError(t, err)
		_, _, err = f.service.CreateSession(context.Background(), user.ID)
		require.NoError(t, err)

		newToken, session, err := f.service.ChangePassword(context.Background(), user.ID, testutil.TestPassword, "new-password-123")
		require.NoError(t, err)
		assert.Equal(t, 1, f.sessions.Len())
		assert.True(t, f.sessions.Has(session.ID))
		assert.NotEqual(t, oldToken, newToken)

		old, err := f.service.ValidateSessionToken(context.Background(), oldToken)
		require.NoError(t, err)
		assert.False(t, old.Authenticated())

		_, _, _, err = f.service.Login(context.Background(), user.Username, "new-password-123")
		assert.NoError(t, err)
	})

	t.Run("wrong_current_password", func(t *testing.T) {
		f := newAuthFixture()
		user := f.addUser()
		_, existing, err := f.service.CreateSession(context.Background(), user.ID)
		require.NoError(t, err)

		_, _, err = f.service.ChangePassword(context.Background(), user.ID, "not-my-password", "new-password-123")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
		assert.True(t, f.sessions.Has(existing.ID))
	})

	t.Run("weak_new_password", func(t *testing.T) {
		f := newAuthFixture()
		user := f.addUser()

		_, _, err := f.service.ChangePassword(context.Background(), user.ID, testutil.TestPassword, "short")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("store_failure", func(t *testing.T) {
		f := newAuthFixture()
		user := f.addUser()
		f.users.UpdatePasswordAndRevokeSessionsFunc = func(ctx context.Context, userID, passwordHash string) (int64, error) {
			return 0, errors.New("serialization failure")
		}

		_, _, err := f.service.ChangePassword(context.Background(), user.ID, testutil.TestPassword, "new-password-123")
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})
}

func TestAuthService_DeleteAccount(t *testing.T) {
	t.Run("removes_user_and_sessions", func(t *testing.T) {
		f := newAuthFixture()
		user := f.addUser()
		token, _, err := f.service.CreateSession(context.Background(), user.ID)
		require.NoError(t, err)

		require.NoError(t, f.service.DeleteAccount(context.Background(), user.ID, testutil.TestPassword))

		_, err = f.users.GetByID(context.Background(), user.ID)
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
		assert.Equal(t, 0, f.sessions.Len())

		result, err := f.service.ValidateSessionToken(context.Background(), token)
		require.NoError(t, err)
		assert.False(t, result.Authenticated())
	})

	t.Run("wrong_password", func(t *testing.T) {
		f := newAuthFixture()
		user := f.addUser()

		err := f.service.DeleteAccount(context.Background(), user.ID, "not-my-password")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

		_, err = f.users.GetByID(context.Background(), user.ID)
		assert.NoError(t, err)
	})
}

func TestAuthService_DeleteExpiredSessions(t *testing.T) {
	f := newAuthFixture()
	user := f.addUser()

	_, live, err := f.service.CreateSession(context.Background(), user.ID)
	require.NoError(t, err)
	for _, expiresAt := range []time.Time{f.clock.Now(), f.clock.Now().Add(-time.Hour)} {
		_, s := testutil.NewTestSession(testutil.WithSessionUserID(user.ID), testutil.WithExpiresAt(expiresAt))
		f.sessions.Add(s)
	}

	count, err := f.service.DeleteExpiredSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.True(t, f.sessions.Has(live.ID))
}
