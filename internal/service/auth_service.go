package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"liftlog/internal/domain"
	"liftlog/internal/observability"
	"liftlog/internal/security"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const defaultBcryptCost = 12

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

type AuthService struct {
	userRepo    domain.UserRepository
	sessionRepo domain.SessionRepository
	now         func() time.Time
	newToken    func() (string, error)
	bcryptCost  int
}

// Option configures an AuthService.
type Option func(*AuthService)

// WithClock replaces time.Now as the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		s.now = now
	}
}

// WithTokenGenerator replaces security.GenerateToken.
func WithTokenGenerator(gen func() (string, error)) Option {
	return func(s *AuthService) {
		s.newToken = gen
	}
}

// WithBcryptCost sets the cost used when hashing new passwords.
func WithBcryptCost(cost int) Option {
	return func(s *AuthService) {
		s.bcryptCost = cost
	}
}

func NewAuthService(userRepo domain.UserRepository, sessionRepo domain.SessionRepository, opts ...Option) *AuthService {
	s := &AuthService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		now:         time.Now,
		newToken:    security.GenerateToken,
		bcryptCost:  defaultBcryptCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AuthService) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	if len(username) < 3 || len(username) > 50 {
		return nil, domain.ErrInvalidInput
	}
	if !usernameRegex.MatchString(username) {
		return nil, domain.ErrInvalidInput
	}
	if !emailRegex.MatchString(email) || len(email) > 255 {
		return nil, domain.ErrInvalidInput
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &domain.UserCredentials{
		User: domain.User{
			ID:       uuid.NewString(),
			Username: username,
			Email:    email,
		},
		PasswordHash: hash,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrUsernameExists) || errors.Is(err, domain.ErrEmailExists) {
			return nil, err
		}
		return nil, storeError(err)
	}

	observability.FromContext(ctx).Info("user registered", "user_id", user.ID)
	return &user.User, nil
}

// Login checks the credentials and opens a new session. The returned token is
// the only copy of the session secret; it must go to the client and nowhere else.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *domain.Session, *domain.User, error) {
	creds, err := s.userRepo.GetCredentialsByUsername(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return "", nil, nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, nil, storeError(err)
	}

	if err := bcrypt.CompareHashAndPassword(
		[]byte(creds.PasswordHash), []byte(password),
	); err != nil {
		return "", nil, nil, domain.ErrInvalidCredentials
	}

	token, session, err := s.CreateSession(ctx, creds.ID)
	if err != nil {
		return "", nil, nil, err
	}

	return token, session, &creds.User, nil
}

// CreateSession mints a token and stores the session derived from it.
// A session id collision is retried once with a fresh token.
func (s *AuthService) CreateSession(ctx context.Context, userID string) (string, *domain.Session, error) {
	log := observability.FromContext(ctx)

	for attempt := 1; ; attempt++ {
		token, err := s.newToken()
		if err != nil {
			log.Error("failed to generate session token", "error", err)
			return "", nil, err
		}

		session := &domain.Session{
			ID:        security.DeriveSessionID(token),
			UserID:    userID,
			ExpiresAt: s.now().Add(domain.SessionTTL),
		}

		err = s.sessionRepo.Create(ctx, session)
		if errors.Is(err, domain.ErrSessionConflict) {
			log.Warn("session id collision", "user_id", userID, "attempt", attempt)
			if attempt < 2 {
				continue
			}
			return "", nil, err
		}
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", nil, err
		}
		if err != nil {
			return "", nil, storeError(err)
		}

		observability.SessionsCreated.Inc()
		log.Info("session created", "user_id", userID)
		return token, session, nil
	}
}

// ValidateSessionToken resolves a client-held token to its session and user.
// Unknown, expired and orphaned sessions all yield an empty result with a nil
// error; expired and orphaned ones are deleted on the way. Only store failures
// return an error.
func (s *AuthService) ValidateSessionToken(ctx context.Context, token string) (domain.SessionValidationResult, error) {
	var absent domain.SessionValidationResult

	if token == "" {
		observability.SessionValidations.WithLabelValues(observability.ValidationAbsent).Inc()
		return absent, nil
	}

	sessionID := security.DeriveSessionID(token)
	session, user, err := s.sessionRepo.FindByID(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		observability.SessionValidations.WithLabelValues(observability.ValidationAbsent).Inc()
		return absent, nil
	}
	if err != nil {
		observability.SessionValidations.WithLabelValues(observability.ValidationError).Inc()
		return absent, storeError(err)
	}

	if session.IsExpired(s.now()) {
		observability.SessionValidations.WithLabelValues(observability.ValidationExpired).Inc()
		return absent, s.discard(ctx, session, "expired")
	}

	if user == nil {
		observability.SessionValidations.WithLabelValues(observability.ValidationOrphaned).Inc()
		observability.FromContext(ctx).Warn("session owner no longer exists", "user_id", session.UserID)
		return absent, s.discard(ctx, session, "orphaned")
	}

	observability.SessionValidations.WithLabelValues(observability.ValidationValid).Inc()
	return domain.SessionValidationResult{Session: session, User: user}, nil
}

func (s *AuthService) discard(ctx context.Context, session *domain.Session, reason string) error {
	if err := s.sessionRepo.Delete(ctx, session.ID); err != nil {
		return storeError(err)
	}
	observability.SessionsInvalidated.WithLabelValues(reason).Inc()
	return nil
}

// InvalidateSession deletes a single session. Missing sessions are not an error.
func (s *AuthService) InvalidateSession(ctx context.Context, sessionID string) error {
	if err := s.sessionRepo.Delete(ctx, sessionID); err != nil {
		return storeError(err)
	}
	observability.SessionsInvalidated.WithLabelValues("logout").Inc()
	return nil
}

// InvalidateUserSessions signs the user out everywhere.
func (s *AuthService) InvalidateUserSessions(ctx context.Context, userID string) (int64, error) {
	count, err := s.sessionRepo.DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, storeError(err)
	}
	observability.SessionsInvalidated.WithLabelValues("revoke_all").Add(float64(count))
	observability.FromContext(ctx).Info("user sessions revoked", "user_id", userID, "count", count)
	return count, nil
}

// ListActiveSessions returns the user's unexpired sessions, newest first.
func (s *AuthService) ListActiveSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	sessions, err := s.sessionRepo.ListByUserID(ctx, userID, s.now())
	if err != nil {
		return nil, storeError(err)
	}
	return sessions, nil
}

// ChangePassword verifies the current password, stores the new one and
// revokes every session of the user, then opens a fresh session for the caller.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (string, *domain.Session, error) {
	if err := validatePassword(newPassword); err != nil {
		return "", nil, err
	}

	creds, err := s.userRepo.GetCredentialsByID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return "", nil, err
	}
	if err != nil {
		return "", nil, storeError(err)
	}

	if err := bcrypt.CompareHashAndPassword(
		[]byte(creds.PasswordHash), []byte(currentPassword),
	); err != nil {
		return "", nil, domain.ErrInvalidCredentials
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return "", nil, err
	}

	revoked, err := s.userRepo.UpdatePasswordAndRevokeSessions(ctx, userID, hash)
	if errors.Is(err, domain.ErrUserNotFound) {
		return "", nil, err
	}
	if err != nil {
		return "", nil, storeError(err)
	}
	observability.SessionsInvalidated.WithLabelValues("password_change").Add(float64(revoked))
	observability.FromContext(ctx).Info("password changed", "user_id", userID, "sessions_revoked", revoked)

	return s.CreateSession(ctx, userID)
}

// DeleteAccount removes the user after confirming the password. Its sessions
// are removed with it.
func (s *AuthService) DeleteAccount(ctx context.Context, userID, password string) error {
	creds, err := s.userRepo.GetCredentialsByID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return err
	}
	if err != nil {
		return storeError(err)
	}

	if err := bcrypt.CompareHashAndPassword(
		[]byte(creds.PasswordHash), []byte(password),
	); err != nil {
		return domain.ErrInvalidCredentials
	}

	if err := s.userRepo.Delete(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		return storeError(err)
	}

	observability.FromContext(ctx).Info("account deleted", "user_id", userID)
	return nil
}

// DeleteExpiredSessions removes every session expired at the current time.
func (s *AuthService) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	count, err := s.sessionRepo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, storeError(err)
	}
	return count, nil
}

func (s *AuthService) hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func validatePassword(password string) error {
	if len(password) < 8 || len(password) > 72 {
		return domain.ErrInvalidInput
	}
	return nil
}

func storeError(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
