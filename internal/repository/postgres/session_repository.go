package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"liftlog/internal/domain"
	"liftlog/internal/observability"
)

const (
	createSessionQuery = `
		INSERT INTO sessions (id, user_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	findSessionByIDQuery = `
		SELECT s.id, s.user_id, s.expires_at, s.created_at,
			u.id, u.username, u.email, u.created_at
		FROM sessions s
		LEFT JOIN users u ON u.id = s.user_id
		WHERE s.id = $1
	`
	listSessionsByUserQuery = `
		SELECT id, user_id, expires_at, created_at
		FROM sessions
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY created_at DESC
	`
	deleteSessionQuery        = `DELETE FROM sessions WHERE id = $1`
	deleteSessionsByUserQuery = `DELETE FROM sessions WHERE user_id = $1`
	deleteExpiredQuery        = `DELETE FROM sessions WHERE expires_at <= $1`
)

// SessionRepository implements domain.SessionRepository for PostgreSQL
type SessionRepository struct {
	db                *sql.DB
	createStmt        *sql.Stmt
	findByIDStmt      *sql.Stmt
	listByUserStmt    *sql.Stmt
	deleteStmt        *sql.Stmt
	deleteByUserStmt  *sql.Stmt
	deleteExpiredStmt *sql.Stmt
}

// NewSessionRepository creates a new SessionRepository with prepared statements.
// Returns an error if statement preparation fails.
func NewSessionRepository(db *sql.DB) (*SessionRepository, error) {
	repo := &SessionRepository{db: db}

	stmts := []struct {
		name  string
		query string
		dst   **sql.Stmt
	}{
		{"create", createSessionQuery, &repo.createStmt},
		{"findByID", findSessionByIDQuery, &repo.findByIDStmt},
		{"listByUser", listSessionsByUserQuery, &repo.listByUserStmt},
		{"delete", deleteSessionQuery, &repo.deleteStmt},
		{"deleteByUser", deleteSessionsByUserQuery, &repo.deleteByUserStmt},
		{"deleteExpired", deleteExpiredQuery, &repo.deleteExpiredStmt},
	}

	for _, s := range stmts {
		stmt, err := db.Prepare(s.query)
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to prepare %s statement: %w", s.name, err)
		}
		*s.dst = stmt
	}

	return repo, nil
}

// Close releases the prepared statements.
func (r *SessionRepository) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{
		r.createStmt, r.findByIDStmt, r.listByUserStmt,
		r.deleteStmt, r.deleteByUserStmt, r.deleteExpiredStmt,
	} {
		if stmt == nil {
			continue
		}
		if err := stmt.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	defer observability.ObserveDBQuery("create", "sessions", time.Now())

	err := r.createStmt.QueryRowContext(ctx,
		session.ID,
		session.UserID,
		session.ExpiresAt,
	).Scan(&session.CreatedAt)

	if IsUniqueViolation(err, constraintSessionsPkey) {
		return domain.ErrSessionConflict
	}
	if IsForeignKeyViolation(err, constraintSessionsUserFkey) {
		return domain.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*domain.Session, *domain.User, error) {
	defer observability.ObserveDBQuery("find_by_id", "sessions", time.Now())

	session := &domain.Session{}
	var (
		userID        sql.NullString
		username      sql.NullString
		email         sql.NullString
		userCreatedAt sql.NullTime
	)

	err := r.findByIDStmt.QueryRowContext(ctx, id).Scan(
		&session.ID,
		&session.UserID,
		&session.ExpiresAt,
		&session.CreatedAt,
		&userID,
		&username,
		&email,
		&userCreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get session by id: %w", err)
	}

	if !userID.Valid {
		return session, nil, nil
	}

	user := &domain.User{
		ID:        userID.String,
		Username:  username.String,
		Email:     email.String,
		CreatedAt: userCreatedAt.Time,
	}
	return session, user, nil
}

func (r *SessionRepository) ListByUserID(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	defer observability.ObserveDBQuery("list_by_user", "sessions", time.Now())

	rows, err := r.listByUserStmt.QueryContext(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		s := &domain.Session{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	defer observability.ObserveDBQuery("delete", "sessions", time.Now())

	_, err := r.deleteStmt.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	defer observability.ObserveDBQuery("delete_by_user", "sessions", time.Now())

	result, err := r.deleteByUserStmt.ExecContext(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return rowsAffected(result)
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	defer observability.ObserveDBQuery("delete_expired", "sessions", time.Now())

	result, err := r.deleteExpiredStmt.ExecContext(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return rowsAffected(result)
}

func rowsAffected(result sql.Result) (int64, error) {
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return count, nil
}
