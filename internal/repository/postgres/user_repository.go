package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"liftlog/internal/domain"
)

const (
	createUserQuery = `
		INSERT INTO users (id, username, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	getUserByIDQuery = `
		SELECT id, username, email, created_at
		FROM users
		WHERE id = $1
	`
	getCredentialsByIDQuery = `
		SELECT id, username, email, password_hash, created_at
		FROM users
		WHERE id = $1
	`
	getCredentialsByUsernameQuery = `
		SELECT id, username, email, password_hash, created_at
		FROM users
		WHERE username = $1
	`
	updatePasswordQuery = `UPDATE users SET password_hash = $2 WHERE id = $1`
	deleteUserQuery     = `DELETE FROM users WHERE id = $1`
)

// UserRepository implements domain.UserRepository for PostgreSQL
type UserRepository struct {
	db                     *sql.DB
	tx                     *TxManager
	createStmt             *sql.Stmt
	getByIDStmt            *sql.Stmt
	getCredentialsByIDStmt *sql.Stmt
	getCredentialsByName   *sql.Stmt
	deleteStmt             *sql.Stmt
}

// NewUserRepository creates a new UserRepository with prepared statements.
// The password update runs through tx so that it revokes sessions atomically.
func NewUserRepository(db *sql.DB, tx *TxManager) (*UserRepository, error) {
	repo := &UserRepository{db: db, tx: tx}

	stmts := []struct {
		name  string
		query string
		dst   **sql.Stmt
	}{
		{"create", createUserQuery, &repo.createStmt},
		{"getByID", getUserByIDQuery, &repo.getByIDStmt},
		{"getCredentialsByID", getCredentialsByIDQuery, &repo.getCredentialsByIDStmt},
		{"getCredentialsByUsername", getCredentialsByUsernameQuery, &repo.getCredentialsByName},
		{"delete", deleteUserQuery, &repo.deleteStmt},
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
func (r *UserRepository) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{
		r.createStmt,
		r.getByIDStmt,
		r.getCredentialsByIDStmt,
		r.getCredentialsByName,
		r.deleteStmt,
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

// Create inserts a new user. The caller assigns user.ID.
func (r *UserRepository) Create(ctx context.Context, user *domain.UserCredentials) error {
	err := r.createStmt.QueryRowContext(ctx,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
	).Scan(&user.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err, constraintUsersUsernameKey) {
			return domain.ErrUsernameExists
		}
		if IsUniqueViolation(err, constraintUsersEmailKey) {
			return domain.ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user's public profile
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user := &domain.User{}
	err := r.getByIDStmt.QueryRowContext(ctx, id).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

func (r *UserRepository) GetCredentialsByID(ctx context.Context, id string) (*domain.UserCredentials, error) {
	creds, err := scanCredentials(r.getCredentialsByIDStmt.QueryRowContext(ctx, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials by id: %w", err)
	}
	return creds, nil
}

func (r *UserRepository) GetCredentialsByUsername(ctx context.Context, username string) (*domain.UserCredentials, error) {
	creds, err := scanCredentials(r.getCredentialsByName.QueryRowContext(ctx, username))
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials by username: %w", err)
	}
	return creds, nil
}

func scanCredentials(row *sql.Row) (*domain.UserCredentials, error) {
	creds := &domain.UserCredentials{}
	err := row.Scan(
		&creds.ID,
		&creds.Username,
		&creds.Email,
		&creds.PasswordHash,
		&creds.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return creds, nil
}

// UpdatePasswordAndRevokeSessions stores the new hash and removes every session of the user
// in a single transaction.
func (r *UserRepository) UpdatePasswordAndRevokeSessions(ctx context.Context, userID, passwordHash string) (int64, error) {
	var revoked int64

	err := r.tx.WithTx(ctx, "update_password", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, updatePasswordQuery, userID, passwordHash)
		if err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		updated, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if updated == 0 {
			return domain.ErrUserNotFound
		}

		res, err = tx.ExecContext(ctx, deleteSessionsByUserQuery, userID)
		if err != nil {
			return fmt.Errorf("failed to delete user sessions: %w", err)
		}
		revoked, err = rowsAffected(res)
		return err
	})
	if err != nil {
		return 0, err
	}

	return revoked, nil
}

// Delete removes the user. Sessions are removed by the foreign key cascade.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	res, err := r.deleteStmt.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
