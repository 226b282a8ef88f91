package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// SQLSTATE codes the repositories translate into domain errors.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// Constraint names generated by the migrations.
const (
	constraintUsersUsernameKey = "users_username_key"
	constraintUsersEmailKey    = "users_email_key"
	constraintSessionsPkey     = "sessions_pkey"
	constraintSessionsUserFkey = "sessions_user_id_fkey"
)

// IsUniqueViolation reports whether err is a unique constraint violation.
// An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	return hasCode(err, pqUniqueViolation, constraint)
}

// IsForeignKeyViolation reports whether err is a foreign key violation.
// An empty constraint matches any foreign key violation.
func IsForeignKeyViolation(err error, constraint string) bool {
	return hasCode(err, pqForeignKeyViolation, constraint)
}

func hasCode(err error, code pq.ErrorCode, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != code {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
