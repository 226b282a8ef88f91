package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"liftlog/internal/observability"
)

// TxManager runs multi-statement writes, such as a password change that must
// also revoke sessions, in a single transaction.
type TxManager struct {
	db *sql.DB
}

func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// WithTx runs fn in a transaction, committing if fn returns nil and rolling
// back otherwise. op names the unit of work in the query duration metric.
func (tm *TxManager) WithTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	defer observability.ObserveDBQuery(op, "tx", time.Now())

	tx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			observability.FromContext(ctx).Error("transaction rollback failed",
				"op", op,
				"error", rbErr,
			)
			return errors.Join(err, fmt.Errorf("failed to roll back transaction: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
