package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/opsalert/internal/store"
)

// BlockExpense marks an expense blocked. The conditional upsert touches no
// row when the expense is already blocked, so RowsAffected tells whether
// this call changed anything.
func (db *DB) BlockExpense(ctx context.Context, expenseID, reason string) (bool, error) {
	query := `
		INSERT INTO expenses (id, status, blocked_reason, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			blocked_reason = EXCLUDED.blocked_reason,
			updated_at = NOW()
		WHERE expenses.status <> EXCLUDED.status
	`
	res, err := db.conn.ExecContext(ctx, query, expenseID, store.ExpenseBlocked, reason)
	if err != nil {
		return false, fmt.Errorf("failed to block expense %s: %w", expenseID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (db *DB) ExpenseStatus(ctx context.Context, expenseID string) (string, error) {
	var status string
	err := db.conn.QueryRowContext(ctx, `SELECT status FROM expenses WHERE id = $1`, expenseID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get expense status: %w", err)
	}
	return status, nil
}
