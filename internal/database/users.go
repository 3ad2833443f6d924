package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

// Get returns a user by id.
func (db *DB) Get(ctx context.Context, id string) (user.User, error) {
	query := `SELECT id, name, email, role, COALESCE(manager_id, '') FROM users WHERE id = $1`
	var u user.User
	err := db.conn.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.ManagerID)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ListByRole returns users holding any of roles, ordered by id.
func (db *DB) ListByRole(ctx context.Context, roles ...user.Role) ([]user.User, error) {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	query := `SELECT id, name, email, role, COALESCE(manager_id, '') FROM users WHERE role = ANY($1) ORDER BY id`
	rows, err := db.conn.QueryContext(ctx, query, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	defer rows.Close()

	out := make([]user.User, 0)
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.ManagerID); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return out, nil
}

// UpsertUsers seeds the directory, typically from the config file.
func (db *DB) UpsertUsers(ctx context.Context, users []user.User) error {
	query := `
		INSERT INTO users (id, name, email, role, manager_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			manager_id = EXCLUDED.manager_id,
			updated_at = NOW()
	`
	for _, u := range users {
		if _, err := db.conn.ExecContext(ctx, query, u.ID, u.Name, u.Email, string(u.Role), u.ManagerID); err != nil {
			return fmt.Errorf("failed to upsert user %s: %w", u.ID, err)
		}
	}
	return nil
}
