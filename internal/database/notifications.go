package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gyaneshwarpardhi/opsalert/internal/store"
)

// CreateNotification inserts n. An existing id is left untouched.
func (db *DB) CreateNotification(ctx context.Context, n *store.Notification) error {
	data, err := marshalMap(n.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal notification data: %w", err)
	}
	query := `
		INSERT INTO notifications (id, user_id, event_id, event_type, category, severity, title, body, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = db.conn.ExecContext(ctx, query,
		n.ID, n.UserID, n.EventID, n.EventType, n.Category, n.Severity, n.Title, n.Body, data, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first. An empty
// userID lists everyone's.
func (db *DB) ListNotifications(ctx context.Context, userID string, limit int) ([]store.Notification, error) {
	query := `
		SELECT id, user_id, event_id, event_type, category, severity, title, body, data, created_at, read_at
		FROM notifications
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC, id
		LIMIT $2
	`
	rows, err := db.conn.QueryContext(ctx, query, userID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]store.Notification, 0)
	for rows.Next() {
		var n store.Notification
		var data []byte
		var readAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.UserID, &n.EventID, &n.EventType, &n.Category, &n.Severity,
			&n.Title, &n.Body, &data, &n.CreatedAt, &readAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if n.Data, err = unmarshalMap(data); err != nil {
			return nil, fmt.Errorf("notification %s data: %w", n.ID, err)
		}
		if readAt.Valid {
			t := readAt.Time
			n.ReadAt = &t
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return out, nil
}
