package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gyaneshwarpardhi/opsalert/internal/store"
)

// CreateTask inserts t. An existing id is left untouched.
func (db *DB) CreateTask(ctx context.Context, t *store.Task) error {
	meta, err := marshalMap(t.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal task metadata: %w", err)
	}
	query := `
		INSERT INTO tasks (id, kind, title, description, assignee_id, priority, status, due_at, event_id, event_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = db.conn.ExecContext(ctx, query,
		t.ID, t.Kind, t.Title, t.Description, t.AssigneeID, t.Priority, t.Status, t.DueAt,
		t.EventID, t.EventType, meta, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// ListTasks returns the tasks created for an event, or all tasks when
// eventID is empty, ordered by kind.
func (db *DB) ListTasks(ctx context.Context, eventID string) ([]store.Task, error) {
	query := `
		SELECT id, kind, title, description, assignee_id, priority, status, due_at, event_id, event_type, metadata, created_at
		FROM tasks
		WHERE ($1 = '' OR event_id = $1)
		ORDER BY kind, id
	`
	rows, err := db.conn.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]store.Task, 0)
	for rows.Next() {
		var t store.Task
		var assignee sql.NullString
		var meta []byte
		if err := rows.Scan(&t.ID, &t.Kind, &t.Title, &t.Description, &assignee, &t.Priority, &t.Status,
			&t.DueAt, &t.EventID, &t.EventType, &meta, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.AssigneeID = assignee.String
		if t.Metadata, err = unmarshalMap(meta); err != nil {
			return nil, fmt.Errorf("task %s metadata: %w", t.ID, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return out, nil
}
