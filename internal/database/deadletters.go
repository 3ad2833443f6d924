package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/opsalert/internal/store"
)

const deadLetterColumns = `id, queue, job_name, event_type, event_id, target, payload, attempts, last_error, failed_at`

// SaveDeadLetter upserts d.
func (db *DB) SaveDeadLetter(ctx context.Context, d *store.DeadLetter) error {
	var payload []byte
	if len(d.Payload) > 0 {
		payload = d.Payload
	}
	query := `
		INSERT INTO dead_letters (` + deadLetterColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			failed_at = EXCLUDED.failed_at
	`
	_, err := db.conn.ExecContext(ctx, query,
		d.ID, d.Queue, d.JobName, d.EventType, d.EventID, d.Target, payload, d.Attempts, d.LastError, d.FailedAt)
	if err != nil {
		return fmt.Errorf("failed to save dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns dead letters, most recent failure first.
func (db *DB) ListDeadLetters(ctx context.Context, limit int) ([]store.DeadLetter, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters ORDER BY failed_at DESC, id LIMIT $1`
	rows, err := db.conn.QueryContext(ctx, query, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	out := make([]store.DeadLetter, 0)
	for rows.Next() {
		d, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dead letters: %w", err)
	}
	return out, nil
}

func (db *DB) GetDeadLetter(ctx context.Context, id string) (store.DeadLetter, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+deadLetterColumns+` FROM dead_letters WHERE id = $1`, id)
	d, err := scanDeadLetter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.DeadLetter{}, store.ErrNotFound
	}
	return d, err
}

func (db *DB) DeleteDeadLetter(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dead letter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDeadLetter(s scanner) (store.DeadLetter, error) {
	var d store.DeadLetter
	var payload []byte
	err := s.Scan(&d.ID, &d.Queue, &d.JobName, &d.EventType, &d.EventID, &d.Target, &payload,
		&d.Attempts, &d.LastError, &d.FailedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d, err
	}
	if err != nil {
		return d, fmt.Errorf("failed to scan dead letter: %w", err)
	}
	if len(payload) > 0 {
		d.Payload = json.RawMessage(payload)
	}
	return d, nil
}
