package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/gyaneshwarpardhi/opsalert/internal/store"
)

// InsertTracking appends r. An existing id is left untouched.
func (db *DB) InsertTracking(ctx context.Context, r *store.TrackingRecord) error {
	data, err := marshalMap(r.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal tracking data: %w", err)
	}
	indicators := r.Indicators
	if indicators == nil {
		indicators = []string{}
	}
	query := `
		INSERT INTO tracking_records (id, category, event_type, event_id, actor_id, subject_id, amount, score, severity, indicators, data, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = db.conn.ExecContext(ctx, query,
		r.ID, r.Category, r.EventType, r.EventID, r.ActorID, r.SubjectID, r.Amount, r.Score, r.Severity,
		pq.Array(indicators), data, r.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert tracking record: %w", err)
	}
	return nil
}

// CountTracking counts the rows of a category matching f.
func (db *DB) CountTracking(ctx context.Context, category string, f store.TrackingFilter) (int, error) {
	where := []string{"category = $1"}
	args := []any{category}
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.EventType != "" {
		add("event_type = $%d", f.EventType)
	}
	if f.ActorID != "" {
		add("actor_id = $%d", f.ActorID)
	}
	if f.SubjectID != "" {
		add("subject_id = $%d", f.SubjectID)
	}
	if f.Indicator != "" {
		add("$%d = ANY(indicators)", f.Indicator)
	}
	if !f.Since.IsZero() {
		add("occurred_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("occurred_at <= $%d", f.Until)
	}
	query := "SELECT COUNT(*) FROM tracking_records WHERE " + strings.Join(where, " AND ")

	var n int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tracking records: %w", err)
	}
	return n, nil
}

// SavePattern upserts a pattern analysis.
func (db *DB) SavePattern(ctx context.Context, p *store.PatternAnalysis) error {
	recs := p.Recommendations
	if recs == nil {
		recs = []string{}
	}
	query := `
		INSERT INTO pattern_analyses (id, category, event_type, event_id, score, risk_level, indicators, recommendations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			score = EXCLUDED.score,
			risk_level = EXCLUDED.risk_level,
			indicators = EXCLUDED.indicators,
			recommendations = EXCLUDED.recommendations
	`
	_, err := db.conn.ExecContext(ctx, query,
		p.ID, p.Category, p.EventType, p.EventID, p.Score, p.RiskLevel,
		pq.Array(p.Indicators), pq.Array(recs), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save pattern analysis: %w", err)
	}
	return nil
}
