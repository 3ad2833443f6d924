// Package leaderboard keeps the aggregates that concurrent dispatches update
// in place: sales totals per salesperson and per period, and alert
// monitoring counters per category and severity. Every update is an atomic
// increment so no dispatch can lose another's write, and each update is
// keyed by the alert's event ID so a retried or replayed dispatch counts
// once.
package leaderboard

import (
	"context"
	"time"
)

// PeriodAllTime names the all-time sales board.
const PeriodAllTime = "all"

// DedupeTTL is how long an applied event ID is remembered. It outlives the
// retry schedule and the usual dead-letter replay delay.
const DedupeTTL = 30 * 24 * time.Hour

// Entry is one salesperson's standing on a board.
type Entry struct {
	UserID string  `json:"user_id"`
	Total  float64 `json:"total"`
}

// Board is the keyed aggregate store.
type Board interface {
	// RecordSale adds amount to the seller's monthly and all-time totals
	// unless eventID was already recorded. It reports whether it applied.
	RecordSale(ctx context.Context, eventID, sellerID string, amount float64, at time.Time) (bool, error)
	// IncrementMonitoring bumps the alert counter for category and severity
	// unless eventID was already counted. It reports whether it applied.
	IncrementMonitoring(ctx context.Context, eventID, category, severity string) (bool, error)
	// Top returns the n best sellers of a period, highest total first.
	Top(ctx context.Context, period string, n int) ([]Entry, error)
	// Monitoring returns every alert counter keyed "category:severity".
	Monitoring(ctx context.Context) (map[string]int64, error)
}

// MonthOf returns the monthly period holding t.
func MonthOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func monitoringField(category, severity string) string {
	return category + ":" + severity
}

func saleKey(eventID string) string       { return "sale:" + eventID }
func monitoringKey(eventID string) string { return "monitoring:" + eventID }
