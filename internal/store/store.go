// Package store defines the persisted rows written by the alert pipeline
// and the interfaces the pipeline writes them through.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// NotificationStore persists in-app notifications. Creating a notification
// whose ID already exists is a no-op.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error)
}

// TaskStore persists follow-up tasks. Creating a task whose ID already
// exists is a no-op.
type TaskStore interface {
	CreateTask(ctx context.Context, t *Task) error
	ListTasks(ctx context.Context, eventID string) ([]Task, error)
}

// TrackingStore holds the append-only history used by pattern detection.
type TrackingStore interface {
	InsertTracking(ctx context.Context, r *TrackingRecord) error
	CountTracking(ctx context.Context, category string, f TrackingFilter) (int, error)
}

// PatternStore persists pattern analysis results.
type PatternStore interface {
	SavePattern(ctx context.Context, p *PatternAnalysis) error
}

// ExpenseStore writes back expense status. BlockExpense reports whether the
// call changed anything; blocking an already blocked expense returns false.
type ExpenseStore interface {
	BlockExpense(ctx context.Context, expenseID, reason string) (bool, error)
	ExpenseStatus(ctx context.Context, expenseID string) (string, error)
}

// DeadLetterStore keeps jobs that exhausted their retries for replay.
type DeadLetterStore interface {
	SaveDeadLetter(ctx context.Context, d *DeadLetter) error
	ListDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error)
	GetDeadLetter(ctx context.Context, id string) (DeadLetter, error)
	DeleteDeadLetter(ctx context.Context, id string) error
}

// Store is everything the pipeline persists.
type Store interface {
	NotificationStore
	TaskStore
	TrackingStore
	PatternStore
	ExpenseStore
	DeadLetterStore
}
