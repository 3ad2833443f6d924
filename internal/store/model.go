package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Notification is the in-app record created for one recipient of an alert.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Category  string         `json:"category"`
	Severity  string         `json:"severity"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
}

// Task priorities.
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Task statuses.
const (
	TaskOpen = "open"
	TaskDone = "done"
)

// Task is a follow-up work item created from an alert.
type Task struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	AssigneeID  string         `json:"assignee_id,omitempty"`
	Priority    string         `json:"priority"`
	Status      string         `json:"status"`
	DueAt       time.Time      `json:"due_at"`
	EventID     string         `json:"event_id"`
	EventType   string         `json:"event_type"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TrackingRecord is an append-only row describing one alert occurrence.
// ActorID and SubjectID are the keys pattern queries group by; what they
// hold depends on the category (seller, deleter, IP address, client…).
type TrackingRecord struct {
	ID         string         `json:"id"`
	Category   string         `json:"category"`
	EventType  string         `json:"event_type"`
	EventID    string         `json:"event_id"`
	ActorID    string         `json:"actor_id,omitempty"`
	SubjectID  string         `json:"subject_id,omitempty"`
	Amount     float64        `json:"amount"`
	Score      float64        `json:"score"`
	Severity   string         `json:"severity"`
	Indicators []string       `json:"indicators,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// HasIndicator reports whether the row carries tag.
func (r TrackingRecord) HasIndicator(tag string) bool {
	for _, t := range r.Indicators {
		if t == tag {
			return true
		}
	}
	return false
}

// TrackingFilter selects rows for pattern queries. Empty fields match all.
type TrackingFilter struct {
	EventType string
	ActorID   string
	SubjectID string
	Indicator string
	Since     time.Time
	Until     time.Time // inclusive
}

// Match reports whether r satisfies f.
func (f TrackingFilter) Match(r TrackingRecord) bool {
	if f.EventType != "" && r.EventType != f.EventType {
		return false
	}
	if f.ActorID != "" && r.ActorID != f.ActorID {
		return false
	}
	if f.SubjectID != "" && r.SubjectID != f.SubjectID {
		return false
	}
	if f.Indicator != "" && !r.HasIndicator(f.Indicator) {
		return false
	}
	if !f.Since.IsZero() && r.OccurredAt.Before(f.Since) {
		return false
	}
	return f.Until.IsZero() || !r.OccurredAt.After(f.Until)
}

// PatternAnalysis is persisted when pattern detection finds indicators.
type PatternAnalysis struct {
	ID              string    `json:"id"`
	Category        string    `json:"category"`
	EventType       string    `json:"event_type"`
	EventID         string    `json:"event_id"`
	Score           float64   `json:"score"`
	RiskLevel       string    `json:"risk_level"`
	Indicators      []string  `json:"indicators"`
	Recommendations []string  `json:"recommendations,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Expense statuses written back by follow-ups.
const ExpenseBlocked = "blocked"

// DeadLetter is a job that exhausted its retries.
type DeadLetter struct {
	ID        string          `json:"id"`
	Queue     string          `json:"queue"`
	JobName   string          `json:"job_name"`
	EventType string          `json:"event_type"`
	EventID   string          `json:"event_id"`
	Target    string          `json:"target,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error"`
	FailedAt  time.Time       `json:"failed_at"`
}

var idSpace = uuid.MustParse("6f1c8a52-3d0b-4c57-9a3e-2b7f4e1d9c10")

// DerivedID returns a stable id for the given parts so that a retried step
// writes the same row instead of a duplicate.
func DerivedID(parts ...string) string {
	return uuid.NewSHA1(idSpace, []byte(strings.Join(parts, "\x00"))).String()
}
