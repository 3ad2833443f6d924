package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process Store used when no database is configured and
// in tests.
type Memory struct {
	mu            sync.RWMutex
	notifications map[string]Notification
	tasks         map[string]Task
	tracking      map[string][]TrackingRecord // category -> rows
	trackingIDs   map[string]struct{}
	patterns      map[string]PatternAnalysis
	expenses      map[string]string
	deadLetters   map[string]DeadLetter
}

func NewMemory() *Memory {
	return &Memory{
		notifications: make(map[string]Notification),
		tasks:         make(map[string]Task),
		tracking:      make(map[string][]TrackingRecord),
		trackingIDs:   make(map[string]struct{}),
		patterns:      make(map[string]PatternAnalysis),
		expenses:      make(map[string]string),
		deadLetters:   make(map[string]DeadLetter),
	}
}

func (m *Memory) CreateNotification(_ context.Context, n *Notification) error {
	if n.ID == "" {
		return fmt.Errorf("notification id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notifications[n.ID]; !ok {
		m.notifications[n.ID] = *n
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first. An empty
// userID lists everyone's.
func (m *Memory) ListNotifications(_ context.Context, userID string, limit int) ([]Notification, error) {
	m.mu.RLock()
	out := make([]Notification, 0)
	for _, n := range m.notifications {
		if userID == "" || n.UserID == userID {
			out = append(out, n)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return truncate(out, limit), nil
}

func (m *Memory) CreateTask(_ context.Context, t *Task) error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; !ok {
		m.tasks[t.ID] = *t
	}
	return nil
}

// ListTasks returns the tasks created for an event, or all tasks when
// eventID is empty, ordered by kind.
func (m *Memory) ListTasks(_ context.Context, eventID string) ([]Task, error) {
	m.mu.RLock()
	out := make([]Task, 0)
	for _, t := range m.tasks {
		if eventID == "" || t.EventID == eventID {
			out = append(out, t)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind == out[j].Kind {
			return out[i].ID < out[j].ID
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

func (m *Memory) InsertTracking(_ context.Context, r *TrackingRecord) error {
	if r.ID == "" {
		return fmt.Errorf("tracking id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trackingIDs[r.ID]; ok {
		return nil
	}
	m.trackingIDs[r.ID] = struct{}{}
	m.tracking[r.Category] = append(m.tracking[r.Category], *r)
	return nil
}

func (m *Memory) CountTracking(_ context.Context, category string, f TrackingFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.tracking[category] {
		if f.Match(r) {
			n++
		}
	}
	return n, nil
}

// Tracking returns a copy of a category's rows in insertion order.
func (m *Memory) Tracking(category string) []TrackingRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]TrackingRecord(nil), m.tracking[category]...)
}

func (m *Memory) SavePattern(_ context.Context, p *PatternAnalysis) error {
	if p.ID == "" {
		return fmt.Errorf("pattern id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns[p.ID] = *p
	return nil
}

// Patterns returns every saved analysis ordered by creation time.
func (m *Memory) Patterns() []PatternAnalysis {
	m.mu.RLock()
	out := make([]PatternAnalysis, 0, len(m.patterns))
	for _, p := range m.patterns {
		out = append(out, p)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Memory) BlockExpense(_ context.Context, expenseID, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expenses[expenseID] == ExpenseBlocked {
		return false, nil
	}
	m.expenses[expenseID] = ExpenseBlocked
	return true, nil
}

func (m *Memory) ExpenseStatus(_ context.Context, expenseID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.expenses[expenseID]
	if !ok {
		return "", ErrNotFound
	}
	return s, nil
}

// SetExpenseStatus seeds an expense, as the dashboard would on submission.
func (m *Memory) SetExpenseStatus(expenseID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expenses[expenseID] = status
}

func (m *Memory) SaveDeadLetter(_ context.Context, d *DeadLetter) error {
	if d.ID == "" {
		return fmt.Errorf("dead letter id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLetters[d.ID] = *d
	return nil
}

// ListDeadLetters returns dead letters, most recent failure first.
func (m *Memory) ListDeadLetters(_ context.Context, limit int) ([]DeadLetter, error) {
	m.mu.RLock()
	out := make([]DeadLetter, 0, len(m.deadLetters))
	for _, d := range m.deadLetters {
		out = append(out, d)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].FailedAt.Equal(out[j].FailedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].FailedAt.After(out[j].FailedAt)
	})
	return truncate(out, limit), nil
}

func (m *Memory) GetDeadLetter(_ context.Context, id string) (DeadLetter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deadLetters[id]
	if !ok {
		return DeadLetter{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) DeleteDeadLetter(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deadLetters[id]; !ok {
		return ErrNotFound
	}
	delete(m.deadLetters, id)
	return nil
}

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}

var _ Store = (*Memory)(nil)
