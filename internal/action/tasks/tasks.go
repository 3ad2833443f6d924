// Package tasks creates the follow-up work items an alert calls for.
// Each follow-up is a named step with its own predicate, title and assignee
// role; task ids derive from the event id so a retried step rewrites the
// same row.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/opsalert/internal/action"
	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/store"
	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

// Step names.
const (
	AccountLockReview     = "account_lock_review"
	IPBlockReview         = "ip_block_review"
	SecurityInvestigation = "security_investigation"
	Failover              = "failover"
	IntegrityReview       = "integrity_review"
	PerformanceMitigation = "performance_mitigation"
	AccessReview          = "access_review"
	Celebration           = "celebration"
	BonusCalculation      = "bonus_calculation"
	ClientRecovery        = "client_recovery"
	ClientDeletionReview  = "client_deletion_review"
	ExpenseFinanceReview  = "expense_finance_review"
	PaymentRetry          = "payment_retry"
	PaymentFinanceReview  = "payment_finance_review"
	Collection            = "collection"
)

// Assignee picks who owns a task.
type Assignee struct {
	Role user.Role
	// ManagerOfSubject assigns to the manager of the user the alert is
	// about, falling back to Role when there is none.
	ManagerOfSubject bool
}

// Spec describes one task follow-up.
type Spec struct {
	Step     string
	When     func(a event.Alert) bool
	Title    func(a event.Alert) string
	Assignee Assignee
	// Meta adds step specific metadata to the task.
	Meta func(ctx context.Context, a event.Alert) map[string]any
}

// Executor creates the task described by its Spec.
type Executor struct {
	spec  Spec
	tasks store.TaskStore
	dir   user.Directory
	now   func() time.Time
}

// New returns an executor for spec. now defaults to time.Now.
func New(spec Spec, tasks store.TaskStore, dir user.Directory, now func() time.Time) *Executor {
	if now == nil {
		now = time.Now
	}
	return &Executor{spec: spec, tasks: tasks, dir: dir, now: now}
}

func (e *Executor) Name() string { return e.spec.Step }

func (e *Executor) Applies(a event.Alert) bool { return e.spec.When(a) }

func (e *Executor) Execute(ctx context.Context, a event.Alert) (*action.Result, error) {
	assignee, err := e.assignee(ctx, a)
	if err != nil {
		return &action.Result{Step: e.spec.Step, Message: err.Error()}, err
	}
	now := e.now().UTC()
	meta := map[string]any{
		"category": string(a.Category()),
		"severity": string(a.Severity()),
	}
	if e.spec.Meta != nil {
		for k, v := range e.spec.Meta(ctx, a) {
			meta[k] = v
		}
	}
	t := &store.Task{
		ID:          store.DerivedID(a.ID(), "task", e.spec.Step),
		Kind:        e.spec.Step,
		Title:       e.spec.Title(a),
		Description: a.Description(),
		AssigneeID:  assignee,
		Priority:    Priority(a.Severity()),
		Status:      store.TaskOpen,
		DueAt:       now.Add(DueIn(a.Severity())),
		EventID:     a.ID(),
		EventType:   a.Type(),
		Metadata:    meta,
		CreatedAt:   now,
	}
	if err := e.tasks.CreateTask(ctx, t); err != nil {
		return &action.Result{Step: e.spec.Step, Message: err.Error()},
			fmt.Errorf("failed to create %s task: %w", e.spec.Step, err)
	}
	msg := "created task " + t.ID
	if assignee == "" {
		msg += " (unassigned)"
	}
	return &action.Result{Step: e.spec.Step, Success: true, Message: msg}, nil
}

// assignee returns the first matching user id, or "" when nobody holds the
// role. Directory failures other than a missing user are returned.
func (e *Executor) assignee(ctx context.Context, a event.Alert) (string, error) {
	if e.spec.Assignee.ManagerOfSubject {
		if s := a.Subject(); s != nil {
			if !s.HasManager() {
				if u, err := e.dir.Get(ctx, s.ID); err == nil {
					s = &u
				} else if !errors.Is(err, user.ErrNotFound) {
					return "", fmt.Errorf("failed to look up %s: %w", s.ID, err)
				}
			}
			if s.HasManager() {
				return s.ManagerID, nil
			}
		}
	}
	users, err := e.dir.ListByRole(ctx, e.spec.Assignee.Role)
	if err != nil {
		return "", fmt.Errorf("failed to list %s users: %w", e.spec.Assignee.Role, err)
	}
	if len(users) == 0 {
		return "", nil
	}
	return users[0].ID, nil
}

// Priority maps severity to task priority.
func Priority(s event.Severity) string {
	switch s {
	case event.SeverityCritical:
		return store.PriorityUrgent
	case event.SeverityHigh:
		return store.PriorityHigh
	case event.SeverityMedium:
		return store.PriorityMedium
	}
	return store.PriorityLow
}

// DueIn maps severity to how long the assignee has.
func DueIn(s event.Severity) time.Duration {
	switch s {
	case event.SeverityCritical:
		return 4 * time.Hour
	case event.SeverityHigh:
		return 24 * time.Hour
	case event.SeverityMedium:
		return 3 * 24 * time.Hour
	}
	return 7 * 24 * time.Hour
}
