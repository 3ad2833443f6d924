package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/opsalert/internal/action"
	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/store"
	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

// MetricSource reports the live value of a component metric. ok is false
// when the source has no reading.
type MetricSource interface {
	Current(ctx context.Context, component, metric string) (value float64, ok bool, err error)
}

// UnknownSource never has a reading.
type UnknownSource struct{}

func (UnknownSource) Current(context.Context, string, string) (float64, bool, error) {
	return 0, false, nil
}

func is[T any](a event.Alert, pred func(T) bool) bool {
	v, ok := a.(T)
	return ok && pred(v)
}

func title(prefix string) func(event.Alert) string {
	return func(a event.Alert) string { return prefix + ": " + a.Title() }
}

var admin = Assignee{Role: user.RoleAdmin}

// Catalogue returns the specs of every task follow-up.
func Catalogue(metrics MetricSource) []Spec {
	if metrics == nil {
		metrics = UnknownSource{}
	}
	return []Spec{
		{
			Step: AccountLockReview,
			When: func(a event.Alert) bool {
				return is(a, (*event.SecurityFailedLoginEvent).ShouldLockAccount)
			},
			Title:    title("Review account lock"),
			Assignee: admin,
		},
		{
			Step: IPBlockReview,
			When: func(a event.Alert) bool {
				return is(a, (*event.SecurityFailedLoginEvent).ShouldBlockIP)
			},
			Title:    title("Review IP block"),
			Assignee: admin,
		},
		{
			Step: SecurityInvestigation,
			When: func(a event.Alert) bool {
				return a.Category() == event.CategorySecurity &&
					is(a, event.ImmediateReviewer.RequiresImmediateReview)
			},
			Title:    title("Investigate"),
			Assignee: admin,
		},
		{
			Step: Failover,
			When: func(a event.Alert) bool {
				return is(a, (*event.SystemDatabaseFailureEvent).ShouldTriggerFailover)
			},
			Title:    title("Fail over"),
			Assignee: admin,
			Meta: func(_ context.Context, a event.Alert) map[string]any {
				return map[string]any{"connection": a.(*event.SystemDatabaseFailureEvent).Connection}
			},
		},
		{
			Step: IntegrityReview,
			When: func(a event.Alert) bool {
				return is(a, (*event.SystemDatabaseFailureEvent).RequiresImmediateReview)
			},
			Title:    title("Check data integrity"),
			Assignee: admin,
		},
		{
			Step: PerformanceMitigation,
			When: func(a event.Alert) bool {
				return is(a, (*event.SystemPerformanceDegradationEvent).ShouldMitigate)
			},
			Title:    title("Mitigate"),
			Assignee: admin,
			Meta: func(ctx context.Context, a event.Alert) map[string]any {
				e := a.(*event.SystemPerformanceDegradationEvent)
				meta := map[string]any{
					"component":      e.Component,
					"metric":         e.Metric,
					"reported_value": e.CurrentValue,
					"live_value":     "unknown",
				}
				if v, ok, err := metrics.Current(ctx, e.Component, e.Metric); err == nil && ok {
					meta["live_value"] = v
				}
				return meta
			},
		},
		{
			Step: AccessReview,
			When: func(a event.Alert) bool {
				return a.Category() == event.CategoryUserAction &&
					is(a, event.ImmediateReviewer.RequiresImmediateReview)
			},
			Title:    title("Review access"),
			Assignee: admin,
		},
		{
			Step: Celebration,
			When: func(a event.Alert) bool {
				return is(a, (*event.BusinessHighValueSaleEvent).ShouldCelebrate)
			},
			Title:    title("Celebrate"),
			Assignee: Assignee{Role: user.RoleManager, ManagerOfSubject: true},
			Meta: func(_ context.Context, a event.Alert) map[string]any {
				e := a.(*event.BusinessHighValueSaleEvent)
				return map[string]any{"seller_id": e.SalesUser.ID, "sale_amount": e.SaleAmount}
			},
		},
		{
			Step: BonusCalculation,
			When: func(a event.Alert) bool {
				return is(a, (*event.BusinessHighValueSaleEvent).ShouldTriggerBonusCalculation)
			},
			Title:    title("Calculate bonus"),
			Assignee: Assignee{Role: user.RoleFinance},
			Meta: func(_ context.Context, a event.Alert) map[string]any {
				e := a.(*event.BusinessHighValueSaleEvent)
				return map[string]any{
					"seller_id":     e.SalesUser.ID,
					"sale_amount":   e.SaleAmount,
					"profit_margin": e.ProfitMargin,
				}
			},
		},
		{
			Step: ClientRecovery,
			When: func(a event.Alert) bool {
				return is(a, (*event.BusinessClientDeletedEvent).ShouldConsiderRecovery)
			},
			Title:    title("Consider recovering client"),
			Assignee: Assignee{Role: user.RoleManager, ManagerOfSubject: true},
			Meta: func(_ context.Context, a event.Alert) map[string]any {
				return map[string]any{"client_id": a.(*event.BusinessClientDeletedEvent).DeletedClient.ID}
			},
		},
		{
			Step: ClientDeletionReview,
			When: func(a event.Alert) bool {
				return is(a, (*event.BusinessClientDeletedEvent).RequiresImmediateReview)
			},
			Title:    title("Review deletion"),
			Assignee: admin,
		},
		{
			Step: ExpenseFinanceReview,
			When: func(a event.Alert) bool {
				return is(a, (*event.BusinessUnusualExpenseEvent).RequiresFinanceReview)
			},
			Title:    title("Review expense"),
			Assignee: Assignee{Role: user.RoleFinance},
			Meta: func(_ context.Context, a event.Alert) map[string]any {
				e := a.(*event.BusinessUnusualExpenseEvent)
				return map[string]any{"expense_id": e.Expense.ID, "deviation": e.Deviation()}
			},
		},
		{
			Step: PaymentRetry,
			When: func(a event.Alert) bool {
				return is(a, (*event.BusinessPaymentFailedEvent).ShouldRetryPayment)
			},
			Title:    title("Retry payment"),
			Assignee: Assignee{Role: user.RoleFinance},
			Meta: func(_ context.Context, a event.Alert) map[string]any {
				e := a.(*event.BusinessPaymentFailedEvent)
				return map[string]any{"payment_id": e.Payment.ID, "attempt_count": e.AttemptCount}
			},
		},
		{
			Step: PaymentFinanceReview,
			When: func(a event.Alert) bool {
				return is(a, (*event.BusinessPaymentFailedEvent).RequiresFinanceReview)
			},
			Title:    title("Review payment"),
			Assignee: Assignee{Role: user.RoleFinance},
		},
		{
			Step: Collection,
			When: func(a event.Alert) bool {
				return is(a, (*event.BusinessPaymentOverdueEvent).ShouldTriggerCollection)
			},
			Title:    title("Start collection"),
			Assignee: Assignee{Role: user.RoleCollections},
			Meta: func(_ context.Context, a event.Alert) map[string]any {
				e := a.(*event.BusinessPaymentOverdueEvent)
				return map[string]any{
					"client_id":    e.Client.ID,
					"amount":       e.Amount,
					"days_overdue": e.DaysOverdue,
				}
			},
		},
	}
}

// Executors builds one executor per catalogue entry.
func Executors(tasks store.TaskStore, dir user.Directory, metrics MetricSource, now func() time.Time) []action.Executor {
	specs := Catalogue(metrics)
	out := make([]action.Executor, 0, len(specs))
	for _, s := range specs {
		if s.When == nil || s.Title == nil {
			panic(fmt.Sprintf("tasks: incomplete spec %q", s.Step))
		}
		out = append(out, New(s, tasks, dir, now))
	}
	return out
}
