package event_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

var (
	seller = user.User{ID: "u_sales", Name: "Sam Seller", Email: "sam@example.com", Role: user.RoleSales, ManagerID: "u_mgr"}
	admin  = user.User{ID: "u_admin", Name: "Ada Admin", Email: "ada@example.com", Role: user.RoleAdmin}
	va     = user.User{ID: "u_va", Name: "Val", Email: "val@example.com", Role: user.RoleVA, ManagerID: "u_mgr"}
)

func mustAlert[A event.Alert](t *testing.T) func(A, error) A {
	return func(a A, err error) A {
		t.Helper()
		require.NoError(t, err)
		return a
	}
}

func TestSeverityClassification(t *testing.T) {
	cases := []struct {
		name  string
		build func() (event.Alert, error)
		want  event.Severity
	}{
		{"failed login low", func() (event.Alert, error) {
			return event.NewSecurityFailedLogin(event.FailedLogin{Email: "a@b.c", IPAddress: "10.0.0.1", Attempts: 3}, event.Meta{})
		}, event.SeverityLow},
		{"failed login medium", func() (event.Alert, error) {
			return event.NewSecurityFailedLogin(event.FailedLogin{Email: "a@b.c", IPAddress: "10.0.0.1", Attempts: 5}, event.Meta{})
		}, event.SeverityMedium},
		{"failed login suspicious", func() (event.Alert, error) {
			return event.NewSecurityFailedLogin(event.FailedLogin{Email: "a@b.c", IPAddress: "10.0.0.1", Attempts: 15, IsSuspicious: true}, event.Meta{})
		}, event.SeverityHigh},
		{"failed login critical", func() (event.Alert, error) {
			return event.NewSecurityFailedLogin(event.FailedLogin{Email: "a@b.c", IPAddress: "10.0.0.1", Attempts: 25, IsSuspicious: true}, event.Meta{})
		}, event.SeverityCritical},
		{"escalation", func() (event.Alert, error) {
			return event.NewSecurityUnauthorizedAccess(event.UnauthorizedAccess{User: va, Resource: "/admin", Action: "write", IsPrivilegeEscalation: true}, event.Meta{})
		}, event.SeverityCritical},
		{"plain unauthorized", func() (event.Alert, error) {
			return event.NewSecurityUnauthorizedAccess(event.UnauthorizedAccess{User: va, Resource: "/reports", Action: "read"}, event.Meta{})
		}, event.SeverityMedium},
		{"database system wide", func() (event.Alert, error) {
			return event.NewSystemDatabaseFailure(event.DatabaseFailure{Connection: "pgsql", ErrorMessage: "down", IsSystemWide: true}, event.Meta{})
		}, event.SeverityCritical},
		{"database connection", func() (event.Alert, error) {
			return event.NewSystemDatabaseFailure(event.DatabaseFailure{Connection: "pgsql", ErrorMessage: "refused", IsConnectionFailure: true}, event.Meta{})
		}, event.SeverityHigh},
		{"database query", func() (event.Alert, error) {
			return event.NewSystemDatabaseFailure(event.DatabaseFailure{Connection: "pgsql", ErrorMessage: "slow"}, event.Meta{})
		}, event.SeverityMedium},
		{"performance double", func() (event.Alert, error) {
			return event.NewSystemPerformanceDegradation(event.PerformanceDegradation{Component: "api", Metric: "p99_ms", CurrentValue: 400, Threshold: 200}, event.Meta{})
		}, event.SeverityCritical},
		{"performance under", func() (event.Alert, error) {
			return event.NewSystemPerformanceDegradation(event.PerformanceDegradation{Component: "api", Metric: "p99_ms", CurrentValue: 100, Threshold: 200}, event.Meta{})
		}, event.SeverityLow},
		{"promoted to admin", func() (event.Alert, error) {
			return event.NewUserActionRoleChanged(event.RoleChanged{User: va, ChangedBy: admin, OldRole: user.RoleVA, NewRole: user.RoleAdmin}, event.Meta{})
		}, event.SeverityHigh},
		{"promoted to manager", func() (event.Alert, error) {
			return event.NewUserActionRoleChanged(event.RoleChanged{User: va, ChangedBy: admin, OldRole: user.RoleVA, NewRole: user.RoleManager}, event.Meta{})
		}, event.SeverityMedium},
		{"demoted", func() (event.Alert, error) {
			return event.NewUserActionRoleChanged(event.RoleChanged{User: va, ChangedBy: admin, OldRole: user.RoleManager, NewRole: user.RoleVA}, event.Meta{})
		}, event.SeverityLow},
		{"sensitive export", func() (event.Alert, error) {
			return event.NewUserActionBulkExport(event.BulkExport{User: va, ExportType: "clients", RecordCount: 1500, ContainsSensitiveData: true}, event.Meta{})
		}, event.SeverityHigh},
		{"record sale", func() (event.Alert, error) {
			return event.NewBusinessHighValueSale(event.HighValueSale{SalesUser: seller, Client: event.ClientRef{ID: "c1"}, Sale: event.SaleRef{ID: "s1"}, SaleAmount: 75000, IsRecordHigh: true, ThresholdAmount: 10000}, event.Meta{})
		}, event.SeverityHigh},
		{"double threshold sale", func() (event.Alert, error) {
			return event.NewBusinessHighValueSale(event.HighValueSale{SalesUser: seller, Client: event.ClientRef{ID: "c1"}, Sale: event.SaleRef{ID: "s1"}, SaleAmount: 20000, ThresholdAmount: 10000}, event.Meta{})
		}, event.SeverityMedium},
		{"high value client deleted", func() (event.Alert, error) {
			return event.NewBusinessClientDeleted(event.ClientDeleted{DeletedClient: event.ClientRef{ID: "c1"}, DeletedBy: va, WasHighValueClient: true, BackupCreated: true}, event.Meta{})
		}, event.SeverityHigh},
		{"client deleted without backup", func() (event.Alert, error) {
			return event.NewBusinessClientDeleted(event.ClientDeleted{DeletedClient: event.ClientRef{ID: "c1"}, DeletedBy: va}, event.Meta{})
		}, event.SeverityMedium},
		{"suspicious huge expense", func() (event.Alert, error) {
			return event.NewBusinessUnusualExpense(event.UnusualExpense{Expense: event.ExpenseRef{ID: "e1"}, Submitter: va, Amount: 10000, AverageAmount: 500, IsSuspicious: true}, event.Meta{})
		}, event.SeverityCritical},
		{"triple expense", func() (event.Alert, error) {
			return event.NewBusinessUnusualExpense(event.UnusualExpense{Expense: event.ExpenseRef{ID: "e1"}, Submitter: va, Amount: 1500, AverageAmount: 500}, event.Meta{})
		}, event.SeverityMedium},
		{"payment failed large", func() (event.Alert, error) {
			return event.NewBusinessPaymentFailed(event.PaymentFailed{Payment: event.PaymentRef{ID: "p1"}, Client: event.ClientRef{ID: "c1"}, Amount: 12000, FailureReason: "insufficient_funds", AttemptCount: 1}, event.Meta{})
		}, event.SeverityHigh},
		{"payment failed small", func() (event.Alert, error) {
			return event.NewBusinessPaymentFailed(event.PaymentFailed{Payment: event.PaymentRef{ID: "p1"}, Client: event.ClientRef{ID: "c1"}, Amount: 120, FailureReason: "insufficient_funds", AttemptCount: 1}, event.Meta{})
		}, event.SeverityMedium},
		{"payment overdue critical", func() (event.Alert, error) {
			return event.NewBusinessPaymentOverdue(event.PaymentOverdue{Payment: event.PaymentRef{ID: "p1"}, Client: event.ClientRef{ID: "c1"}, Amount: 60000, DaysOverdue: 95}, event.Meta{})
		}, event.SeverityCritical},
		{"payment overdue low", func() (event.Alert, error) {
			return event.NewBusinessPaymentOverdue(event.PaymentOverdue{Payment: event.PaymentRef{ID: "p1"}, Client: event.ClientRef{ID: "c1"}, Amount: 600, DaysOverdue: 5}, event.Meta{})
		}, event.SeverityLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := tc.build()
			require.NoError(t, err)
			assert.Equal(t, tc.want, a.Severity())
			assert.True(t, a.Severity().Valid())

			again, err := tc.build()
			require.NoError(t, err)
			assert.Equal(t, a.Severity(), again.Severity(), "same inputs must classify the same")

			assert.Equal(t, a.Severity().AtLeast(event.SeverityHigh), a.ShouldSendEmail())
		})
	}
}

func TestShouldSendEmailPolicy(t *testing.T) {
	assert.True(t, event.SeverityCritical.ShouldSendEmail())
	assert.True(t, event.SeverityHigh.ShouldSendEmail())
	assert.False(t, event.SeverityMedium.ShouldSendEmail())
	assert.False(t, event.SeverityLow.ShouldSendEmail())
}

func TestParseSeverity(t *testing.T) {
	s, err := event.ParseSeverity(" high ")
	require.NoError(t, err)
	assert.Equal(t, event.SeverityHigh, s)

	_, err = event.ParseSeverity("URGENT")
	assert.Error(t, err)
}

func TestValidationRejectsMalformedAlerts(t *testing.T) {
	_, err := event.NewSecurityFailedLogin(event.FailedLogin{Email: "nope", Attempts: -1}, event.Meta{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, event.ErrValidation))

	var verr *event.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, event.TypeSecurityFailedLogin, verr.Type)
	assert.Len(t, verr.Problems, 3)

	_, err = event.NewSystemPerformanceDegradation(event.PerformanceDegradation{Component: "api", Metric: "cpu", CurrentValue: 1}, event.Meta{})
	assert.ErrorIs(t, err, event.ErrValidation)

	_, err = event.NewUserActionRoleChanged(event.RoleChanged{User: va, ChangedBy: admin, OldRole: user.RoleVA, NewRole: user.RoleVA}, event.Meta{})
	assert.ErrorIs(t, err, event.ErrValidation)
}

func TestFailedLoginScenario(t *testing.T) {
	a := mustAlert[*event.SecurityFailedLoginEvent](t)(event.NewSecurityFailedLogin(event.FailedLogin{
		Email: "victim@example.com", IPAddress: "203.0.113.9", Attempts: 15, IsSuspicious: true,
	}, event.Meta{}))
	assert.Equal(t, event.SeverityHigh, a.Severity())
	assert.True(t, a.ShouldSendEmail())
	assert.True(t, a.ShouldLockAccount())
	assert.True(t, a.ShouldBlockIP())
	assert.False(t, a.RequiresImmediateReview())
	assert.Nil(t, a.Subject())
	assert.Equal(t, "administrative-alerts.Security", a.BroadcastOn())
}

func TestSalePredicates(t *testing.T) {
	a := mustAlert[*event.BusinessHighValueSaleEvent](t)(event.NewBusinessHighValueSale(event.HighValueSale{
		SalesUser: seller, Client: event.ClientRef{ID: "c1", Name: "Acme"}, Sale: event.SaleRef{ID: "s1"},
		SaleAmount: 75000, ProfitMargin: 25, IsRecordHigh: true, ThresholdAmount: 10000,
	}, event.Meta{}))
	assert.True(t, a.ShouldCelebrate())
	assert.True(t, a.ShouldTriggerBonusCalculation())
	require.NotNil(t, a.Subject())
	assert.Equal(t, seller.ID, a.Subject().ID)
	assert.Equal(t, event.CategoryBusiness, a.Category())
}

func TestExpenseAndPaymentPredicates(t *testing.T) {
	exp := mustAlert[*event.BusinessUnusualExpenseEvent](t)(event.NewBusinessUnusualExpense(event.UnusualExpense{
		Expense: event.ExpenseRef{ID: "e1"}, Submitter: va, Amount: 900, AverageAmount: 300, IsSuspicious: true,
	}, event.Meta{}))
	assert.True(t, exp.ShouldBlockExpense())
	assert.True(t, exp.RequiresFinanceReview())

	noHistory := mustAlert[*event.BusinessUnusualExpenseEvent](t)(event.NewBusinessUnusualExpense(event.UnusualExpense{
		Expense: event.ExpenseRef{ID: "e2"}, Submitter: va, Amount: 900,
	}, event.Meta{}))
	assert.Equal(t, 1.0, noHistory.Deviation())
	assert.False(t, noHistory.ShouldBlockExpense())

	pay := mustAlert[*event.BusinessPaymentFailedEvent](t)(event.NewBusinessPaymentFailed(event.PaymentFailed{
		Payment: event.PaymentRef{ID: "p1"}, Client: event.ClientRef{ID: "c1"}, Amount: 50, FailureReason: "Account_Closed", AttemptCount: 1,
	}, event.Meta{}))
	assert.True(t, pay.IsPermanentFailure())
	assert.False(t, pay.ShouldRetryPayment())
}

func TestDatabaseFailover(t *testing.T) {
	a := mustAlert[*event.SystemDatabaseFailureEvent](t)(event.NewSystemDatabaseFailure(event.DatabaseFailure{
		Connection: "pgsql", ErrorMessage: "connection refused", IsConnectionFailure: true, RecoveryAttempted: true, IsSystemWide: true,
	}, event.Meta{}))
	assert.Equal(t, event.SeverityCritical, a.Severity())
	assert.True(t, a.ShouldTriggerFailover())
	assert.Equal(t, "administrative-alerts.System", a.BroadcastOn())
}

func TestMetaDefaultsAndCopies(t *testing.T) {
	ctx := map[string]any{"request_id": "r1"}
	a := mustAlert[*event.BusinessPaymentOverdueEvent](t)(event.NewBusinessPaymentOverdue(event.PaymentOverdue{
		Payment: event.PaymentRef{ID: "p1"}, Client: event.ClientRef{ID: "c1"}, Amount: 10, DaysOverdue: 31,
	}, event.Meta{Context: ctx, InitiatedBy: &admin}))
	assert.NotEmpty(t, a.ID())
	assert.False(t, a.OccurredAt().IsZero())

	ctx["request_id"] = "mutated"
	assert.Equal(t, "r1", a.Context()["request_id"])
	a.Context()["request_id"] = "mutated"
	assert.Equal(t, "r1", a.Context()["request_id"])
	require.NotNil(t, a.InitiatedBy())
	assert.Equal(t, admin.ID, a.InitiatedBy().ID)
}

func TestBroadcastWithMatchesAccessors(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	a := mustAlert[*event.BusinessClientDeletedEvent](t)(event.NewBusinessClientDeleted(event.ClientDeleted{
		DeletedClient: event.ClientRef{ID: "c9", Name: "Globex"}, DeletedBy: va, WasHighValueClient: true,
	}, event.Meta{ID: "evt-1", OccurredAt: at}))

	notification := map[string]any{"read": false}
	for k, v := range a.BroadcastWith() {
		notification[k] = v
	}
	assert.Equal(t, string(a.Category()), notification["category"])
	assert.Equal(t, string(a.Severity()), notification["severity"])
	assert.Equal(t, a.Title(), notification["title"])
	assert.Equal(t, a.Description(), notification["description"])
	assert.Equal(t, "evt-1", notification["event_id"])
	assert.Equal(t, event.TypeBusinessClientDeleted, notification["event_type"])
	assert.Equal(t, "2026-03-01T09:30:00Z", notification["occurred_at"])
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	orig := mustAlert[*event.BusinessHighValueSaleEvent](t)(event.NewBusinessHighValueSale(event.HighValueSale{
		SalesUser: seller, Client: event.ClientRef{ID: "c1"}, Sale: event.SaleRef{ID: "s1"},
		SaleAmount: 30000, ProfitMargin: 12, ThresholdAmount: 10000,
	}, event.Meta{ID: "evt-42", OccurredAt: at}))

	env, err := event.Encode(orig)
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var back event.Envelope
	require.NoError(t, json.Unmarshal(raw, &back))
	decoded, err := event.DecodeEnvelope(back)
	require.NoError(t, err)

	sale, ok := decoded.(*event.BusinessHighValueSaleEvent)
	require.True(t, ok)
	assert.Equal(t, "evt-42", sale.ID())
	assert.True(t, at.Equal(sale.OccurredAt()))
	assert.Equal(t, orig.Severity(), sale.Severity())
	assert.Equal(t, orig.HighValueSale, sale.HighValueSale)
}

func TestDecodeErrors(t *testing.T) {
	_, err := event.Decode("business.unknown", []byte(`{}`), event.Meta{})
	assert.ErrorIs(t, err, event.ErrUnknownType)

	_, err = event.Decode(event.TypeSecurityFailedLogin, []byte(`{"email":"a@b.c","ip_address":"1.1.1.1","bogus":1}`), event.Meta{})
	assert.ErrorIs(t, err, event.ErrValidation)

	_, err = event.Decode(event.TypeSecurityFailedLogin, nil, event.Meta{})
	var verr *event.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, event.TypeSecurityFailedLogin, verr.Type)
}

func TestTypesCatalogue(t *testing.T) {
	types := event.Types()
	assert.Len(t, types, 11)
	assert.IsNonDecreasing(t, types)
	for _, typ := range types {
		cat, err := event.CategoryOf(typ)
		require.NoError(t, err)
		assert.True(t, cat.Valid())
	}
}
