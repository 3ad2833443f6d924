package event

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

const (
	TypeBusinessHighValueSale  = "business.high_value_sale"
	TypeBusinessClientDeleted  = "business.client_deleted"
	TypeBusinessUnusualExpense = "business.unusual_expense"
	TypeBusinessPaymentFailed  = "business.payment_failed"
	TypeBusinessPaymentOverdue = "business.payment_overdue"
)

// CelebrationAmount is the sale amount that always earns a celebration.
const CelebrationAmount = 50000

// HighValueSale holds the fields of a high value sale alert.
type HighValueSale struct {
	SalesUser       user.User `json:"sales_user"`
	Client          ClientRef `json:"client"`
	Sale            SaleRef   `json:"sale"`
	SaleAmount      float64   `json:"sale_amount"`
	ProfitMargin    float64   `json:"profit_margin"`
	IsRecordHigh    bool      `json:"is_record_high"`
	ThresholdAmount float64   `json:"threshold_amount"`
}

// BusinessHighValueSaleEvent is raised when a sale crosses the high value
// threshold.
type BusinessHighValueSaleEvent struct {
	Base `json:"-"`
	HighValueSale
}

func NewBusinessHighValueSale(in HighValueSale, meta Meta) (*BusinessHighValueSaleEvent, error) {
	c := newChecker(TypeBusinessHighValueSale)
	c.user("sales_user", in.SalesUser.ID)
	c.required("client.id", in.Client.ID)
	c.required("sale.id", in.Sale.ID)
	c.nonNegative("sale_amount", in.SaleAmount)
	c.positive("threshold_amount", in.ThresholdAmount)
	if err := c.err(); err != nil {
		return nil, err
	}
	sev := SeverityLow
	switch {
	case in.IsRecordHigh || in.SaleAmount >= 5*in.ThresholdAmount:
		sev = SeverityHigh
	case in.SaleAmount >= 2*in.ThresholdAmount:
		sev = SeverityMedium
	}
	base, err := newBase(TypeBusinessHighValueSale, CategoryBusiness, sev, meta)
	if err != nil {
		return nil, err
	}
	return &BusinessHighValueSaleEvent{Base: base, HighValueSale: in}, nil
}

func (e *BusinessHighValueSaleEvent) ShouldCelebrate() bool {
	return e.IsRecordHigh || e.SaleAmount >= CelebrationAmount
}

func (e *BusinessHighValueSaleEvent) ShouldTriggerBonusCalculation() bool {
	return e.SaleAmount >= e.ThresholdAmount && e.ProfitMargin >= 20
}

func (e *BusinessHighValueSaleEvent) Subject() *user.User { return userPtr(e.SalesUser) }

func (e *BusinessHighValueSaleEvent) Title() string {
	if e.IsRecordHigh {
		return "Record-breaking sale"
	}
	return "High value sale closed"
}

func (e *BusinessHighValueSaleEvent) Description() string {
	return fmt.Sprintf("%s closed %.2f with %s at %.1f%% margin", displayName(e.SalesUser), e.SaleAmount, clientName(e.Client), e.ProfitMargin)
}

func (e *BusinessHighValueSaleEvent) BroadcastWith() map[string]any {
	return e.broadcastWith(e.Title(), e.Description())
}

func (e *BusinessHighValueSaleEvent) Payload() map[string]any { return payloadOf(e.HighValueSale) }

// ClientDeleted holds the fields of a client deletion alert.
type ClientDeleted struct {
	DeletedClient       ClientRef `json:"deleted_client"`
	DeletedBy           user.User `json:"deleted_by"`
	DeletionMethod      string    `json:"deletion_method"`
	BackupCreated       bool      `json:"backup_created"`
	WasHighValueClient  bool      `json:"was_high_value_client"`
	ActiveProjectsCount int       `json:"active_projects_count"`
}

// BusinessClientDeletedEvent is raised whenever a client record is removed.
type BusinessClientDeletedEvent struct {
	Base `json:"-"`
	ClientDeleted
}

func NewBusinessClientDeleted(in ClientDeleted, meta Meta) (*BusinessClientDeletedEvent, error) {
	c := newChecker(TypeBusinessClientDeleted)
	c.required("deleted_client.id", in.DeletedClient.ID)
	c.user("deleted_by", in.DeletedBy.ID)
	c.nonNegative("active_projects_count", float64(in.ActiveProjectsCount))
	if err := c.err(); err != nil {
		return nil, err
	}
	if in.DeletionMethod == "" {
		in.DeletionMethod = "manual"
	}
	sev := SeverityLow
	switch {
	case in.WasHighValueClient || (in.ActiveProjectsCount > 0 && !in.BackupCreated):
		sev = SeverityHigh
	case !in.BackupCreated:
		sev = SeverityMedium
	}
	base, err := newBase(TypeBusinessClientDeleted, CategoryBusiness, sev, meta)
	if err != nil {
		return nil, err
	}
	return &BusinessClientDeletedEvent{Base: base, ClientDeleted: in}, nil
}

// ShouldConsiderRecovery is true when a backup exists and the client still
// mattered to the business.
func (e *BusinessClientDeletedEvent) ShouldConsiderRecovery() bool {
	return e.BackupCreated && (e.WasHighValueClient || e.ActiveProjectsCount > 0)
}

func (e *BusinessClientDeletedEvent) RequiresImmediateReview() bool {
	return e.WasHighValueClient && !e.BackupCreated
}

func (e *BusinessClientDeletedEvent) Subject() *user.User { return userPtr(e.DeletedBy) }

func (e *BusinessClientDeletedEvent) Title() string {
	if e.WasHighValueClient {
		return "High value client deleted"
	}
	return "Client deleted"
}

func (e *BusinessClientDeletedEvent) Description() string {
	backup := "without a backup"
	if e.BackupCreated {
		backup = "with a backup"
	}
	return fmt.Sprintf("%s deleted %s (%s, %d active projects) %s", displayName(e.DeletedBy), clientName(e.DeletedClient), e.DeletionMethod, e.ActiveProjectsCount, backup)
}

func (e *BusinessClientDeletedEvent) BroadcastWith() map[string]any {
	return e.broadcastWith(e.Title(), e.Description())
}

func (e *BusinessClientDeletedEvent) Payload() map[string]any { return payloadOf(e.ClientDeleted) }

// UnusualExpense holds the fields of an unusual expense alert.
type UnusualExpense struct {
	Expense       ExpenseRef `json:"expense"`
	Submitter     user.User  `json:"submitter"`
	Amount        float64    `json:"amount"`
	AverageAmount float64    `json:"average_amount"`
	IsSuspicious  bool       `json:"is_suspicious"`
	Reasons       []string   `json:"reasons,omitempty"`
}

// BusinessUnusualExpenseEvent is raised when an expense deviates from the
// submitter's usual spending.
type BusinessUnusualExpenseEvent struct {
	Base `json:"-"`
	UnusualExpense
}

func NewBusinessUnusualExpense(in UnusualExpense, meta Meta) (*BusinessUnusualExpenseEvent, error) {
	c := newChecker(TypeBusinessUnusualExpense)
	c.required("expense.id", in.Expense.ID)
	c.user("submitter", in.Submitter.ID)
	c.nonNegative("amount", in.Amount)
	c.nonNegative("average_amount", in.AverageAmount)
	if err := c.err(); err != nil {
		return nil, err
	}
	e := &BusinessUnusualExpenseEvent{UnusualExpense: in}
	ratio := e.Deviation()
	sev := SeverityLow
	switch {
	case in.IsSuspicious && ratio >= 10:
		sev = SeverityCritical
	case in.IsSuspicious:
		sev = SeverityHigh
	case ratio >= 3:
		sev = SeverityMedium
	}
	base, err := newBase(TypeBusinessUnusualExpense, CategoryBusiness, sev, meta)
	if err != nil {
		return nil, err
	}
	e.Base = base
	return e, nil
}

// Deviation is amount over the submitter's average. With no history every
// positive amount counts as one average.
func (e *BusinessUnusualExpenseEvent) Deviation() float64 {
	if e.AverageAmount <= 0 {
		if e.Amount > 0 {
			return 1
		}
		return 0
	}
	return e.Amount / e.AverageAmount
}

func (e *BusinessUnusualExpenseEvent) ShouldBlockExpense() bool {
	return e.IsSuspicious || e.Deviation() >= 5
}

func (e *BusinessUnusualExpenseEvent) RequiresFinanceReview() bool {
	return e.Deviation() >= 3
}

func (e *BusinessUnusualExpenseEvent) Subject() *user.User { return userPtr(e.Submitter) }

func (e *BusinessUnusualExpenseEvent) Title() string {
	if e.IsSuspicious {
		return "Suspicious expense submitted"
	}
	return "Unusual expense submitted"
}

func (e *BusinessUnusualExpenseEvent) Description() string {
	d := fmt.Sprintf("%s submitted %.2f (%.1fx their average)", displayName(e.Submitter), e.Amount, e.Deviation())
	if len(e.Reasons) > 0 {
		d += ": " + strings.Join(e.Reasons, ", ")
	}
	return d
}

func (e *BusinessUnusualExpenseEvent) BroadcastWith() map[string]any {
	return e.broadcastWith(e.Title(), e.Description())
}

func (e *BusinessUnusualExpenseEvent) Payload() map[string]any { return payloadOf(e.UnusualExpense) }

// PaymentFailed holds the fields of a failed payment alert.
type PaymentFailed struct {
	Payment       PaymentRef `json:"payment"`
	Client        ClientRef  `json:"client"`
	Amount        float64    `json:"amount"`
	FailureReason string     `json:"failure_reason"`
	AttemptCount  int        `json:"attempt_count"`
}

// BusinessPaymentFailedEvent is raised when collecting a payment fails.
type BusinessPaymentFailedEvent struct {
	Base `json:"-"`
	PaymentFailed
}

var permanentPaymentFailures = map[string]struct{}{
	"account_closed":  {},
	"fraud_suspected": {},
	"invalid_account": {},
	"stolen_card":     {},
}

func NewBusinessPaymentFailed(in PaymentFailed, meta Meta) (*BusinessPaymentFailedEvent, error) {
	c := newChecker(TypeBusinessPaymentFailed)
	c.required("payment.id", in.Payment.ID)
	c.required("client.id", in.Client.ID)
	c.required("failure_reason", in.FailureReason)
	c.nonNegative("amount", in.Amount)
	c.nonNegative("attempt_count", float64(in.AttemptCount))
	if err := c.err(); err != nil {
		return nil, err
	}
	sev := SeverityMedium
	if in.Amount >= 10000 || in.AttemptCount >= 3 {
		sev = SeverityHigh
	}
	base, err := newBase(TypeBusinessPaymentFailed, CategoryBusiness, sev, meta)
	if err != nil {
		return nil, err
	}
	return &BusinessPaymentFailedEvent{Base: base, PaymentFailed: in}, nil
}

// IsPermanentFailure reports whether retrying cannot succeed.
func (e *BusinessPaymentFailedEvent) IsPermanentFailure() bool {
	_, ok := permanentPaymentFailures[strings.ToLower(e.FailureReason)]
	return ok
}

func (e *BusinessPaymentFailedEvent) ShouldRetryPayment() bool {
	return e.AttemptCount < 3 && !e.IsPermanentFailure()
}

func (e *BusinessPaymentFailedEvent) RequiresFinanceReview() bool {
	return e.Severity().AtLeast(SeverityHigh)
}

func (e *BusinessPaymentFailedEvent) Subject() *user.User { return nil }

func (e *BusinessPaymentFailedEvent) Title() string { return "Payment failed" }

func (e *BusinessPaymentFailedEvent) Description() string {
	return fmt.Sprintf("Payment of %.2f from %s failed (%s, attempt %d)", e.Amount, clientName(e.Client), e.FailureReason, e.AttemptCount)
}

func (e *BusinessPaymentFailedEvent) BroadcastWith() map[string]any {
	return e.broadcastWith(e.Title(), e.Description())
}

func (e *BusinessPaymentFailedEvent) Payload() map[string]any { return payloadOf(e.PaymentFailed) }

// PaymentOverdue holds the fields of an overdue payment alert.
type PaymentOverdue struct {
	Payment     PaymentRef `json:"payment"`
	Client      ClientRef  `json:"client"`
	Amount      float64    `json:"amount"`
	DaysOverdue int        `json:"days_overdue"`
}

// BusinessPaymentOverdueEvent is raised by the daily overdue sweep.
type BusinessPaymentOverdueEvent struct {
	Base `json:"-"`
	PaymentOverdue
}

func NewBusinessPaymentOverdue(in PaymentOverdue, meta Meta) (*BusinessPaymentOverdueEvent, error) {
	c := newChecker(TypeBusinessPaymentOverdue)
	c.required("payment.id", in.Payment.ID)
	c.required("client.id", in.Client.ID)
	c.nonNegative("amount", in.Amount)
	c.nonNegative("days_overdue", float64(in.DaysOverdue))
	if err := c.err(); err != nil {
		return nil, err
	}
	sev := SeverityLow
	switch {
	case in.DaysOverdue >= 90 && in.Amount >= 50000:
		sev = SeverityCritical
	case in.DaysOverdue >= 60:
		sev = SeverityHigh
	case in.DaysOverdue >= 30:
		sev = SeverityMedium
	}
	base, err := newBase(TypeBusinessPaymentOverdue, CategoryBusiness, sev, meta)
	if err != nil {
		return nil, err
	}
	return &BusinessPaymentOverdueEvent{Base: base, PaymentOverdue: in}, nil
}

func (e *BusinessPaymentOverdueEvent) ShouldTriggerCollection() bool { return e.DaysOverdue >= 30 }

func (e *BusinessPaymentOverdueEvent) Subject() *user.User { return nil }

func (e *BusinessPaymentOverdueEvent) Title() string { return "Payment overdue" }

func (e *BusinessPaymentOverdueEvent) Description() string {
	return fmt.Sprintf("%s owes %.2f, %d days overdue", clientName(e.Client), e.Amount, e.DaysOverdue)
}

func (e *BusinessPaymentOverdueEvent) BroadcastWith() map[string]any {
	return e.broadcastWith(e.Title(), e.Description())
}

func (e *BusinessPaymentOverdueEvent) Payload() map[string]any { return payloadOf(e.PaymentOverdue) }

func clientName(c ClientRef) string {
	if c.Name != "" {
		return c.Name
	}
	return "client " + c.ID
}
