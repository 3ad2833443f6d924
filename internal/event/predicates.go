package event

// ImmediateReviewer is implemented by variants that can demand an
// investigation by an administrator.
type ImmediateReviewer interface {
	RequiresImmediateReview() bool
}

// FinanceReviewer is implemented by variants that can need a finance review.
type FinanceReviewer interface {
	RequiresFinanceReview() bool
}

var (
	_ ImmediateReviewer = (*SecurityFailedLoginEvent)(nil)
	_ ImmediateReviewer = (*SecurityUnauthorizedAccessEvent)(nil)
	_ ImmediateReviewer = (*SystemDatabaseFailureEvent)(nil)
	_ ImmediateReviewer = (*UserActionRoleChangedEvent)(nil)
	_ ImmediateReviewer = (*UserActionBulkExportEvent)(nil)
	_ ImmediateReviewer = (*BusinessClientDeletedEvent)(nil)
	_ FinanceReviewer   = (*BusinessUnusualExpenseEvent)(nil)
	_ FinanceReviewer   = (*BusinessPaymentFailedEvent)(nil)

	_ Alert = (*SecurityFailedLoginEvent)(nil)
	_ Alert = (*SecurityUnauthorizedAccessEvent)(nil)
	_ Alert = (*SystemDatabaseFailureEvent)(nil)
	_ Alert = (*SystemPerformanceDegradationEvent)(nil)
	_ Alert = (*UserActionRoleChangedEvent)(nil)
	_ Alert = (*UserActionBulkExportEvent)(nil)
	_ Alert = (*BusinessHighValueSaleEvent)(nil)
	_ Alert = (*BusinessClientDeletedEvent)(nil)
	_ Alert = (*BusinessUnusualExpenseEvent)(nil)
	_ Alert = (*BusinessPaymentFailedEvent)(nil)
	_ Alert = (*BusinessPaymentOverdueEvent)(nil)
)
