package analysis

import (
	"strings"

	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/store"
	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

// Tags carried by tracking rows. Pattern queries filter on them.
const (
	TagHighValueClient  = "high_value_client"
	TagSuspicious       = "suspicious"
	TagRecordHigh       = "record_high"
	TagPermanentFailure = "permanent_failure"
	TagSystemWide       = "system_wide"
	TagSensitiveData    = "sensitive_data"
	TagAdminGrant       = "admin_grant"
)

// TrackingFor builds the tracking row an alert leaves behind. The row id is
// derived from the alert id so a retried write is a no-op.
//
// ActorID is whoever acted (seller, deleter, submitter, source IP) and
// SubjectID what was acted upon (client, account, connection, component).
func TrackingFor(a event.Alert, as Assessment) store.TrackingRecord {
	r := store.TrackingRecord{
		ID:         store.DerivedID(a.ID(), "tracking"),
		Category:   string(a.Category()),
		EventType:  a.Type(),
		EventID:    a.ID(),
		Score:      as.Score,
		Severity:   string(a.Severity()),
		Data:       a.Payload(),
		OccurredAt: a.OccurredAt(),
	}
	switch e := a.(type) {
	case *event.SecurityFailedLoginEvent:
		r.ActorID = e.IPAddress
		r.SubjectID = strings.ToLower(e.Email)
		r.Amount = float64(e.Attempts)
		r.Indicators = tags(e.IsSuspicious, TagSuspicious)
	case *event.SecurityUnauthorizedAccessEvent:
		r.ActorID = e.User.ID
		r.SubjectID = e.Resource
		r.Indicators = tags(e.IsSensitiveResource, TagSensitiveData)
	case *event.SystemDatabaseFailureEvent:
		r.SubjectID = e.Connection
		r.Indicators = tags(e.IsSystemWide, TagSystemWide)
	case *event.SystemPerformanceDegradationEvent:
		r.SubjectID = e.Component
		r.Amount = e.CurrentValue
	case *event.UserActionRoleChangedEvent:
		r.ActorID = e.ChangedBy.ID
		r.SubjectID = e.User.ID
		r.Indicators = tags(e.NewRole == user.RoleAdmin, TagAdminGrant)
	case *event.UserActionBulkExportEvent:
		r.ActorID = e.User.ID
		r.SubjectID = e.ExportType
		r.Amount = float64(e.RecordCount)
		r.Indicators = tags(e.ContainsSensitiveData, TagSensitiveData)
	case *event.BusinessHighValueSaleEvent:
		r.ActorID = e.SalesUser.ID
		r.SubjectID = e.Client.ID
		r.Amount = e.SaleAmount
		r.Indicators = tags(e.IsRecordHigh, TagRecordHigh)
	case *event.BusinessClientDeletedEvent:
		r.ActorID = e.DeletedBy.ID
		r.SubjectID = e.DeletedClient.ID
		r.Amount = e.DeletedClient.LifetimeValue
		r.Indicators = tags(e.WasHighValueClient, TagHighValueClient)
	case *event.BusinessUnusualExpenseEvent:
		r.ActorID = e.Submitter.ID
		r.SubjectID = e.Expense.ID
		r.Amount = e.Amount
		r.Indicators = tags(e.IsSuspicious, TagSuspicious)
	case *event.BusinessPaymentFailedEvent:
		r.SubjectID = e.Client.ID
		r.Amount = e.Amount
		r.Indicators = tags(e.IsPermanentFailure(), TagPermanentFailure)
	case *event.BusinessPaymentOverdueEvent:
		r.SubjectID = e.Client.ID
		r.Amount = e.Amount
	}
	return r
}

func tags(on bool, tag string) []string {
	if !on {
		return nil
	}
	return []string{tag}
}
