// Package analysis scores alerts, derives the tracking row each alert
// leaves behind and detects patterns across that history.
package analysis

import (
	"math"

	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

// MaxScore is the upper bound of every score.
const MaxScore = 100

// Factor is one signal's contribution to a score.
type Factor struct {
	Name   string  `json:"name"`
	Points float64 `json:"points"`
}

// Assessment is a bounded score and the factors that produced it.
type Assessment struct {
	Score   float64  `json:"score"`
	Factors []Factor `json:"factors,omitempty"`
}

type scorer struct {
	factors []Factor
}

// add records value capped at limit points. Negative and NaN values count
// as zero so extreme inputs cannot push a score out of range.
func (s *scorer) add(name string, value, limit float64) {
	s.factors = append(s.factors, Factor{Name: name, Points: capped(value, limit)})
}

func (s *scorer) flag(name string, on bool, points float64) {
	if on {
		s.add(name, points, points)
	}
}

func (s *scorer) result() Assessment {
	total := 0.0
	for _, f := range s.factors {
		total += f.Points
	}
	return Assessment{Score: Clamp(total), Factors: s.factors}
}

func capped(v, limit float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, limit)
}

// Clamp bounds v to [0, MaxScore]. NaN becomes 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > MaxScore:
		return MaxScore
	}
	return v
}

// Assess scores an alert with the function for its variant.
func Assess(a event.Alert) Assessment {
	switch e := a.(type) {
	case *event.SecurityFailedLoginEvent:
		return LoginThreatScore(e)
	case *event.SecurityUnauthorizedAccessEvent:
		return AccessRiskScore(e)
	case *event.SystemDatabaseFailureEvent:
		return DatabaseImpactScore(e)
	case *event.SystemPerformanceDegradationEvent:
		return PerformanceImpactScore(e)
	case *event.UserActionRoleChangedEvent:
		return RoleChangeRiskScore(e)
	case *event.UserActionBulkExportEvent:
		return ExportRiskScore(e)
	case *event.BusinessHighValueSaleEvent:
		return SaleSignificanceScore(e)
	case *event.BusinessClientDeletedEvent:
		return ClientDeletionRiskScore(e)
	case *event.BusinessUnusualExpenseEvent:
		return ExpenseRiskScore(e)
	case *event.BusinessPaymentFailedEvent:
		return PaymentFailureRiskScore(e)
	case *event.BusinessPaymentOverdueEvent:
		return OverdueRiskScore(e)
	}
	return severityScore(a.Severity())
}

func severityScore(s event.Severity) Assessment {
	var sc scorer
	sc.add("severity", float64(s.Rank())*25, MaxScore)
	return sc.result()
}

// SaleSignificanceScore: amount/1000 up to 30, margin/2 up to 50, +20 for a
// record high.
func SaleSignificanceScore(e *event.BusinessHighValueSaleEvent) Assessment {
	var sc scorer
	sc.add("sale_amount", e.SaleAmount/1000, 30)
	sc.add("profit_margin", e.ProfitMargin/2, 50)
	sc.flag("record_high", e.IsRecordHigh, 20)
	return sc.result()
}

func ClientDeletionRiskScore(e *event.BusinessClientDeletedEvent) Assessment {
	var sc scorer
	sc.flag("high_value_client", e.WasHighValueClient, 40)
	sc.add("active_projects", float64(e.ActiveProjectsCount)*10, 30)
	sc.flag("no_backup", !e.BackupCreated, 20)
	sc.add("lifetime_value", e.DeletedClient.LifetimeValue/10000, 10)
	return sc.result()
}

func ExpenseRiskScore(e *event.BusinessUnusualExpenseEvent) Assessment {
	var sc scorer
	sc.add("deviation", (e.Deviation()-1)*10, 50)
	sc.flag("suspicious", e.IsSuspicious, 30)
	sc.add("reasons", float64(len(e.Reasons))*5, 20)
	return sc.result()
}

func PaymentFailureRiskScore(e *event.BusinessPaymentFailedEvent) Assessment {
	var sc scorer
	sc.add("amount", e.Amount/1000, 40)
	sc.add("attempts", float64(e.AttemptCount)*15, 45)
	sc.flag("permanent_failure", e.IsPermanentFailure(), 15)
	return sc.result()
}

func OverdueRiskScore(e *event.BusinessPaymentOverdueEvent) Assessment {
	var sc scorer
	sc.add("days_overdue", float64(e.DaysOverdue)*2/3, 60)
	sc.add("amount", e.Amount/2500, 40)
	return sc.result()
}

func LoginThreatScore(e *event.SecurityFailedLoginEvent) Assessment {
	var sc scorer
	sc.add("attempts", float64(e.Attempts)*3, 60)
	sc.flag("suspicious", e.IsSuspicious, 30)
	sc.flag("unknown_agent", e.UserAgent == "", 10)
	return sc.result()
}

func AccessRiskScore(e *event.SecurityUnauthorizedAccessEvent) Assessment {
	var sc scorer
	sc.add("base", 10, 10)
	sc.flag("privilege_escalation", e.IsPrivilegeEscalation, 60)
	sc.flag("sensitive_resource", e.IsSensitiveResource, 30)
	return sc.result()
}

func DatabaseImpactScore(e *event.SystemDatabaseFailureEvent) Assessment {
	var sc scorer
	sc.flag("system_wide", e.IsSystemWide, 40)
	sc.flag("data_integrity", e.IsDataIntegrityIssue, 30)
	sc.flag("connection_failure", e.IsConnectionFailure, 15)
	sc.flag("impacting_users", e.IsImpactingUsers, 15)
	sc.flag("unrecovered", !e.RecoveryAttempted, 10)
	return sc.result()
}

func PerformanceImpactScore(e *event.SystemPerformanceDegradationEvent) Assessment {
	var sc scorer
	sc.add("ratio", (e.Ratio()-1)*70, 70)
	sc.add("duration", float64(e.DurationSeconds)/60, 30)
	return sc.result()
}

func RoleChangeRiskScore(e *event.UserActionRoleChangedEvent) Assessment {
	var sc scorer
	sc.flag("admin_grant", e.NewRole == user.RoleAdmin, 50)
	sc.flag("promotion", e.IsPromotion(), 20)
	sc.flag("unreviewed_grant", e.RequiresImmediateReview(), 30)
	return sc.result()
}

func ExportRiskScore(e *event.UserActionBulkExportEvent) Assessment {
	var sc scorer
	sc.add("records", float64(e.RecordCount)/100, 50)
	sc.flag("sensitive_data", e.ContainsSensitiveData, 40)
	sc.flag("very_large", e.RecordCount >= 10000, 10)
	return sc.result()
}
