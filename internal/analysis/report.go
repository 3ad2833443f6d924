package analysis

import (
	"time"

	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/store"
)

// Risk levels.
const (
	RiskCritical = "critical"
	RiskHigh     = "high"
	RiskMedium   = "medium"
	RiskLow      = "low"
)

// indicatorWeight is added to the alert's own score per indicator found.
const indicatorWeight = 15

// RiskLevel buckets a score.
func RiskLevel(score float64) string {
	switch {
	case score >= 75:
		return RiskCritical
	case score >= 50:
		return RiskHigh
	case score >= 25:
		return RiskMedium
	}
	return RiskLow
}

var recommendations = map[string]string{
	MultipleClientDeletions:    "Review recent client deletions by this user and confirm they were authorised",
	RepeatedHighValueDeletions: "Escalate repeated high value client deletions to management",
	RepeatedUnusualExpenses:    "Audit this submitter's recent expenses",
	RepeatedSuspiciousExpenses: "Suspend expense approval for this submitter pending review",
	SalesStreak:                "Recognise the sales streak and review commission eligibility",
	RepeatedPaymentFailures:    "Contact the client to update payment details",
	ChronicLatePayer:           "Review credit terms for this client",
	BruteForceSource:           "Block the source IP at the firewall",
	TargetedAccount:            "Force a password reset and enable MFA on the targeted account",
	RepeatedAccessViolations:   "Review this user's permissions and recent activity",
	RecurringDatabaseFailures:  "Open a reliability incident for the database connection",
	ChronicPerformanceIssue:    "Schedule capacity planning for the degraded component",
	FrequentPrivilegeChanges:   "Audit recent role changes made by this user",
	RepeatedBulkExports:        "Confirm the business need for repeated bulk exports",
}

// Recommendations returns one action per indicator, in indicator order.
func Recommendations(indicators []string) []string {
	out := make([]string, 0, len(indicators))
	for _, ind := range indicators {
		if r, ok := recommendations[ind]; ok {
			out = append(out, r)
		}
	}
	return out
}

// PatternAnalysisFor builds the row persisted for an alert that matched
// patterns. It returns nil when there are no indicators.
func PatternAnalysisFor(a event.Alert, as Assessment, indicators []string, now time.Time) *store.PatternAnalysis {
	if len(indicators) == 0 {
		return nil
	}
	score := Clamp(as.Score + float64(len(indicators))*indicatorWeight)
	return &store.PatternAnalysis{
		ID:              store.DerivedID(a.ID(), "pattern"),
		Category:        string(a.Category()),
		EventType:       a.Type(),
		EventID:         a.ID(),
		Score:           score,
		RiskLevel:       RiskLevel(score),
		Indicators:      append([]string(nil), indicators...),
		Recommendations: Recommendations(indicators),
		CreatedAt:       now,
	}
}
