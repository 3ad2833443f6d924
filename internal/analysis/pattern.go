package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gyaneshwarpardhi/opsalert/internal/config"
	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/store"
)

// Pattern indicators.
const (
	MultipleClientDeletions    = "multiple_client_deletions"
	RepeatedHighValueDeletions = "repeated_high_value_deletions"
	RepeatedUnusualExpenses    = "repeated_unusual_expenses"
	RepeatedSuspiciousExpenses = "repeated_suspicious_expenses"
	SalesStreak                = "sales_streak"
	RepeatedPaymentFailures    = "repeated_payment_failures"
	ChronicLatePayer           = "chronic_late_payer"
	BruteForceSource           = "brute_force_source"
	TargetedAccount            = "targeted_account"
	RepeatedAccessViolations   = "repeated_access_violations"
	RecurringDatabaseFailures  = "recurring_database_failures"
	ChronicPerformanceIssue    = "chronic_performance_issue"
	FrequentPrivilegeChanges   = "frequent_privilege_changes"
	RepeatedBulkExports        = "repeated_bulk_exports"
)

// Key selects the tracking column a pattern groups rows by.
type Key int

const (
	ByActor Key = iota
	BySubject
)

const day = 24 * time.Hour

// Pattern is "at least Count rows of EventType sharing Key within Window".
// When Tag is set only tagged rows count, and the pattern is checked only
// for alerts whose own row carries the tag.
type Pattern struct {
	Indicator string
	EventType string
	Key       Key
	Tag       string
	Count     int
	Window    time.Duration
}

// DefaultPatterns returns the built-in thresholds.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{MultipleClientDeletions, event.TypeBusinessClientDeleted, ByActor, "", 3, 30 * day},
		{RepeatedHighValueDeletions, event.TypeBusinessClientDeleted, ByActor, TagHighValueClient, 2, 90 * day},
		{RepeatedUnusualExpenses, event.TypeBusinessUnusualExpense, ByActor, "", 3, 30 * day},
		{RepeatedSuspiciousExpenses, event.TypeBusinessUnusualExpense, ByActor, TagSuspicious, 2, 30 * day},
		{SalesStreak, event.TypeBusinessHighValueSale, ByActor, "", 3, 30 * day},
		{RepeatedPaymentFailures, event.TypeBusinessPaymentFailed, BySubject, "", 2, 30 * day},
		{ChronicLatePayer, event.TypeBusinessPaymentOverdue, BySubject, "", 2, 90 * day},
		{BruteForceSource, event.TypeSecurityFailedLogin, ByActor, "", 3, day},
		{TargetedAccount, event.TypeSecurityFailedLogin, BySubject, "", 5, day},
		{RepeatedAccessViolations, event.TypeSecurityUnauthorizedAccess, ByActor, "", 3, day},
		{RecurringDatabaseFailures, event.TypeSystemDatabaseFailure, BySubject, "", 3, day},
		{ChronicPerformanceIssue, event.TypeSystemPerformanceDegradation, BySubject, "", 3, day},
		{FrequentPrivilegeChanges, event.TypeUserActionRoleChanged, ByActor, "", 3, 7 * day},
		{RepeatedBulkExports, event.TypeUserActionBulkExport, ByActor, "", 3, 7 * day},
	}
}

// Counter is the tracking query pattern detection needs.
type Counter interface {
	CountTracking(ctx context.Context, category string, f store.TrackingFilter) (int, error)
}

// Detector checks tracking history against the pattern table.
type Detector struct {
	counter Counter
	byType  map[string][]Pattern
}

// NewDetector applies overrides, keyed by indicator, on top of the
// built-in thresholds. Overriding an unknown indicator is an error.
func NewDetector(c Counter, overrides map[string]config.PatternConf) (*Detector, error) {
	patterns := DefaultPatterns()
	known := make(map[string]int, len(patterns))
	for i, p := range patterns {
		known[p.Indicator] = i
	}
	var unknown []string
	for name, o := range overrides {
		i, ok := known[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if o.Count > 0 {
			patterns[i].Count = o.Count
		}
		if o.Window > 0 {
			patterns[i].Window = o.Window
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown pattern indicators: %v", unknown)
	}
	d := &Detector{counter: c, byType: make(map[string][]Pattern)}
	for _, p := range patterns {
		d.byType[p.EventType] = append(d.byType[p.EventType], p)
	}
	return d, nil
}

// Patterns returns the effective table for an alert type.
func (d *Detector) Patterns(eventType string) []Pattern {
	return append([]Pattern(nil), d.byType[eventType]...)
}

// Detect counts the history around row, which must already be stored, and
// returns the indicators whose thresholds are met. The window ends at the
// alert's occurrence time. A failed query skips its pattern; the failures
// are returned joined alongside whatever was found.
func (d *Detector) Detect(ctx context.Context, row store.TrackingRecord) ([]string, error) {
	var found []string
	var errs []error
	for _, p := range d.byType[row.EventType] {
		if p.Tag != "" && !row.HasIndicator(p.Tag) {
			continue
		}
		f := store.TrackingFilter{
			EventType: p.EventType,
			Indicator: p.Tag,
			Since:     row.OccurredAt.Add(-p.Window),
			Until:     row.OccurredAt,
		}
		switch p.Key {
		case ByActor:
			if row.ActorID == "" {
				continue
			}
			f.ActorID = row.ActorID
		case BySubject:
			if row.SubjectID == "" {
				continue
			}
			f.SubjectID = row.SubjectID
		}
		n, err := d.counter.CountTracking(ctx, row.Category, f)
		if err != nil {
			errs = append(errs, fmt.Errorf("pattern %s: %w", p.Indicator, err))
			continue
		}
		if n >= p.Count {
			found = append(found, p.Indicator)
		}
	}
	return found, errors.Join(errs...)
}
