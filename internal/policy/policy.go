// Package policy maps an alert's severity and category to the queue that
// carries it and the retry schedule applied to its jobs.
package policy

import (
	"time"

	"github.com/gyaneshwarpardhi/opsalert/internal/event"
)

// Queue names.
const (
	QueueCritical     = "critical"
	QueueSystemAlerts = "system-alerts"
	QueueHigh         = "high"
	QueueBusinessHigh = "business-high-alerts"
	QueueSecurityHigh = "security-high-alerts"
	QueueDefault      = "default"
	QueueLow          = "low"
	QueueMail         = "mail"
)

// Queues lists every queue the broker must serve.
var Queues = []string{
	QueueCritical, QueueSystemAlerts,
	QueueHigh, QueueBusinessHigh, QueueSecurityHigh,
	QueueDefault, QueueLow, QueueMail,
}

// Retry is the attempt budget for one job. Backoff[i] is the wait before
// attempt i+2; when it is shorter than Tries-1 the broker falls back to its
// exponential schedule.
type Retry struct {
	Tries   int
	Backoff []time.Duration
}

// Delay returns the wait after the given failed attempt (1-based), or false
// when no explicit delay is configured for it.
func (r Retry) Delay(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > len(r.Backoff) {
		return 0, false
	}
	return r.Backoff[attempt-1], true
}

// Decision is the result of classifying one alert.
type Decision struct {
	Severity  event.Severity
	Queue     string
	Retry     Retry
	SendEmail bool
}

var criticalBackoff = []time.Duration{
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	300 * time.Second,
}

// RetryFor returns the static retry policy of a tier.
func RetryFor(s event.Severity) Retry {
	switch s {
	case event.SeverityCritical:
		b := make([]time.Duration, len(criticalBackoff))
		copy(b, criticalBackoff)
		return Retry{Tries: 5, Backoff: b}
	case event.SeverityHigh:
		return Retry{Tries: 3}
	case event.SeverityMedium:
		return Retry{Tries: 2}
	default:
		return Retry{Tries: 1}
	}
}

// QueueFor returns the queue name for a tier and category.
func QueueFor(s event.Severity, c event.Category) string {
	switch s {
	case event.SeverityCritical:
		if c == event.CategorySystem {
			return QueueSystemAlerts
		}
		return QueueCritical
	case event.SeverityHigh:
		switch c {
		case event.CategoryBusiness:
			return QueueBusinessHigh
		case event.CategorySecurity:
			return QueueSecurityHigh
		}
		return QueueHigh
	case event.SeverityMedium:
		return QueueDefault
	default:
		return QueueLow
	}
}

// Classify resolves queue, retry and email policy from the severity the
// alert computed at construction.
func Classify(a event.Alert) Decision {
	sev := a.Severity()
	return Decision{
		Severity:  sev,
		Queue:     QueueFor(sev, a.Category()),
		Retry:     RetryFor(sev),
		SendEmail: sev.ShouldSendEmail(),
	}
}
