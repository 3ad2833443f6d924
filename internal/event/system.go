package event

import (
	"fmt"

	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

const (
	TypeSystemDatabaseFailure        = "system.database_failure"
	TypeSystemPerformanceDegradation = "system.performance_degradation"
)

// DatabaseFailure holds the fields of a database failure alert.
type DatabaseFailure struct {
	Connection           string `json:"connection"`
	ErrorMessage         string `json:"error_message"`
	ErrorCode            string `json:"error_code,omitempty"`
	IsConnectionFailure  bool   `json:"is_connection_failure"`
	IsDataIntegrityIssue bool   `json:"is_data_integrity_issue"`
	IsImpactingUsers     bool   `json:"is_impacting_users"`
	RecoveryAttempted    bool   `json:"recovery_attempted"`
	IsSystemWide         bool   `json:"is_system_wide"`
}

// SystemDatabaseFailureEvent is raised when a database connection or query
// fails in a way operators must know about.
type SystemDatabaseFailureEvent struct {
	Base `json:"-"`
	DatabaseFailure
}

func NewSystemDatabaseFailure(in DatabaseFailure, meta Meta) (*SystemDatabaseFailureEvent, error) {
	c := newChecker(TypeSystemDatabaseFailure)
	c.required("connection", in.Connection)
	c.required("error_message", in.ErrorMessage)
	if err := c.err(); err != nil {
		return nil, err
	}
	var sev Severity
	switch {
	case in.IsSystemWide || in.IsDataIntegrityIssue:
		sev = SeverityCritical
	case in.IsConnectionFailure || in.IsImpactingUsers:
		sev = SeverityHigh
	default:
		sev = SeverityMedium
	}
	base, err := newBase(TypeSystemDatabaseFailure, CategorySystem, sev, meta)
	if err != nil {
		return nil, err
	}
	return &SystemDatabaseFailureEvent{Base: base, DatabaseFailure: in}, nil
}

// ShouldTriggerFailover is true for connection failures that were not
// recovered locally, and for every system-wide connection failure.
func (e *SystemDatabaseFailureEvent) ShouldTriggerFailover() bool {
	return e.IsConnectionFailure && (!e.RecoveryAttempted || e.IsSystemWide)
}

func (e *SystemDatabaseFailureEvent) RequiresImmediateReview() bool {
	return e.IsDataIntegrityIssue
}

func (e *SystemDatabaseFailureEvent) Subject() *user.User { return nil }

func (e *SystemDatabaseFailureEvent) Title() string {
	switch {
	case e.IsSystemWide:
		return "System-wide database failure"
	case e.IsDataIntegrityIssue:
		return "Database integrity issue"
	case e.IsConnectionFailure:
		return "Database connection failure"
	}
	return "Database error"
}

func (e *SystemDatabaseFailureEvent) Description() string {
	d := fmt.Sprintf("Connection %s reported: %s", e.Connection, e.ErrorMessage)
	if e.ErrorCode != "" {
		d += " (code " + e.ErrorCode + ")"
	}
	return d
}

func (e *SystemDatabaseFailureEvent) BroadcastWith() map[string]any {
	return e.broadcastWith(e.Title(), e.Description())
}

func (e *SystemDatabaseFailureEvent) Payload() map[string]any { return payloadOf(e.DatabaseFailure) }

// PerformanceDegradation holds the fields of a performance alert.
type PerformanceDegradation struct {
	Component       string  `json:"component"`
	Metric          string  `json:"metric"`
	CurrentValue    float64 `json:"current_value"`
	Threshold       float64 `json:"threshold"`
	DurationSeconds int     `json:"duration_seconds"`
}

// SystemPerformanceDegradationEvent is raised when a monitored metric stays
// above its threshold.
type SystemPerformanceDegradationEvent struct {
	Base `json:"-"`
	PerformanceDegradation
}

func NewSystemPerformanceDegradation(in PerformanceDegradation, meta Meta) (*SystemPerformanceDegradationEvent, error) {
	c := newChecker(TypeSystemPerformanceDegradation)
	c.required("component", in.Component)
	c.required("metric", in.Metric)
	c.positive("threshold", in.Threshold)
	c.nonNegative("current_value", in.CurrentValue)
	c.nonNegative("duration_seconds", float64(in.DurationSeconds))
	if err := c.err(); err != nil {
		return nil, err
	}
	ratio := in.CurrentValue / in.Threshold
	var sev Severity
	switch {
	case ratio >= 2:
		sev = SeverityCritical
	case ratio >= 1.5:
		sev = SeverityHigh
	case ratio >= 1:
		sev = SeverityMedium
	default:
		sev = SeverityLow
	}
	base, err := newBase(TypeSystemPerformanceDegradation, CategorySystem, sev, meta)
	if err != nil {
		return nil, err
	}
	return &SystemPerformanceDegradationEvent{Base: base, PerformanceDegradation: in}, nil
}

// Ratio is current value over threshold.
func (e *SystemPerformanceDegradationEvent) Ratio() float64 {
	return e.CurrentValue / e.Threshold
}

// ShouldMitigate is true when the breach is both large and sustained.
func (e *SystemPerformanceDegradationEvent) ShouldMitigate() bool {
	return e.Ratio() >= 1.5 && e.DurationSeconds >= 300
}

func (e *SystemPerformanceDegradationEvent) Subject() *user.User { return nil }

func (e *SystemPerformanceDegradationEvent) Title() string {
	return fmt.Sprintf("%s degraded", e.Component)
}

func (e *SystemPerformanceDegradationEvent) Description() string {
	return fmt.Sprintf("%s is %.2f against a threshold of %.2f for %ds", e.Metric, e.CurrentValue, e.Threshold, e.DurationSeconds)
}

func (e *SystemPerformanceDegradationEvent) BroadcastWith() map[string]any {
	return e.broadcastWith(e.Title(), e.Description())
}

func (e *SystemPerformanceDegradationEvent) Payload() map[string]any {
	return payloadOf(e.PerformanceDegradation)
}
