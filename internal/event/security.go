package event

import (
	"fmt"

	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

const (
	TypeSecurityFailedLogin        = "security.failed_login"
	TypeSecurityUnauthorizedAccess = "security.unauthorized_access"
)

// FailedLogin holds the fields of a failed-login alert.
type FailedLogin struct {
	Email        string     `json:"email"`
	IPAddress    string     `json:"ip_address"`
	UserAgent    string     `json:"user_agent,omitempty"`
	Attempts     int        `json:"attempts"`
	IsSuspicious bool       `json:"is_suspicious"`
	Location     string     `json:"location,omitempty"`
	User         *user.User `json:"user,omitempty"`
}

// SecurityFailedLoginEvent is raised after repeated failed sign-ins.
type SecurityFailedLoginEvent struct {
	Base `json:"-"`
	FailedLogin
}

// NewSecurityFailedLogin validates in and classifies the alert.
func NewSecurityFailedLogin(in FailedLogin, meta Meta) (*SecurityFailedLoginEvent, error) {
	c := newChecker(TypeSecurityFailedLogin)
	c.email("email", in.Email)
	c.required("ip_address", in.IPAddress)
	c.nonNegative("attempts", float64(in.Attempts))
	if err := c.err(); err != nil {
		return nil, err
	}
	base, err := newBase(TypeSecurityFailedLogin, CategorySecurity, failedLoginSeverity(in), meta)
	if err != nil {
		return nil, err
	}
	return &SecurityFailedLoginEvent{Base: base, FailedLogin: in}, nil
}

func failedLoginSeverity(in FailedLogin) Severity {
	switch {
	case in.Attempts >= 25 && in.IsSuspicious:
		return SeverityCritical
	case in.Attempts >= 10 || in.IsSuspicious:
		return SeverityHigh
	case in.Attempts >= 5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ShouldLockAccount is true once the attempt count crosses the lockout limit.
func (e *SecurityFailedLoginEvent) ShouldLockAccount() bool { return e.Attempts >= 10 }

// ShouldBlockIP is true for suspicious sources with repeated attempts.
func (e *SecurityFailedLoginEvent) ShouldBlockIP() bool {
	return e.IsSuspicious && e.Attempts >= 5
}

func (e *SecurityFailedLoginEvent) RequiresImmediateReview() bool {
	return e.Severity() == SeverityCritical
}

func (e *SecurityFailedLoginEvent) Subject() *user.User {
	if e.User == nil {
		return nil
	}
	return userPtr(*e.User)
}

func (e *SecurityFailedLoginEvent) Title() string {
	if e.IsSuspicious {
		return "Suspicious failed login activity"
	}
	return "Repeated failed login attempts"
}

func (e *SecurityFailedLoginEvent) Description() string {
	d := fmt.Sprintf("%d failed login attempts for %s from %s", e.Attempts, e.Email, e.IPAddress)
	if e.Location != "" {
		d += " (" + e.Location + ")"
	}
	return d
}

func (e *SecurityFailedLoginEvent) BroadcastWith() map[string]any {
	return e.broadcastWith(e.Title(), e.Description())
}

func (e *SecurityFailedLoginEvent) Payload() map[string]any { return payloadOf(e.FailedLogin) }

// UnauthorizedAccess holds the fields of an access-violation alert.
type UnauthorizedAccess struct {
	User                  user.User `json:"user"`
	Resource              string    `json:"resource"`
	Action                string    `json:"action"`
	IPAddress             string    `json:"ip_address,omitempty"`
	IsPrivilegeEscalation bool      `json:"is_privilege_escalation"`
	IsSensitiveResource   bool      `json:"is_sensitive_resource"`
}

// SecurityUnauthorizedAccessEvent is raised when a user touches a resource
// their role does not permit.
type SecurityUnauthorizedAccessEvent struct {
	Base `json:"-"`
	UnauthorizedAccess
}

func NewSecurityUnauthorizedAccess(in UnauthorizedAccess, meta Meta) (*SecurityUnauthorizedAccessEvent, error) {
	c := newChecker(TypeSecurityUnauthorizedAccess)
	c.user("user", in.User.ID)
	c.required("resource", in.Resource)
	c.required("action", in.Action)
	if err := c.err(); err != nil {
		return nil, err
	}
	sev := SeverityMedium
	switch {
	case in.IsPrivilegeEscalation:
		sev = SeverityCritical
	case in.IsSensitiveResource:
		sev = SeverityHigh
	}
	base, err := newBase(TypeSecurityUnauthorizedAccess, CategorySecurity, sev, meta)
	if err != nil {
		return nil, err
	}
	return &SecurityUnauthorizedAccessEvent{Base: base, UnauthorizedAccess: in}, nil
}

func (e *SecurityUnauthorizedAccessEvent) RequiresImmediateReview() bool {
	return e.IsPrivilegeEscalation || e.IsSensitiveResource
}

func (e *SecurityUnauthorizedAccessEvent) Subject() *user.User { return userPtr(e.User) }

func (e *SecurityUnauthorizedAccessEvent) Title() string {
	if e.IsPrivilegeEscalation {
		return "Privilege escalation attempt"
	}
	return "Unauthorized access attempt"
}

func (e *SecurityUnauthorizedAccessEvent) Description() string {
	return fmt.Sprintf("%s attempted to %s %s", displayName(e.User), e.Action, e.Resource)
}

func (e *SecurityUnauthorizedAccessEvent) BroadcastWith() map[string]any {
	return e.broadcastWith(e.Title(), e.Description())
}

func (e *SecurityUnauthorizedAccessEvent) Payload() map[string]any {
	return payloadOf(e.UnauthorizedAccess)
}

func displayName(u user.User) string {
	if u.Name != "" {
		return u.Name
	}
	if u.Email != "" {
		return u.Email
	}
	return "user " + u.ID
}
