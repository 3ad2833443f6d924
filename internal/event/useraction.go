package event

import (
	"fmt"

	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

const (
	TypeUserActionRoleChanged = "useraction.role_changed"
	TypeUserActionBulkExport  = "useraction.bulk_export"
)

// RoleChanged holds the fields of a role change alert.
type RoleChanged struct {
	User      user.User `json:"user"`
	ChangedBy user.User `json:"changed_by"`
	OldRole   user.Role `json:"old_role"`
	NewRole   user.Role `json:"new_role"`
}

// UserActionRoleChangedEvent is raised when a user's role is modified.
type UserActionRoleChangedEvent struct {
	Base `json:"-"`
	RoleChanged
}

var roleWeight = map[user.Role]int{
	user.RoleVA:          1,
	user.RoleSupport:     1,
	user.RoleSales:       2,
	user.RoleFinance:     2,
	user.RoleCollections: 2,
	user.RoleManager:     3,
	user.RoleAdmin:       4,
}

func NewUserActionRoleChanged(in RoleChanged, meta Meta) (*UserActionRoleChangedEvent, error) {
	c := newChecker(TypeUserActionRoleChanged)
	c.user("user", in.User.ID)
	c.user("changed_by", in.ChangedBy.ID)
	if !in.OldRole.Valid() {
		c.fail("old_role", "unknown role %q", in.OldRole)
	}
	if !in.NewRole.Valid() {
		c.fail("new_role", "unknown role %q", in.NewRole)
	}
	if in.OldRole == in.NewRole && in.OldRole != "" {
		c.fail("new_role", "must differ from old_role")
	}
	if err := c.err(); err != nil {
		return nil, err
	}
	sev := SeverityLow
	switch {
	case in.NewRole == user.RoleAdmin:
		sev = SeverityHigh
	case roleWeight[in.NewRole] > roleWeight[in.OldRole]:
		sev = SeverityMedium
	}
	base, err := newBase(TypeUserActionRoleChanged, CategoryUserAction, sev, meta)
	if err != nil {
		return nil, err
	}
	return &UserActionRoleChangedEvent{Base: base, RoleChanged: in}, nil
}

// IsPromotion reports whether the new role outranks the old one.
func (e *UserActionRoleChangedEvent) IsPromotion() bool {
	return roleWeight[e.NewRole] > roleWeight[e.OldRole]
}

// RequiresImmediateReview is true when someone who is not an admin grants
// the admin role.
func (e *UserActionRoleChangedEvent) RequiresImmediateReview() bool {
	return e.NewRole == user.RoleAdmin && e.ChangedBy.Role != user.RoleAdmin
}

func (e *UserActionRoleChangedEvent) Subject() *user.User { return userPtr(e.User) }

func (e *UserActionRoleChangedEvent) Title() string {
	if e.NewRole == user.RoleAdmin {
		return "User promoted to admin"
	}
	return "User role changed"
}

func (e *UserActionRoleChangedEvent) Description() string {
	return fmt.Sprintf("%s changed %s from %s to %s", displayName(e.ChangedBy), displayName(e.User), e.OldRole, e.NewRole)
}

func (e *UserActionRoleChangedEvent) BroadcastWith() map[string]any {
	return e.broadcastWith(e.Title(), e.Description())
}

func (e *UserActionRoleChangedEvent) Payload() map[string]any { return payloadOf(e.RoleChanged) }

// BulkExport holds the fields of a data export alert.
type BulkExport struct {
	User                  user.User `json:"user"`
	ExportType            string    `json:"export_type"`
	RecordCount           int       `json:"record_count"`
	ContainsSensitiveData bool      `json:"contains_sensitive_data"`
}

// UserActionBulkExportEvent is raised when a user exports a large data set.
type UserActionBulkExportEvent struct {
	Base `json:"-"`
	BulkExport
}

func NewUserActionBulkExport(in BulkExport, meta Meta) (*UserActionBulkExportEvent, error) {
	c := newChecker(TypeUserActionBulkExport)
	c.user("user", in.User.ID)
	c.required("export_type", in.ExportType)
	c.nonNegative("record_count", float64(in.RecordCount))
	if err := c.err(); err != nil {
		return nil, err
	}
	sev := SeverityLow
	switch {
	case in.ContainsSensitiveData && in.RecordCount >= 1000:
		sev = SeverityHigh
	case in.ContainsSensitiveData || in.RecordCount >= 10000:
		sev = SeverityMedium
	}
	base, err := newBase(TypeUserActionBulkExport, CategoryUserAction, sev, meta)
	if err != nil {
		return nil, err
	}
	return &UserActionBulkExportEvent{Base: base, BulkExport: in}, nil
}

func (e *UserActionBulkExportEvent) RequiresImmediateReview() bool {
	return e.ContainsSensitiveData && e.RecordCount >= 1000
}

func (e *UserActionBulkExportEvent) Subject() *user.User { return userPtr(e.User) }

func (e *UserActionBulkExportEvent) Title() string {
	if e.ContainsSensitiveData {
		return "Sensitive data exported"
	}
	return "Bulk data export"
}

func (e *UserActionBulkExportEvent) Description() string {
	return fmt.Sprintf("%s exported %d %s records", displayName(e.User), e.RecordCount, e.ExportType)
}

func (e *UserActionBulkExportEvent) BroadcastWith() map[string]any {
	return e.broadcastWith(e.Title(), e.Description())
}

func (e *UserActionBulkExportEvent) Payload() map[string]any { return payloadOf(e.BulkExport) }
