package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Role is the organisational role a user holds in the dashboard.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleManager     Role = "manager"
	RoleVA          Role = "va"
	RoleSales       Role = "sales"
	RoleFinance     Role = "finance"
	RoleCollections Role = "collections"
	RoleSupport     Role = "support"
)

var knownRoles = map[Role]struct{}{
	RoleAdmin:       {},
	RoleManager:     {},
	RoleVA:          {},
	RoleSales:       {},
	RoleFinance:     {},
	RoleCollections: {},
	RoleSupport:     {},
}

// ErrNotFound is returned by a Directory when a user id is unknown.
var ErrNotFound = errors.New("user not found")

// ParseRole normalises s and checks it against the known roles.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownRoles[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

// User is a snapshot of a dashboard user. ManagerID is a weak reference to the
// user's direct manager; it may be empty or point back at the user itself.
type User struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Email     string `json:"email" yaml:"email"`
	Role      Role   `json:"role" yaml:"role"`
	ManagerID string `json:"manager_id,omitempty" yaml:"manager_id,omitempty"`
}

// HasManager reports whether the user has a direct manager other than themself.
func (u User) HasManager() bool {
	return u.ManagerID != "" && u.ManagerID != u.ID
}

// Directory looks users up for recipient resolution and task assignment.
type Directory interface {
	Get(ctx context.Context, id string) (User, error)
	ListByRole(ctx context.Context, roles ...Role) ([]User, error)
}
