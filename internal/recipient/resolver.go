// Package recipient turns the routing rules an alert reached into the
// concrete, de-duplicated set of users to notify.
package recipient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/gyaneshwarpardhi/opsalert/internal/config"
	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/routing"
	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

// Matcher evaluates the rule table for an alert. *routing.Router implements it.
type Matcher interface {
	Match(a event.Alert) ([]routing.Match, []string, error)
}

// Result is the outcome of one resolution.
type Result struct {
	Recipients []user.User // unique by ID, ordered by ID
	Rules      []string    // ids of the rules that contributed
	Scenarios  []string
}

// IDs returns the recipient ids in order.
func (r Result) IDs() []string {
	ids := make([]string, len(r.Recipients))
	for i, u := range r.Recipients {
		ids[i] = u.ID
	}
	return ids
}

// Resolver expands rule matches through the user directory.
type Resolver struct {
	matcher Matcher
	dir     user.Directory
	logger  *slog.Logger
}

func NewResolver(m Matcher, dir user.Directory, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{matcher: m, dir: dir, logger: logger}
}

// Resolve returns everyone who must be notified about a. Several rules may
// name the same person; the result holds each user once. Resolving the same
// alert twice yields the same set.
func (r *Resolver) Resolve(ctx context.Context, a event.Alert) (Result, error) {
	matches, scenarios, err := r.matcher.Match(a)
	if err != nil {
		r.logger.Warn("routing rule evaluation failed", "event_type", a.Type(), "event_id", a.ID(), "error", err)
	}

	// Admins hear about every alert whatever the rule table says.
	roles := map[user.Role]struct{}{user.RoleAdmin: {}}
	subjects := make(map[string]struct{})
	res := Result{Scenarios: scenarios}
	for _, m := range matches {
		res.Rules = append(res.Rules, m.Rule.ID())
		for _, role := range m.Rule.Roles() {
			roles[role] = struct{}{}
		}
		for _, s := range m.Rule.Subjects() {
			subjects[s] = struct{}{}
		}
	}

	set := make(map[string]user.User)
	list := make([]user.Role, 0, len(roles))
	for role := range roles {
		list = append(list, role)
	}
	users, err := r.dir.ListByRole(ctx, list...)
	if err != nil {
		return Result{}, fmt.Errorf("list recipients by role: %w", err)
	}
	for _, u := range users {
		set[u.ID] = u
	}

	if len(subjects) > 0 {
		if subj := subjectOf(a); subj != nil {
			if _, ok := subjects[config.SubjectInitiator]; ok {
				u, err := r.lookup(ctx, *subj)
				if err != nil {
					return Result{}, err
				}
				set[u.ID] = u
			}
			if _, ok := subjects[config.SubjectInitiatorManager]; ok {
				if err := r.addManager(ctx, *subj, set); err != nil {
					return Result{}, err
				}
			}
		}
	}

	res.Recipients = make([]user.User, 0, len(set))
	for _, u := range set {
		res.Recipients = append(res.Recipients, u)
	}
	sort.Slice(res.Recipients, func(i, j int) bool { return res.Recipients[i].ID < res.Recipients[j].ID })
	return res, nil
}

// subjectOf is the user the alert is about, falling back to whoever raised it.
func subjectOf(a event.Alert) *user.User {
	if s := a.Subject(); s != nil {
		return s
	}
	return a.InitiatedBy()
}

// lookup refreshes a snapshot from the directory; users unknown to the
// directory are notified using the snapshot carried by the alert.
func (r *Resolver) lookup(ctx context.Context, snap user.User) (user.User, error) {
	u, err := r.dir.Get(ctx, snap.ID)
	switch {
	case err == nil:
		return u, nil
	case errors.Is(err, user.ErrNotFound):
		return snap, nil
	default:
		return user.User{}, fmt.Errorf("look up user %s: %w", snap.ID, err)
	}
}

func (r *Resolver) addManager(ctx context.Context, subj user.User, set map[string]user.User) error {
	current, err := r.lookup(ctx, subj)
	if err != nil {
		return err
	}
	if !current.HasManager() {
		return nil
	}
	mgr, err := r.dir.Get(ctx, current.ManagerID)
	if errors.Is(err, user.ErrNotFound) {
		r.logger.Warn("manager not found", "user_id", current.ID, "manager_id", current.ManagerID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up manager %s: %w", current.ManagerID, err)
	}
	set[mgr.ID] = mgr
	return nil
}
