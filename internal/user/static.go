package user

import (
	"context"
	"sort"
	"sync"
)

// StaticDirectory is an in-memory Directory seeded from configuration.
type StaticDirectory struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewStaticDirectory creates a directory holding users.
func NewStaticDirectory(users ...User) *StaticDirectory {
	d := &StaticDirectory{users: make(map[string]User, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

// Put adds or replaces a user.
func (d *StaticDirectory) Put(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

// Replace swaps the whole user set (used on config reload).
func (d *StaticDirectory) Replace(users []User) {
	m := make(map[string]User, len(users))
	for _, u := range users {
		m[u.ID] = u
	}
	d.mu.Lock()
	d.users = m
	d.mu.Unlock()
}

func (d *StaticDirectory) Get(_ context.Context, id string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// ListByRole returns users holding any of roles, ordered by id.
func (d *StaticDirectory) ListByRole(_ context.Context, roles ...Role) ([]User, error) {
	want := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		want[r] = struct{}{}
	}
	d.mu.RLock()
	out := make([]User, 0)
	for _, u := range d.users {
		if _, ok := want[u.Role]; ok {
			out = append(out, u)
		}
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
