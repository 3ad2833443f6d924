package action

import (
	"fmt"
	"sync"

	"github.com/gyaneshwarpardhi/opsalert/internal/event"
)

// Registry maps step names to their executors, keeping registration order.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
	order     []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds executors. Panics on a duplicate name to surface
// misconfiguration early.
func (r *Registry) Register(execs ...Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range execs {
		if _, exists := r.executors[e.Name()]; exists {
			panic(fmt.Sprintf("action registry: duplicate step %q", e.Name()))
		}
		r.executors[e.Name()] = e
		r.order = append(r.order, e.Name())
	}
}

// Get returns the executor for the given step.
func (r *Registry) Get(step string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[step]
	if !ok {
		return nil, fmt.Errorf("no executor registered for step %q", step)
	}
	return e, nil
}

// Names returns all registered step names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// For returns the executors that apply to a, in registration order.
func (r *Registry) For(a event.Alert) []Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Executor
	for _, name := range r.order {
		if e := r.executors[name]; e.Applies(a) {
			out = append(out, e)
		}
	}
	return out
}
