package action

import (
	"context"

	"github.com/gyaneshwarpardhi/opsalert/internal/event"
)

// Result holds the outcome of running a single follow-up.
type Result struct {
	Step    string `json:"step"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Executor is the interface all follow-up implementations must satisfy.
type Executor interface {
	// Name returns the step name this executor is registered under.
	Name() string
	// Applies reports whether the alert calls for this follow-up. It reads
	// only the alert's own fields.
	Applies(a event.Alert) bool
	// Execute runs the follow-up. Running it twice for the same alert must
	// not duplicate its effect.
	Execute(ctx context.Context, a event.Alert) (*Result, error)
}

// Func adapts plain functions into an Executor.
type Func struct {
	Step string
	When func(a event.Alert) bool
	Run  func(ctx context.Context, a event.Alert) (*Result, error)
}

func (f Func) Name() string               { return f.Step }
func (f Func) Applies(a event.Alert) bool { return f.When == nil || f.When(a) }

func (f Func) Execute(ctx context.Context, a event.Alert) (*Result, error) {
	return f.Run(ctx, a)
}
