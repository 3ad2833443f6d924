// Package mail renders alert emails and sends them through an ordered list
// of providers, falling back to the next provider when one fails.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gyaneshwarpardhi/opsalert/internal/metrics"
)

// ErrNoProvider is returned when no registered provider is configured.
var ErrNoProvider = errors.New("no configured email provider")

// Request is one email ready to hand to a provider.
type Request struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Provider is an email backend.
type Provider interface {
	Name() string
	Send(ctx context.Context, req *Request) error
	// Configured reports whether the provider has the credentials it needs.
	Configured() bool
}

// Registry holds providers and the order to try them in.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{providers: make(map[string]Provider), logger: logger}
}

// Register adds p. Providers are tried in registration order unless
// SetOrder says otherwise.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[p.Name()]; !ok {
		r.order = append(r.order, p.Name())
	}
	r.providers[p.Name()] = p
	r.logger.Info("registered email provider", "name", p.Name(), "configured", p.Configured())
}

// SetOrder sets the order providers are tried in. Registered providers not
// named are dropped from the rotation.
func (r *Registry) SetOrder(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		if _, ok := r.providers[n]; !ok {
			return fmt.Errorf("provider %q not registered", n)
		}
	}
	r.order = append([]string(nil), names...)
	return nil
}

// Order returns the provider names in the order they are tried.
func (r *Registry) Order() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Send tries each configured provider in order and returns the name of the
// one that accepted the email. When all fail the errors are joined.
func (r *Registry) Send(ctx context.Context, req *Request) (string, error) {
	if len(req.To) == 0 {
		return "", fmt.Errorf("no recipients specified")
	}
	r.mu.RLock()
	candidates := make([]Provider, 0, len(r.order))
	for _, n := range r.order {
		if p := r.providers[n]; p.Configured() {
			candidates = append(candidates, p)
		}
	}
	r.mu.RUnlock()
	if len(candidates) == 0 {
		return "", ErrNoProvider
	}

	var errs []error
	for i, p := range candidates {
		err := p.Send(ctx, req)
		if err == nil {
			metrics.EmailsSent.WithLabelValues(p.Name(), "sent").Inc()
			return p.Name(), nil
		}
		metrics.EmailsSent.WithLabelValues(p.Name(), "failed").Inc()
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		if i+1 < len(candidates) {
			r.logger.Warn("email provider failed, trying fallback",
				"provider", p.Name(),
				"fallback", candidates[i+1].Name(),
				"error", err,
			)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return "", errors.Join(errs...)
}
