// Package routing compiles the recipient rule table into a graph of
// scenario, condition and rule nodes and evaluates alerts against it.
package routing

import (
	"fmt"
	"sync/atomic"

	"github.com/gyaneshwarpardhi/opsalert/internal/config"
	"github.com/gyaneshwarpardhi/opsalert/internal/event"
)

type snapshot struct {
	graph *Graph
	conf  config.RoutingConf
}

// Router holds the live graph. Swap replaces it without blocking readers.
type Router struct {
	current atomic.Pointer[snapshot]
}

// NewRouter builds the initial graph.
func NewRouter(rc config.RoutingConf) (*Router, error) {
	r := &Router{}
	if err := r.Swap(rc); err != nil {
		return nil, err
	}
	return r, nil
}

// Swap compiles rc and, on success, makes it the live graph. On failure
// the previous graph stays in place.
func (r *Router) Swap(rc config.RoutingConf) error {
	g, err := Build(rc)
	if err != nil {
		return fmt.Errorf("build routing graph: %w", err)
	}
	r.current.Store(&snapshot{graph: g, conf: rc})
	return nil
}

// Match evaluates the live graph for an alert.
func (r *Router) Match(a event.Alert) ([]Match, []string, error) {
	return Evaluate(r.current.Load().graph, a)
}

// Graph returns the live graph.
func (r *Router) Graph() *Graph { return r.current.Load().graph }

// Rules returns the rule table the live graph was built from.
func (r *Router) Rules() config.RoutingConf { return r.current.Load().conf }
