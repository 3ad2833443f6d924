package routing

import (
	"fmt"
	"sort"

	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

// Graph is a compiled rule table: scenarios are the roots, conditions the
// inner nodes and rules the leaves. Build makes a fresh Graph for every
// reload and nothing mutates it afterwards.
type Graph struct {
	byID      map[string]Node
	next      map[string][]Node
	scenarios []*ScenarioNode
	rules     []*RuleNode
}

func newGraph() *Graph {
	return &Graph{
		byID: make(map[string]Node),
		next: make(map[string][]Node),
	}
}

// attach registers n below parent. Scenarios pass an empty parent.
func (g *Graph) attach(parent string, n Node) error {
	if _, dup := g.byID[n.ID()]; dup {
		return fmt.Errorf("duplicate node id %q", n.ID())
	}
	g.byID[n.ID()] = n
	switch v := n.(type) {
	case *ScenarioNode:
		g.scenarios = append(g.scenarios, v)
	case *RuleNode:
		g.rules = append(g.rules, v)
	}
	if parent != "" {
		g.next[parent] = append(g.next[parent], n)
	}
	return nil
}

// Node returns a node by id, or nil.
func (g *Graph) Node(id string) Node { return g.byID[id] }

// Children returns the nodes directly below id in table order.
func (g *Graph) Children(id string) []Node { return g.next[id] }

// Scenarios returns the enabled scenarios in table order.
func (g *Graph) Scenarios() []*ScenarioNode { return g.scenarios }

func (g *Graph) NodeCount() int { return len(g.byID) }

func (g *Graph) RuleCount() int { return len(g.rules) }

// Roles lists every role some rule can notify.
func (g *Graph) Roles() []user.Role {
	seen := make(map[user.Role]struct{})
	for _, r := range g.rules {
		for _, role := range r.Roles() {
			seen[role] = struct{}{}
		}
	}
	out := make([]user.Role, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
