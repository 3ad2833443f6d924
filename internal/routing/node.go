package routing

import (
	"strings"

	"github.com/gyaneshwarpardhi/opsalert/internal/condition"
	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

// NodeKind discriminates the three kinds of graph nodes.
type NodeKind string

const (
	NodeKindScenario  NodeKind = "scenario"
	NodeKindCondition NodeKind = "condition"
	NodeKindRule      NodeKind = "rule"
)

// Node is the common interface for all graph nodes.
type Node interface {
	ID() string
	Kind() NodeKind
	Evaluate(ctx *EvalContext) (bool, error)
}

// EvalContext is the per-alert view conditions are evaluated against.
type EvalContext struct {
	Alert event.Alert
	vars  condition.MapContext
}

// NewEvalContext snapshots the alert into the namespaces visible to
// expressions: alert, payload, context, subject and initiator.
func NewEvalContext(a event.Alert) *EvalContext {
	vars := condition.MapContext{
		"alert": map[string]any{
			"id":       a.ID(),
			"type":     a.Type(),
			"category": string(a.Category()),
			"severity": string(a.Severity()),
			"title":    a.Title(),
		},
		"payload": a.Payload(),
		"context": a.Context(),
	}
	if s := a.Subject(); s != nil {
		vars["subject"] = userVars(*s)
	}
	if by := a.InitiatedBy(); by != nil {
		vars["initiator"] = userVars(*by)
	}
	return &EvalContext{Alert: a, vars: vars}
}

func userVars(u user.User) map[string]any {
	return map[string]any{
		"id":         u.ID,
		"role":       string(u.Role),
		"manager_id": u.ManagerID,
	}
}

// Resolve implements condition.EvalContext.
func (c *EvalContext) Resolve(path []string) (any, bool) {
	return c.vars.Resolve(path)
}

// ScenarioNode is the root entry point for a scenario.
// It passes when the alert type and category match.
type ScenarioNode struct {
	id         string
	types      map[string]struct{} // empty = all types
	categories map[string]struct{} // empty = all categories
}

func NewScenarioNode(id string, types, categories []string) *ScenarioNode {
	t := make(map[string]struct{}, len(types))
	for _, v := range types {
		t[strings.ToLower(v)] = struct{}{}
	}
	c := make(map[string]struct{}, len(categories))
	for _, v := range categories {
		c[strings.ToLower(v)] = struct{}{}
	}
	return &ScenarioNode{id: id, types: t, categories: c}
}

func (n *ScenarioNode) ID() string     { return n.id }
func (n *ScenarioNode) Kind() NodeKind { return NodeKindScenario }

func (n *ScenarioNode) Evaluate(ctx *EvalContext) (bool, error) {
	if len(n.types) > 0 {
		if _, ok := n.types[strings.ToLower(ctx.Alert.Type())]; !ok {
			return false, nil
		}
	}
	if len(n.categories) > 0 {
		if _, ok := n.categories[strings.ToLower(string(ctx.Alert.Category()))]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// ConditionNode holds a pre-compiled expression AST.
type ConditionNode struct {
	id   string
	expr condition.Expr
}

func NewConditionNode(id string, expr condition.Expr) *ConditionNode {
	return &ConditionNode{id: id, expr: expr}
}

func (n *ConditionNode) ID() string     { return n.id }
func (n *ConditionNode) Kind() NodeKind { return NodeKindCondition }

func (n *ConditionNode) Evaluate(ctx *EvalContext) (bool, error) {
	return condition.Evaluate(n.expr, ctx)
}

// RuleNode is a leaf naming recipient roles and subject selectors.
type RuleNode struct {
	id       string
	roles    []user.Role
	subjects []string
}

func NewRuleNode(id string, roles []user.Role, subjects []string) *RuleNode {
	return &RuleNode{id: id, roles: roles, subjects: subjects}
}

func (n *RuleNode) ID() string         { return n.id }
func (n *RuleNode) Kind() NodeKind     { return NodeKindRule }
func (n *RuleNode) Roles() []user.Role { return n.roles }
func (n *RuleNode) Subjects() []string { return n.subjects }

// Evaluate always passes; reaching a rule means its ancestors matched.
func (n *RuleNode) Evaluate(*EvalContext) (bool, error) { return true, nil }
