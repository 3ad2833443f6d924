package routing

import (
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/opsalert/internal/condition"
	"github.com/gyaneshwarpardhi/opsalert/internal/config"
	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

// Build compiles a rule table. Every expression is parsed here, so
// evaluation never parses. Disabled scenarios are left out.
func Build(rc config.RoutingConf) (*Graph, error) {
	g := newGraph()
	for _, sc := range rc.Scenarios {
		if !sc.Enabled {
			continue
		}
		if err := g.attach("", NewScenarioNode(sc.ID, sc.Types, sc.Categories)); err != nil {
			return nil, err
		}
		for _, ref := range sc.Children {
			if err := g.compile(sc.ID, ref); err != nil {
				return nil, fmt.Errorf("scenario %s: %w", sc.ID, err)
			}
		}
	}
	return g, nil
}

func (g *Graph) compile(parent string, ref config.NodeRef) error {
	switch {
	case ref.Condition != nil:
		c := ref.Condition
		expr, err := condition.Parse(c.Expression)
		if err != nil {
			return fmt.Errorf("condition %s: %w", c.ID, err)
		}
		if err := g.attach(parent, NewConditionNode(c.ID, expr)); err != nil {
			return err
		}
		for _, child := range c.Children {
			if err := g.compile(c.ID, child); err != nil {
				return fmt.Errorf("condition %s: %w", c.ID, err)
			}
		}
		return nil
	case ref.Rule != nil:
		rule, err := compileRule(ref.Rule)
		if err != nil {
			return fmt.Errorf("rule %s: %w", ref.Rule.ID, err)
		}
		return g.attach(parent, rule)
	}
	return errors.New("node has neither a condition nor a rule")
}

func compileRule(r *config.RuleDef) (*RuleNode, error) {
	if len(r.Roles) == 0 && len(r.Subjects) == 0 {
		return nil, errors.New("names no roles or subjects")
	}
	roles := make([]user.Role, 0, len(r.Roles))
	for _, s := range r.Roles {
		role, err := user.ParseRole(s)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	for _, s := range r.Subjects {
		if s != config.SubjectInitiator && s != config.SubjectInitiatorManager {
			return nil, fmt.Errorf("unknown subject %q", s)
		}
	}
	return NewRuleNode(r.ID, roles, r.Subjects), nil
}
