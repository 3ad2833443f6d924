package config

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

// Validate checks the config for:
//   - Duplicate IDs across scenarios, conditions, and rules
//   - Unknown alert types, categories, roles and subjects
//   - Required fields and sane engine limits
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string

	if cfg.Engine.DefaultWorkers < 1 {
		errs = append(errs, "engine.default_workers must be >= 1")
	}
	for q, n := range cfg.Engine.Workers {
		if n < 0 {
			errs = append(errs, fmt.Sprintf("engine.workers.%s must be >= 0", q))
		}
	}
	if cfg.Engine.QueueDepth < 1 {
		errs = append(errs, "engine.queue_depth must be >= 1")
	}
	if cfg.Engine.BackoffCapMs < cfg.Engine.BackoffBaseMs {
		errs = append(errs, "engine.backoff_cap_ms must be >= backoff_base_ms")
	}
	for name, p := range cfg.Thresholds.Patterns {
		if p.Count < 1 || p.Window <= 0 {
			errs = append(errs, fmt.Sprintf("thresholds.patterns.%s: count and window must be positive", name))
		}
	}
	for i, u := range cfg.Users {
		if u.ID == "" {
			errs = append(errs, fmt.Sprintf("users[%d]: id is required", i))
		}
		if !u.Role.Valid() {
			errs = append(errs, fmt.Sprintf("users[%d]: unknown role %q", i, u.Role))
		}
	}

	ids := make(map[string]string) // id → location
	for i, sc := range cfg.Routing.Scenarios {
		if sc.ID == "" {
			errs = append(errs, fmt.Sprintf("routing.scenarios[%d]: id is required", i))
			continue
		}
		loc := fmt.Sprintf("scenario %s", sc.ID)
		claim(ids, sc.ID, loc, &errs)
		for _, t := range sc.Types {
			if !event.Known(t) {
				errs = append(errs, fmt.Sprintf("scenario %s: unknown alert type %q", sc.ID, t))
			}
		}
		for _, c := range sc.Categories {
			if !event.Category(c).Valid() {
				errs = append(errs, fmt.Sprintf("scenario %s: unknown category %q", sc.ID, c))
			}
		}
		validateNodeRefs(sc.Children, loc, ids, &errs)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func claim(ids map[string]string, id, loc string, errs *[]string) {
	if prev, ok := ids[id]; ok {
		*errs = append(*errs, fmt.Sprintf("duplicate id %q (first seen at %s, again at %s)", id, prev, loc))
		return
	}
	ids[id] = loc
}

func validateNodeRefs(refs []NodeRef, parent string, ids map[string]string, errs *[]string) {
	for j, ref := range refs {
		switch {
		case ref.Condition != nil && ref.Rule != nil:
			*errs = append(*errs, fmt.Sprintf("%s.children[%d]: only one of condition/rule may be set", parent, j))
		case ref.Condition == nil && ref.Rule == nil:
			*errs = append(*errs, fmt.Sprintf("%s.children[%d]: one of condition/rule must be set", parent, j))
		case ref.Condition != nil:
			c := ref.Condition
			if c.ID == "" {
				*errs = append(*errs, fmt.Sprintf("%s.children[%d].condition: id is required", parent, j))
				continue
			}
			loc := fmt.Sprintf("condition %s", c.ID)
			claim(ids, c.ID, loc, errs)
			if c.Expression == "" {
				*errs = append(*errs, fmt.Sprintf("condition %s: expression is required", c.ID))
			}
			validateNodeRefs(c.Children, loc, ids, errs)
		case ref.Rule != nil:
			r := ref.Rule
			if r.ID == "" {
				*errs = append(*errs, fmt.Sprintf("%s.children[%d].rule: id is required", parent, j))
				continue
			}
			claim(ids, r.ID, fmt.Sprintf("rule %s", r.ID), errs)
			if len(r.Roles) == 0 && len(r.Subjects) == 0 {
				*errs = append(*errs, fmt.Sprintf("rule %s: roles or subjects are required", r.ID))
			}
			for _, role := range r.Roles {
				if !user.Role(role).Valid() {
					*errs = append(*errs, fmt.Sprintf("rule %s: unknown role %q", r.ID, role))
				}
			}
			for _, s := range r.Subjects {
				if s != SubjectInitiator && s != SubjectInitiatorManager {
					*errs = append(*errs, fmt.Sprintf("rule %s: unknown subject %q", r.ID, s))
				}
			}
		}
	}
}
