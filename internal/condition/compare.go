package condition

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
)

// Operator is a comparison operator.
type Operator string

const (
	OpEq       Operator = "=="
	OpNeq      Operator = "!="
	OpGt       Operator = ">"
	OpGte      Operator = ">="
	OpLt       Operator = "<"
	OpLte      Operator = "<="
	OpContains Operator = "contains"
	OpMatches  Operator = "matches"
	OpIn       Operator = "in"
)

func isComparison(s string) bool {
	switch Operator(s) {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
		return true
	}
	return false
}

func (op Operator) apply(left, right any, re *regexp.Regexp) (bool, error) {
	switch op {
	case OpEq:
		return same(left, right), nil
	case OpNeq:
		return !same(left, right), nil
	case OpGt, OpGte, OpLt, OpLte:
		l, lok := number(left)
		r, rok := number(right)
		if !lok || !rok {
			return false, fmt.Errorf("%s: cannot order %T against %T", op, left, right)
		}
		switch op {
		case OpGt:
			return l > r, nil
		case OpGte:
			return l >= r, nil
		case OpLt:
			return l < r, nil
		}
		return l <= r, nil
	case OpContains:
		return contains(left, right)
	case OpIn:
		list, ok := asList(right)
		if !ok {
			return false, fmt.Errorf("in: right side is %T, not a list", right)
		}
		return slices.ContainsFunc(list, func(item any) bool { return same(left, item) }), nil
	case OpMatches:
		s, ok := left.(string)
		if !ok {
			return false, fmt.Errorf("matches: left side is %T, not a string", left)
		}
		if re == nil {
			pattern, ok := right.(string)
			if !ok {
				return false, fmt.Errorf("matches: pattern is %T, not a string", right)
			}
			var err error
			if re, err = regexp.Compile(pattern); err != nil {
				return false, fmt.Errorf("matches: bad pattern %q: %w", pattern, err)
			}
		}
		return re.MatchString(s), nil
	}
	return false, fmt.Errorf("unsupported operator %q", op)
}

// number accepts the numeric shapes alert payloads arrive in: float64 from
// JSON, json.Number from a UseNumber decoder, and Go integers from code.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// same is loose equality: numbers by value, bools only against bools and
// anything else by its printed form.
func same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && math.Abs(x-y) < 1e-9
	}
	if x, ok := a.(bool); ok {
		y, ok := b.(bool)
		return ok && x == y
	}
	if _, ok := b.(bool); ok {
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func contains(haystack, needle any) (bool, error) {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, fmt.Sprint(needle)), nil
	case map[string]any:
		_, ok := h[fmt.Sprint(needle)]
		return ok, nil
	}
	if list, ok := asList(haystack); ok {
		return slices.ContainsFunc(list, func(item any) bool { return same(item, needle) }), nil
	}
	return false, fmt.Errorf("contains: left side is %T, not a string, list or map", haystack)
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}
