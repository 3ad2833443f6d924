// Package condition implements the boolean expression language used by
// routing rules, e.g.
//
//	alert.type == "business.high_value_sale" AND payload.is_record_high == true
//	alert.severity in ["HIGH", "CRITICAL"]
//	payload.reason not in ["duplicate", "test"]
//
// Expressions are parsed once when the routing table is built and then
// evaluated against each alert.
package condition

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnknownField is returned when an expression references a path the
// context cannot resolve.
var ErrUnknownField = errors.New("unknown field")

// Expr is a parsed condition.
type Expr interface {
	fmt.Stringer
	eval(ctx EvalContext) (bool, error)
}

// Evaluate reports whether expr holds for ctx. AND and OR short-circuit, so
// a missing field on the untaken side is not an error.
func Evaluate(expr Expr, ctx EvalContext) (bool, error) {
	if expr == nil {
		return false, errors.New("nil expression")
	}
	return expr.eval(ctx)
}

// logical is an n-ary AND or OR.
type logical struct {
	and   bool
	terms []Expr
}

func (l *logical) eval(ctx EvalContext) (bool, error) {
	for _, t := range l.terms {
		ok, err := t.eval(ctx)
		if err != nil {
			return false, err
		}
		if ok != l.and {
			return ok, nil
		}
	}
	return l.and, nil
}

func (l *logical) String() string {
	sep := " OR "
	if l.and {
		sep = " AND "
	}
	parts := make([]string, len(l.terms))
	for i, t := range l.terms {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

type negation struct {
	inner Expr
}

func (n *negation) eval(ctx EvalContext) (bool, error) {
	ok, err := n.inner.eval(ctx)
	return !ok && err == nil, err
}

func (n *negation) String() string { return "NOT " + n.inner.String() }

type comparison struct {
	left  operand
	op    Operator
	right operand
	re    *regexp.Regexp // precompiled when right is a literal pattern
}

func (c *comparison) eval(ctx EvalContext) (bool, error) {
	lv, err := c.left.value(ctx)
	if err != nil {
		return false, err
	}
	rv, err := c.right.value(ctx)
	if err != nil {
		return false, err
	}
	return c.op.apply(lv, rv, c.re)
}

func (c *comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.left, c.op, c.right)
}

type operand interface {
	fmt.Stringer
	value(ctx EvalContext) (any, error)
}

// field is a dotted path such as payload.amount.
type field []string

func (f field) value(ctx EvalContext) (any, error) {
	v, ok := ctx.Resolve(f)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownField, f.String())
	}
	return v, nil
}

func (f field) String() string { return strings.Join(f, ".") }

// literal holds a string, float64, bool or []any.
type literal struct {
	v any
}

func (l literal) value(EvalContext) (any, error) { return l.v, nil }

func (l literal) String() string {
	switch v := l.v.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = literal{item}.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(v)
	}
}
