package condition

import (
	"regexp"
	"strconv"
	"strings"
)

// Parse compiles an expression. Grammar, loosest binding first:
//
//	expr       = and { ("OR" | "||") and }
//	and        = unary { ("AND" | "&&") unary }
//	unary      = "NOT" unary | "(" expr ")" | comparison
//	comparison = operand op operand
//	op         = "==" | "!=" | ">" | ">=" | "<" | "<=" | "contains" | "matches" | "in" | "not in"
//
// Keywords are case-insensitive.
func Parse(src string) (Expr, error) {
	toks, err := scan(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tEOF {
		return nil, syntaxErr(t.off, "unexpected %q after expression", t.text)
	}
	return e, nil
}

type parser struct {
	toks []tok
	i    int
}

func (p *parser) peek() tok { return p.toks[p.i] }

func (p *parser) take() tok {
	t := p.toks[p.i]
	if t.kind != tEOF {
		p.i++
	}
	return t
}

func (p *parser) expr() (Expr, error) {
	return p.chain(false, "OR", "||", p.and)
}

func (p *parser) and() (Expr, error) {
	return p.chain(true, "AND", "&&", p.unary)
}

// chain parses operands joined by one logical operator into a flat node.
func (p *parser) chain(and bool, word, sym string, sub func() (Expr, error)) (Expr, error) {
	first, err := sub()
	if err != nil {
		return nil, err
	}
	terms := []Expr{first}
	for p.peek().keyword(word) || p.peek().is(tOp, sym) {
		p.take()
		next, err := sub()
		if err != nil {
			return nil, err
		}
		terms = append(terms, next)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &logical{and: and, terms: terms}, nil
}

func (p *parser) unary() (Expr, error) {
	t := p.peek()
	switch {
	case t.keyword("NOT"):
		p.take()
		inner, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &negation{inner: inner}, nil
	case t.is(tPunct, "("):
		p.take()
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if c := p.take(); !c.is(tPunct, ")") {
			return nil, syntaxErr(c.off, "expected \")\", got %q", c.text)
		}
		return inner, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (Expr, error) {
	left, err := p.operand()
	if err != nil {
		return nil, err
	}

	at := p.peek()
	negate := false
	var op Operator
	switch {
	case at.kind == tOp && isComparison(at.text):
		op = Operator(at.text)
	case at.keyword("contains"):
		op = OpContains
	case at.keyword("matches"):
		op = OpMatches
	case at.keyword("in"):
		op = OpIn
	case at.keyword("not") && p.toks[p.i+1].keyword("in"):
		p.take()
		op, negate = OpIn, true
	default:
		return nil, syntaxErr(at.off, "expected comparison operator, got %q", at.text)
	}
	p.take()

	right, err := p.operand()
	if err != nil {
		return nil, err
	}
	c := &comparison{left: left, op: op, right: right}
	if err := c.check(at.off); err != nil {
		return nil, err
	}
	if negate {
		return &negation{inner: c}, nil
	}
	return c, nil
}

// check rejects literal operands the operator can never accept and
// precompiles literal regex patterns.
func (c *comparison) check(off int) error {
	lit, ok := c.right.(literal)
	if !ok {
		return nil
	}
	switch c.op {
	case OpMatches:
		pattern, ok := lit.v.(string)
		if !ok {
			return syntaxErr(off, "matches needs a string pattern")
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return syntaxErr(off, "bad pattern %q: %v", pattern, err)
		}
		c.re = re
	case OpIn:
		if _, ok := lit.v.([]any); !ok {
			return syntaxErr(off, "in needs a list")
		}
	case OpGt, OpGte, OpLt, OpLte:
		if _, ok := lit.v.(float64); !ok {
			return syntaxErr(off, "%s needs a number", c.op)
		}
	}
	return nil
}

func (p *parser) operand() (operand, error) {
	t := p.peek()
	switch {
	case t.kind == tIdent && !t.keyword("true") && !t.keyword("false"):
		p.take()
		return field(strings.Split(t.text, ".")), nil
	case t.is(tPunct, "["):
		p.take()
		items := []any{}
		for !p.peek().is(tPunct, "]") {
			v, err := p.scalar()
			if err != nil {
				return nil, err
			}
			items = append(items, v)
			if !p.peek().is(tPunct, ",") {
				break
			}
			p.take()
		}
		if c := p.take(); !c.is(tPunct, "]") {
			return nil, syntaxErr(c.off, "expected \"]\", got %q", c.text)
		}
		return literal{items}, nil
	}
	v, err := p.scalar()
	if err != nil {
		return nil, err
	}
	return literal{v}, nil
}

func (p *parser) scalar() (any, error) {
	t := p.take()
	switch {
	case t.kind == tString:
		return t.text, nil
	case t.kind == tNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, syntaxErr(t.off, "bad number %q", t.text)
		}
		return f, nil
	case t.keyword("true"):
		return true, nil
	case t.keyword("false"):
		return false, nil
	}
	if t.kind == tEOF {
		return nil, syntaxErr(t.off, "unexpected end of expression")
	}
	return nil, syntaxErr(t.off, "expected a value, got %q", t.text)
}
