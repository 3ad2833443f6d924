package condition

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SyntaxError reports a malformed expression.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Offset, e.Msg)
}

func syntaxErr(off int, format string, args ...any) error {
	return &SyntaxError{Offset: off, Msg: fmt.Sprintf(format, args...)}
}

type tokKind uint8

const (
	tEOF tokKind = iota
	tIdent
	tOp
	tString
	tNumber
	tPunct
)

type tok struct {
	kind tokKind
	text string
	off  int
}

func (t tok) is(kind tokKind, text string) bool {
	return t.kind == kind && t.text == text
}

// keyword matches identifiers case-insensitively.
func (t tok) keyword(kw string) bool {
	return t.kind == tIdent && strings.EqualFold(t.text, kw)
}

type scanner struct {
	src string
	off int
}

func scan(src string) ([]tok, error) {
	s := &scanner{src: src}
	var out []tok
	for {
		t, err := s.next()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		if t.kind == tEOF {
			return out, nil
		}
	}
}

func (s *scanner) peekByte(ahead int) byte {
	if s.off+ahead < len(s.src) {
		return s.src[s.off+ahead]
	}
	return 0
}

func (s *scanner) next() (tok, error) {
	for s.off < len(s.src) {
		r, size := utf8.DecodeRuneInString(s.src[s.off:])
		if !unicode.IsSpace(r) {
			break
		}
		s.off += size
	}
	start := s.off
	if start >= len(s.src) {
		return tok{kind: tEOF, off: start}, nil
	}

	c := s.src[start]
	switch {
	case strings.IndexByte("()[],", c) >= 0:
		s.off++
		return tok{kind: tPunct, text: string(c), off: start}, nil
	case c == '&' || c == '|':
		if s.peekByte(1) != c {
			return tok{}, syntaxErr(start, "expected %q", string([]byte{c, c}))
		}
		s.off += 2
		return tok{kind: tOp, text: s.src[start:s.off], off: start}, nil
	case strings.IndexByte("=!<>", c) >= 0:
		if s.peekByte(1) == '=' {
			s.off += 2
		} else if c == '<' || c == '>' {
			s.off++
		} else {
			return tok{}, syntaxErr(start, "unexpected %q", c)
		}
		return tok{kind: tOp, text: s.src[start:s.off], off: start}, nil
	case c == '"' || c == '\'':
		return s.quoted(c)
	case isDigit(c) || (c == '-' && isDigit(s.peekByte(1))):
		s.off++
		for s.off < len(s.src) && (isDigit(s.src[s.off]) || s.src[s.off] == '.') {
			s.off++
		}
		return tok{kind: tNumber, text: s.src[start:s.off], off: start}, nil
	}

	r, _ := utf8.DecodeRuneInString(s.src[start:])
	if !isIdentStart(r) {
		return tok{}, syntaxErr(start, "unexpected %q", r)
	}
	for s.off < len(s.src) {
		r, size := utf8.DecodeRuneInString(s.src[s.off:])
		if !isIdentStart(r) && !unicode.IsDigit(r) && r != '.' {
			break
		}
		s.off += size
	}
	return tok{kind: tIdent, text: s.src[start:s.off], off: start}, nil
}

// quoted reads a string literal. A backslash takes the next byte verbatim.
func (s *scanner) quoted(q byte) (tok, error) {
	start := s.off
	var b strings.Builder
	for i := start + 1; i < len(s.src); i++ {
		switch c := s.src[i]; {
		case c == q:
			s.off = i + 1
			return tok{kind: tString, text: b.String(), off: start}, nil
		case c == '\\' && i+1 < len(s.src):
			i++
			b.WriteByte(s.src[i])
		default:
			b.WriteByte(c)
		}
	}
	return tok{}, syntaxErr(start, "unterminated string")
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }
