package event

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation wraps every construction-time field problem.
	ErrValidation = errors.New("invalid alert")
	// ErrUnknownType is returned when decoding an unregistered alert type.
	ErrUnknownType = errors.New("unknown alert type")
	// ErrUnclassified means a variant failed to resolve to a severity tier.
	// It is a programming error and is never defaulted.
	ErrUnclassified = errors.New("alert severity could not be classified")
)

// ValidationError lists the field problems found while constructing an alert.
type ValidationError struct {
	Type     string   `json:"type"`
	Problems []string `json:"problems"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Type, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// checker accumulates field problems for one alert type.
type checker struct {
	typ      string
	problems []string
}

func newChecker(typ string) *checker { return &checker{typ: typ} }

func (c *checker) fail(field, format string, args ...any) {
	c.problems = append(c.problems, field+": "+fmt.Sprintf(format, args...))
}

func (c *checker) required(field, v string) {
	if strings.TrimSpace(v) == "" {
		c.fail(field, "is required")
	}
}

func (c *checker) email(field, v string) {
	if strings.TrimSpace(v) == "" {
		c.fail(field, "is required")
		return
	}
	if !strings.Contains(v, "@") {
		c.fail(field, "must be an email address")
	}
}

func (c *checker) nonNegative(field string, v float64) {
	if v < 0 {
		c.fail(field, "must be >= 0")
	}
}

func (c *checker) positive(field string, v float64) {
	if v <= 0 {
		c.fail(field, "must be > 0")
	}
}

func (c *checker) user(field string, id string) {
	if strings.TrimSpace(id) == "" {
		c.fail(field+".id", "is required")
	}
}

func (c *checker) err() error {
	if len(c.problems) == 0 {
		return nil
	}
	return &ValidationError{Type: c.typ, Problems: c.problems}
}
