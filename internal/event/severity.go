package event

import (
	"fmt"
	"strings"
)

// Severity is the alert tier. It drives queue, retry and email policy.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Severities lists every tier from most to least urgent.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// ParseSeverity accepts any casing of the four tier names.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// Valid reports whether s is one of the four tiers.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Rank orders tiers: CRITICAL=4 … LOW=1, unknown=0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// AtLeast reports whether s is as urgent as other or more.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// ShouldSendEmail is true only for HIGH and CRITICAL.
func (s Severity) ShouldSendEmail() bool {
	return s.AtLeast(SeverityHigh)
}

func (s Severity) String() string { return string(s) }

// Category groups alerts by the part of the business they concern.
type Category string

const (
	CategorySecurity   Category = "Security"
	CategorySystem     Category = "System"
	CategoryUserAction Category = "UserAction"
	CategoryBusiness   Category = "Business"
)

// Categories lists every category.
var Categories = []Category{CategorySecurity, CategorySystem, CategoryUserAction, CategoryBusiness}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategorySecurity, CategorySystem, CategoryUserAction, CategoryBusiness:
		return true
	}
	return false
}

func (c Category) String() string { return string(c) }
