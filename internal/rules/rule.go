package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind selects which target a rule suggests.
type Kind string

const (
	KindUnit     Kind = "unit"
	KindCategory Kind = "category"
)

// Field is the transaction field a rule tests.
type Field string

const (
	FieldDescription    Field = "description"
	FieldSourceCategory Field = "source_category"
	FieldSource         Field = "source"
)

// MatchType is how the pattern is compared to the field.
type MatchType string

const (
	MatchContains   MatchType = "contains"
	MatchStartsWith MatchType = "starts_with"
	MatchExact      MatchType = "exact"
	MatchRegex      MatchType = "regex"
)

var (
	ErrInvalidRule    = errors.New("invalid rule")
	ErrInvalidPattern = errors.New("invalid rule pattern")
)

// Rule suggests TargetID (a unit or a category, depending on Kind) for transactions whose Field
// matches Pattern. Lower Priority values are evaluated first.
type Rule struct {
	ID        int64
	Kind      Kind
	Field     Field
	Pattern   string
	MatchType MatchType
	TargetID  int64
	Priority  int
	Active    bool
	CreatedAt time.Time

	re *regexp.Regexp
}

// Compile validates the rule and prepares regex patterns. It is meant to run when a rule is
// saved so that matching never meets a broken pattern.
func (r *Rule) Compile() error {
	switch r.Kind {
	case KindUnit, KindCategory:
	default:
		return fmt.Errorf("kind %q: %w", r.Kind, ErrInvalidRule)
	}

	switch r.Field {
	case FieldDescription, FieldSourceCategory, FieldSource:
	default:
		return fmt.Errorf("field %q: %w", r.Field, ErrInvalidRule)
	}

	if r.Priority < 0 {
		return fmt.Errorf("priority %d: %w", r.Priority, ErrInvalidRule)
	}

	if r.TargetID <= 0 {
		return fmt.Errorf("target %d: %w", r.TargetID, ErrInvalidRule)
	}

	if strings.TrimSpace(r.Pattern) == "" {
		return fmt.Errorf("empty pattern: %w", ErrInvalidPattern)
	}

	switch r.MatchType {
	case MatchContains, MatchStartsWith, MatchExact:
		r.re = nil
	case MatchRegex:
		re, err := compilePattern(r.Pattern)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPattern, err)
		}

		r.re = re
	default:
		return fmt.Errorf("match type %q: %w", r.MatchType, ErrInvalidRule)
	}

	return nil
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}
