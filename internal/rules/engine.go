package rules

import (
	"cmp"
	"slices"
	"strings"
)

// Candidate holds the fields rules look at.
type Candidate struct {
	Description    string
	SourceCategory string
	Source         string
}

// Suggestion is the outcome of running both rule sets. A nil field means no rule matched.
type Suggestion struct {
	UnitID     *int64 `json:"unit_id"`
	CategoryID *int64 `json:"category_id"`
}

// Snapshot is the rule state one evaluation runs against. Callers fetch it once (typically per
// import batch) and pass it in, so the engine never reads shared state.
type Snapshot struct {
	Units      []Rule
	Categories []Rule
}

// Apply runs unit rules and category rules independently.
func Apply(s Snapshot, c Candidate) Suggestion {
	return Suggestion{
		UnitID:     first(s.Units, c),
		CategoryID: first(s.Categories, c),
	}
}

// ApplyUnit returns the unit suggested for c, if any.
func ApplyUnit(s Snapshot, c Candidate) *int64 {
	return Apply(s, c).UnitID
}

// ApplyCategory returns the category suggested for c, if any.
func ApplyCategory(s Snapshot, c Candidate) *int64 {
	return Apply(s, c).CategoryID
}

// first returns the target of the first active rule, in (priority, id) order, matching c.
func first(rules []Rule, c Candidate) *int64 {
	for _, r := range ordered(rules) {
		if Match(r, c) {
			id := r.TargetID
			return &id
		}
	}

	return nil
}

func ordered(rules []Rule) []Rule {
	active := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			active = append(active, r)
		}
	}

	slices.SortStableFunc(active, func(a, b Rule) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})

	return active
}

// Match reports whether r matches c. Comparisons are case-insensitive. A regex rule that was
// never compiled is compiled here; a broken pattern simply does not match.
func Match(r Rule, c Candidate) bool {
	value := c.field(r.Field)

	switch r.MatchType {
	case MatchContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(r.Pattern))
	case MatchStartsWith:
		return strings.HasPrefix(strings.ToLower(value), strings.ToLower(r.Pattern))
	case MatchExact:
		return strings.EqualFold(value, r.Pattern)
	case MatchRegex:
		re := r.re
		if re == nil {
			var err error
			if re, err = compilePattern(r.Pattern); err != nil {
				return false
			}
		}

		return re.MatchString(value)
	}

	return false
}

func (c Candidate) field(f Field) string {
	switch f {
	case FieldDescription:
		return c.Description
	case FieldSourceCategory:
		return c.SourceCategory
	case FieldSource:
		return c.Source
	}

	return ""
}
