package normalize

import (
	"slices"
	"strings"
)

// SignPolicy maps transaction-type labels to the sign of the amount.
type SignPolicy struct {
	Debit  []string
	Credit []string
}

// DefaultSignPolicy treats debit-like labels as outflows and credit-like labels as inflows.
func DefaultSignPolicy() SignPolicy {
	return SignPolicy{
		Debit:  []string{"debit", "dr", "d", "withdrawal"},
		Credit: []string{"credit", "cr", "c", "deposit"},
	}
}

func (p SignPolicy) empty() bool {
	return len(p.Debit) == 0 && len(p.Credit) == 0
}

// Sign returns -1 for a debit label, +1 for a credit label and 0 for an empty label.
// ok is false for a label the policy does not know.
func (p SignPolicy) Sign(label string) (sign int, ok bool) {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return 0, true
	}

	match := func(s string) bool { return strings.EqualFold(strings.TrimSpace(s), label) }

	if slices.ContainsFunc(p.Debit, match) {
		return -1, true
	}

	if slices.ContainsFunc(p.Credit, match) {
		return 1, true
	}

	return 0, false
}
