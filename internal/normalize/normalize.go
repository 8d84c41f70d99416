// Package normalize turns raw spreadsheet rows into NormalizedTransaction values using a column
// mapping.
package normalize

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/tally/internal/columns"
	"github.com/MrJamesThe3rd/tally/internal/tags"
	"github.com/MrJamesThe3rd/tally/internal/transaction"
)

// isoLayouts are the only layouts accepted when a source declares no date format. They are the
// forms that cannot be read two ways.
var isoLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	time.DateTime,
	"2006-01-02T15:04:05",
}

type Options struct {
	// DateLayout is a Go time layout. Empty means ISO dates only.
	DateLayout   string
	DecimalComma bool
	Signs        SignPolicy
}

type Normalizer struct {
	mapping *columns.Mapping
	opts    Options
}

func New(mapping *columns.Mapping, opts Options) *Normalizer {
	if mapping == nil {
		mapping = columns.NewMapping()
	}

	if opts.Signs.empty() {
		opts.Signs = DefaultSignPolicy()
	}

	return &Normalizer{mapping: mapping, opts: opts}
}

// Row normalizes one data row. Failures are *transaction.ValidationError.
func (n *Normalizer) Row(sourceID int64, cells []string) (transaction.NormalizedTransaction, error) {
	tx := transaction.NormalizedTransaction{SourceID: sourceID}

	if !n.mapping.Has(columns.RoleDate) {
		return tx, unmapped(columns.RoleDate)
	}

	date, err := ParseDate(n.cell(cells, columns.RoleDate), n.opts.DateLayout)
	if err != nil {
		return tx, err
	}

	tx.Date = date

	if !n.mapping.Has(columns.RoleDescription) {
		return tx, unmapped(columns.RoleDescription)
	}

	tx.Description = n.cell(cells, columns.RoleDescription)
	if tx.Description == "" {
		return tx, &transaction.ValidationError{Field: "description", Reason: "must not be empty"}
	}

	amount, err := n.amount(cells)
	if err != nil {
		return tx, err
	}

	tx.Amount = amount
	tx.SourceCategory = optional(n.cell(cells, columns.RoleSourceCategory))
	tx.Notes = optional(n.cell(cells, columns.RoleNotes))
	tx.Tags = tags.Serialize(n.cell(cells, columns.RoleTags))

	if err := tx.Validate(); err != nil {
		return tx, err
	}

	tx.Hash = tx.Fingerprint()

	return tx, nil
}

// amount resolves the signed amount from a single amount column (optionally signed by a type
// column) or from a debit/credit pair.
func (n *Normalizer) amount(cells []string) (decimal.Decimal, error) {
	if n.mapping.Has(columns.RoleAmount) {
		raw := n.cell(cells, columns.RoleAmount)

		d, err := n.parseAmount("amount", raw)
		if err != nil {
			return decimal.Decimal{}, err
		}

		if !n.mapping.Has(columns.RoleTransactionType) {
			return d, nil
		}

		label := n.cell(cells, columns.RoleTransactionType)

		sign, ok := n.opts.Signs.Sign(label)
		if !ok {
			return decimal.Decimal{}, &transaction.ValidationError{
				Field:  string(columns.RoleTransactionType),
				Value:  label,
				Reason: "is neither a debit nor a credit label",
			}
		}

		switch sign {
		case -1:
			return d.Abs().Neg(), nil
		case 1:
			return d.Abs(), nil
		}

		return d, nil
	}

	if !n.mapping.Has(columns.RoleDebit) && !n.mapping.Has(columns.RoleCredit) {
		return decimal.Decimal{}, unmapped(columns.RoleAmount)
	}

	debitSeen := false

	if raw := n.cell(cells, columns.RoleDebit); raw != "" {
		d, err := n.parseAmount(string(columns.RoleDebit), raw)
		if err != nil {
			return decimal.Decimal{}, err
		}

		if !d.IsZero() {
			return d.Abs().Neg(), nil
		}

		debitSeen = true
	}

	if raw := n.cell(cells, columns.RoleCredit); raw != "" {
		d, err := n.parseAmount(string(columns.RoleCredit), raw)
		if err != nil {
			return decimal.Decimal{}, err
		}

		return d.Abs(), nil
	}

	if debitSeen {
		return decimal.Zero, nil
	}

	return decimal.Decimal{}, &transaction.ValidationError{Field: "amount", Reason: "debit and credit are both empty"}
}

func (n *Normalizer) parseAmount(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Decimal{}, &transaction.ValidationError{Field: field, Reason: "must not be empty"}
	}

	d, err := ParseAmount(raw, n.opts.DecimalComma)
	if err != nil {
		return decimal.Decimal{}, &transaction.ValidationError{Field: field, Value: raw, Reason: "is not a number"}
	}

	return d, nil
}

// ParseDate formats a date cell as YYYY-MM-DD, discarding any time of day. With an empty layout
// only ISO forms are accepted.
func ParseDate(raw, layout string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &transaction.ValidationError{Field: "date", Reason: "must not be empty"}
	}

	if layout != "" {
		t, err := time.Parse(layout, raw)
		if err != nil {
			return "", &transaction.ValidationError{Field: "date", Value: raw, Reason: "does not match format " + layout}
		}

		return t.Format(time.DateOnly), nil
	}

	for _, l := range isoLayouts {
		if t, err := time.Parse(l, raw); err == nil {
			return t.Format(time.DateOnly), nil
		}
	}

	return "", &transaction.ValidationError{
		Field:  "date",
		Value:  raw,
		Reason: "is not an ISO date; set a date format for this source",
	}
}

func (n *Normalizer) cell(cells []string, role columns.Role) string {
	idx, ok := n.mapping.Column(role)
	if !ok || idx < 0 || idx >= len(cells) {
		return ""
	}

	return strings.TrimSpace(cells[idx])
}

func unmapped(role columns.Role) error {
	return &transaction.ValidationError{Field: string(role), Reason: "column is not mapped"}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
