// Package profile holds per-source import settings: the date format that resolves ambiguous
// dates, number style, sign labels and extra header names.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrJamesThe3rd/tally/internal/columns"
	"github.com/MrJamesThe3rd/tally/internal/normalize"
)

var ErrInvalidProfile = errors.New("invalid import profile")

type Profile struct {
	Name string `yaml:"name" json:"name"`
	// SourceID links the profile to a source so imports for it pick the profile up implicitly.
	SourceID int64 `yaml:"source_id" json:"source_id,omitempty"`
	// DateFormat is either a token pattern such as DD/MM/YYYY or a Go layout.
	DateFormat   string                    `yaml:"date_format" json:"date_format,omitempty"`
	DecimalComma bool                      `yaml:"decimal_comma" json:"decimal_comma"`
	Delimiter    string                    `yaml:"delimiter" json:"delimiter,omitempty"`
	DebitLabels  []string                  `yaml:"debit_labels" json:"debit_labels,omitempty"`
	CreditLabels []string                  `yaml:"credit_labels" json:"credit_labels,omitempty"`
	Headers      map[columns.Role][]string `yaml:"headers" json:"headers,omitempty"`
}

func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("missing name: %w", ErrInvalidProfile)
	}

	if _, err := p.Layout(); err != nil {
		return err
	}

	if _, err := p.DelimiterRune(); err != nil {
		return err
	}

	for role := range p.Headers {
		if !role.Valid() {
			return fmt.Errorf("profile %q header role %q: %w", p.Name, role, ErrInvalidProfile)
		}
	}

	return nil
}

// Layout returns the Go time layout for DateFormat, or "" when the profile declares none.
func (p Profile) Layout() (string, error) {
	if strings.TrimSpace(p.DateFormat) == "" {
		return "", nil
	}

	layout := ToLayout(p.DateFormat)

	ref := time.Date(2006, time.January, 2, 0, 0, 0, 0, time.UTC)

	back, err := time.Parse(layout, ref.Format(layout))
	if err != nil || !back.Equal(ref) {
		return "", fmt.Errorf("profile %q date format %q must name a day, month and year: %w", p.Name, p.DateFormat, ErrInvalidProfile)
	}

	return layout, nil
}

// DelimiterRune returns the CSV delimiter, or 0 to let the reader sniff it.
func (p Profile) DelimiterRune() (rune, error) {
	switch p.Delimiter {
	case "":
		return 0, nil
	case `\t`, "tab":
		return '\t', nil
	}

	if utf8.RuneCountInString(p.Delimiter) != 1 {
		return 0, fmt.Errorf("profile %q delimiter %q must be one character: %w", p.Name, p.Delimiter, ErrInvalidProfile)
	}

	r, _ := utf8.DecodeRuneInString(p.Delimiter)

	return r, nil
}

// Signs is the transaction-type policy. Without labels the default policy applies.
func (p Profile) Signs() normalize.SignPolicy {
	if len(p.DebitLabels) == 0 && len(p.CreditLabels) == 0 {
		return normalize.DefaultSignPolicy()
	}

	return normalize.SignPolicy{Debit: p.DebitLabels, Credit: p.CreditLabels}
}

func (p Profile) NormalizeOptions() (normalize.Options, error) {
	layout, err := p.Layout()
	if err != nil {
		return normalize.Options{}, err
	}

	return normalize.Options{
		DateLayout:   layout,
		DecimalComma: p.DecimalComma,
		Signs:        p.Signs(),
	}, nil
}

// Table is the detection table for this source: its own header names first, then the defaults.
func (p Profile) Table() columns.Table {
	if len(p.Headers) == 0 {
		return columns.DefaultTable
	}

	return columns.DefaultTable.Extend(p.Headers)
}

// dateTokens are tried longest first at each position.
var dateTokens = []struct{ token, layout string }{
	{"YYYY", "2006"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"YY", "06"},
	{"MM", "01"},
	{"DD", "02"},
	{"M", "1"},
	{"D", "2"},
}

// ToLayout converts a token pattern like DD/MM/YYYY into a Go layout. A format without a YY or
// YYYY token is taken to be a Go layout already and returned unchanged.
func ToLayout(format string) string {
	if !strings.Contains(format, "YY") {
		return format
	}

	var b strings.Builder

	for i := 0; i < len(format); {
		matched := false

		for _, t := range dateTokens {
			if strings.HasPrefix(format[i:], t.token) {
				b.WriteString(t.layout)
				i += len(t.token)
				matched = true

				break
			}
		}

		if !matched {
			b.WriteByte(format[i])
			i++
		}
	}

	return b.String()
}
