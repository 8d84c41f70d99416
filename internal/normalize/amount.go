package normalize

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	errNoDigits   = errors.New("no digits")
	errNotNumber  = errors.New("not a number")
	errDoubleSign = errors.New("more than one sign")
)

// ParseAmount turns a spreadsheet amount cell into a decimal. It accepts currency symbols and
// ISO 4217 codes around the number, thousands separators (including space-separated groups of
// three), one leading or trailing sign and accounting parentheses. Anything else in the cell is
// an error.
//
// When both '.' and ',' appear, whichever comes last is the decimal separator. With a single kind
// of separator, decimalComma decides: "1.234,56" and "-588,74" need decimalComma for files that
// never write thousands.
func ParseAmount(s string, decimalComma bool) (decimal.Decimal, error) {
	s = trimCurrency(s)

	signs := 0
	negative := false

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		signs++
		negative = true
		s = trimCurrency(s[1 : len(s)-1])
	}

	if s != "" && (s[0] == '-' || s[0] == '+') {
		signs++
		negative = negative || s[0] == '-'
		s = trimCurrency(s[1:])
	}

	if strings.HasSuffix(s, "-") {
		signs++
		negative = true
		s = trimCurrency(strings.TrimSuffix(s, "-"))
	}

	if signs > 1 {
		return decimal.Decimal{}, errDoubleSign
	}

	clean, err := numberBody(s)
	if err != nil {
		return decimal.Decimal{}, err
	}

	dot := strings.LastIndex(clean, ".")
	comma := strings.LastIndex(clean, ",")

	switch {
	case dot >= 0 && comma >= 0:
		decimalComma = comma > dot
	case comma >= 0 && !decimalComma && strings.Count(clean, ",") == 1 && len(clean)-comma-1 != 3:
		// "12,5" or "3,75" cannot be a thousands group.
		decimalComma = true
	}

	if decimalComma {
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.ReplaceAll(clean, ",", ".")
	} else {
		clean = strings.ReplaceAll(clean, ",", "")
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Decimal{}, errNotNumber
	}

	if negative {
		d = d.Neg()
	}

	return d, nil
}

// trimCurrency strips whitespace, currency symbols and a leading or trailing ISO code.
func trimCurrency(s string) string {
	for {
		before := s

		s = strings.TrimFunc(s, func(r rune) bool {
			return unicode.IsSpace(r) || unicode.Is(unicode.Sc, r)
		})

		if len(s) > 3 && isCurrencyCode(s[:3]) {
			if r, _ := utf8.DecodeRuneInString(s[3:]); unicode.IsSpace(r) {
				s = s[3:]
			}
		}

		if len(s) > 3 && isCurrencyCode(s[len(s)-3:]) {
			if r, _ := utf8.DecodeLastRuneInString(s[:len(s)-3]); unicode.IsSpace(r) {
				s = s[:len(s)-3]
			}
		}

		if s == before {
			return s
		}
	}
}

func isCurrencyCode(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}

	_, err := currency.ParseISO(s)

	return err == nil
}

// numberBody checks that s holds only ASCII digits and separators and folds space-separated
// thousands groups.
func numberBody(s string) (string, error) {
	groups := strings.FieldsFunc(s, unicode.IsSpace)
	if len(groups) == 0 {
		return "", errNoDigits
	}

	digits := 0

	for i, g := range groups {
		for _, r := range g {
			switch {
			case r >= '0' && r <= '9':
				digits++
			case r == '.' || r == ',':
			default:
				return "", errNotNumber
			}
		}

		if len(groups) == 1 {
			continue
		}

		lead := strings.IndexAny(g, ".,")
		if lead < 0 {
			lead = len(g)
		}

		switch {
		case i == 0 && (lead == 0 || lead > 3 || lead != len(g)):
			return "", errNotNumber
		case i > 0 && lead != 3:
			return "", errNotNumber
		case i > 0 && i < len(groups)-1 && lead != len(g):
			return "", errNotNumber
		}
	}

	if digits == 0 {
		return "", errNoDigits
	}

	return strings.Join(groups, ""), nil
}
