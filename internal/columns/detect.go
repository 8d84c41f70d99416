package columns

import "strings"

// Synonyms is the ordered list of accepted header names for one role.
type Synonyms struct {
	Role  Role
	Names []string
}

// Table is the priority-ordered synonym table used by detection. Role order and the order of
// names within a role both matter: earlier entries win.
type Table []Synonyms

// DefaultTable lists the synonyms every source understands. Under source_category "category" is
// listed before "type" so a file carrying both picks the Category column.
var DefaultTable = Table{
	{Role: RoleDate, Names: []string{"date", "transaction date", "posted date", "posting date", "booking date", "value date", "trans date"}},
	{Role: RoleDescription, Names: []string{"description", "transaction description", "details", "narrative", "memo", "payee", "merchant", "name"}},
	{Role: RoleAmount, Names: []string{"amount", "transaction amount", "value", "sum", "total"}},
	{Role: RoleSourceCategory, Names: []string{"category", "type", "classification", "source category"}},
	{Role: RoleDebit, Names: []string{"debit", "debit amount", "withdrawal", "withdrawals", "money out", "paid out"}},
	{Role: RoleCredit, Names: []string{"credit", "credit amount", "deposit", "deposits", "money in", "paid in"}},
	{Role: RoleTransactionType, Names: []string{"transaction type", "debit/credit", "credit/debit", "dr/cr", "direction"}},
	{Role: RoleNotes, Names: []string{"notes", "note", "comment", "comments"}},
	{Role: RoleTags, Names: []string{"tags", "labels"}},
}

// Extend returns a table where extra names are tried before the names already listed for each
// role. Role order is unchanged.
func (t Table) Extend(extra map[Role][]string) Table {
	out := make(Table, len(t))

	for i, s := range t {
		names := make([]string, 0, len(extra[s.Role])+len(s.Names))
		for _, n := range extra[s.Role] {
			names = append(names, fold(n))
		}

		out[i] = Synonyms{Role: s.Role, Names: append(names, s.Names...)}
	}

	return out
}

// Detect suggests a mapping for headers using DefaultTable.
func Detect(headers []string) *Mapping {
	return DefaultTable.Detect(headers)
}

// Detect walks roles in table order and, for each role, its synonyms in table order; each synonym
// is looked up among the headers by position. The first hit freezes the role. A header already
// claimed by an earlier role is not considered again. Roles without a hit stay unmapped.
func (t Table) Detect(headers []string) *Mapping {
	folded := make([]string, len(headers))
	for i, h := range headers {
		folded[i] = fold(h)
	}

	m := NewMapping()

	for _, s := range t {
	synonyms:
		for _, name := range s.Names {
			for col, h := range folded {
				if h != name {
					continue
				}

				if _, taken := m.Role(col); taken {
					continue
				}

				m.Reassign(col, s.Role)

				break synonyms
			}
		}
	}

	return m
}

// FindHeader returns the index of the header row among records. Exports often start with a
// preamble of account metadata, so the first row from which a usable mapping can be detected wins.
// Without one, the first non-blank row is used. It returns -1 when every row is blank.
func (t Table) FindHeader(records [][]string) int {
	firstNonBlank := -1

	for i, row := range records {
		if blank(row) {
			continue
		}

		if firstNonBlank == -1 {
			firstNonBlank = i
		}

		if t.Detect(row).Validate(len(row)) == nil {
			return i
		}
	}

	return firstNonBlank
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}

	return true
}
