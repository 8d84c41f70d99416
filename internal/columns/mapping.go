package columns

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Role is the meaning of a column in an import file.
type Role string

const (
	RoleDate            Role = "date"
	RoleDescription     Role = "description"
	RoleAmount          Role = "amount"
	RoleSourceCategory  Role = "source_category"
	RoleDebit           Role = "debit"
	RoleCredit          Role = "credit"
	RoleTransactionType Role = "transaction_type"
	RoleNotes           Role = "notes"
	RoleTags            Role = "tags"
)

// Roles lists every role in detection order.
var Roles = []Role{
	RoleDate,
	RoleDescription,
	RoleAmount,
	RoleSourceCategory,
	RoleDebit,
	RoleCredit,
	RoleTransactionType,
	RoleNotes,
	RoleTags,
}

var (
	ErrUnknownRole      = errors.New("unknown column role")
	ErrMissingRole      = errors.New("required column role is not mapped")
	ErrColumnOutOfRange = errors.New("column index out of range")
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return slices.Contains(Roles, r)
}

// Mapping assigns roles to column indexes. It is kept bidirectional so that a column never holds
// two roles and a role never points at two columns. The zero value is an empty mapping.
type Mapping struct {
	byRole   map[Role]int
	byColumn map[int]Role
}

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{
		byRole:   make(map[Role]int),
		byColumn: make(map[int]Role),
	}
}

// FromIndexes builds a mapping from a role → column table, rejecting unknown roles, negative
// indexes and columns used by more than one role.
func FromIndexes(indexes map[Role]int) (*Mapping, error) {
	m := NewMapping()

	for _, role := range Roles {
		col, ok := indexes[role]
		if !ok {
			continue
		}

		if col < 0 {
			return nil, fmt.Errorf("role %q: %w", role, ErrColumnOutOfRange)
		}

		if other, taken := m.byColumn[col]; taken {
			return nil, fmt.Errorf("column %d assigned to both %q and %q", col, other, role)
		}

		m.Reassign(col, role)
	}

	for role := range indexes {
		if !role.Valid() {
			return nil, fmt.Errorf("%q: %w", role, ErrUnknownRole)
		}
	}

	return m, nil
}

func (m *Mapping) init() {
	if m.byRole == nil {
		m.byRole = make(map[Role]int)
		m.byColumn = make(map[int]Role)
	}
}

// Column returns the column mapped to role.
func (m *Mapping) Column(role Role) (int, bool) {
	col, ok := m.byRole[role]
	return col, ok
}

// Role returns the role held by column col.
func (m *Mapping) Role(col int) (Role, bool) {
	role, ok := m.byColumn[col]
	return role, ok
}

// Has reports whether role is mapped.
func (m *Mapping) Has(role Role) bool {
	_, ok := m.byRole[role]
	return ok
}

// Reassign gives column col the role. The column's previous role is cleared and so is any other
// column currently holding role.
func (m *Mapping) Reassign(col int, role Role) {
	m.init()

	if prev, ok := m.byColumn[col]; ok {
		delete(m.byRole, prev)
	}

	if prevCol, ok := m.byRole[role]; ok {
		delete(m.byColumn, prevCol)
	}

	m.byRole[role] = col
	m.byColumn[col] = role
}

// Unassign clears whatever role column col holds.
func (m *Mapping) Unassign(col int) {
	if role, ok := m.byColumn[col]; ok {
		delete(m.byRole, role)
		delete(m.byColumn, col)
	}
}

// Clear unmaps role.
func (m *Mapping) Clear(role Role) {
	if col, ok := m.byRole[role]; ok {
		delete(m.byColumn, col)
		delete(m.byRole, role)
	}
}

// Indexes returns a copy of the role → column table.
func (m *Mapping) Indexes() map[Role]int {
	out := make(map[Role]int, len(m.byRole))
	for role, col := range m.byRole {
		out[role] = col
	}

	return out
}

// Clone returns an independent copy.
func (m *Mapping) Clone() *Mapping {
	c := NewMapping()
	for role, col := range m.byRole {
		c.Reassign(col, role)
	}

	return c
}

// Validate checks the mapping is usable for a file with width columns: date and description must
// be mapped, plus an amount or at least one of debit/credit.
func (m *Mapping) Validate(width int) error {
	for _, role := range []Role{RoleDate, RoleDescription} {
		if !m.Has(role) {
			return fmt.Errorf("%q: %w", role, ErrMissingRole)
		}
	}

	if !m.Has(RoleAmount) && !m.Has(RoleDebit) && !m.Has(RoleCredit) {
		return fmt.Errorf("%q (or debit/credit): %w", RoleAmount, ErrMissingRole)
	}

	for role, col := range m.byRole {
		if col < 0 || col >= width {
			return fmt.Errorf("role %q column %d of %d: %w", role, col, width, ErrColumnOutOfRange)
		}
	}

	return nil
}

func (m *Mapping) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Indexes())
}

func (m *Mapping) UnmarshalJSON(data []byte) error {
	var indexes map[Role]int
	if err := json.Unmarshal(data, &indexes); err != nil {
		return err
	}

	parsed, err := FromIndexes(indexes)
	if err != nil {
		return err
	}

	*m = *parsed

	return nil
}
