package transaction

import (
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/tally/internal/fingerprint"
	"github.com/MrJamesThe3rd/tally/internal/rules"
)

// MaxDescriptionLength is the longest description accepted, in characters.
const MaxDescriptionLength = 500

// NormalizedTransaction is the canonical shape of an imported row. It is the only input the
// import orchestrator accepts.
type NormalizedTransaction struct {
	SourceID       int64           `json:"source_id"`
	UnitID         *int64          `json:"unit_id,omitempty"`
	Date           string          `json:"date"` // YYYY-MM-DD
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"` // negative = outflow
	SourceCategory *string         `json:"source_category,omitempty"`
	CategoryID     *int64          `json:"category_id,omitempty"`
	Ignore         bool            `json:"ignore"`
	Notes          *string         `json:"notes,omitempty"`
	Tags           string          `json:"tags,omitempty"`
	Hash           string          `json:"hash"`
}

// Fingerprint recomputes the identity hash from the four identity fields.
func (t *NormalizedTransaction) Fingerprint() string {
	return fingerprint.Compute(t.SourceID, t.Date, t.Description, t.Amount)
}

// Candidate is what rules see of the transaction. Source-type rules match the decimal source id.
func (t *NormalizedTransaction) Candidate() rules.Candidate {
	c := rules.Candidate{Description: t.Description, Source: strconv.FormatInt(t.SourceID, 10)}
	if t.SourceCategory != nil {
		c.SourceCategory = *t.SourceCategory
	}

	return c
}

// Validate checks the record invariants that do not depend on storage.
func (t *NormalizedTransaction) Validate() error {
	if t.SourceID <= 0 {
		return &ValidationError{Field: "source_id", Reason: "must be a positive reference"}
	}

	if _, err := time.Parse(time.DateOnly, t.Date); err != nil {
		return &ValidationError{Field: "date", Value: t.Date, Reason: "must be YYYY-MM-DD"}
	}

	if t.Description == "" {
		return &ValidationError{Field: "description", Reason: "must not be empty"}
	}

	if n := utf8.RuneCountInString(t.Description); n > MaxDescriptionLength {
		return &ValidationError{
			Field:  "description",
			Reason: fmt.Sprintf("is %d characters, limit is %d", n, MaxDescriptionLength),
		}
	}

	if t.UnitID != nil && *t.UnitID <= 0 {
		return &ValidationError{Field: "unit_id", Reason: "must be a positive reference"}
	}

	if t.CategoryID != nil && *t.CategoryID <= 0 {
		return &ValidationError{Field: "category_id", Reason: "must be a positive reference"}
	}

	return nil
}

// Transaction is a persisted record.
type Transaction struct {
	NormalizedTransaction

	ID        int64
	BatchID   uuid.UUID
	CreatedAt time.Time
	UpdatedAt *time.Time
}
