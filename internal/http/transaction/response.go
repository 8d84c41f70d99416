package transaction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/tally/internal/tags"
	"github.com/MrJamesThe3rd/tally/internal/transaction"
)

type transactionResponse struct {
	ID             int64           `json:"id"`
	BatchID        uuid.UUID       `json:"batch_id"`
	SourceID       int64           `json:"source_id"`
	UnitID         *int64          `json:"unit_id,omitempty"`
	Date           string          `json:"date"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	SourceCategory *string         `json:"source_category,omitempty"`
	CategoryID     *int64          `json:"category_id,omitempty"`
	Ignore         bool            `json:"ignore"`
	Notes          *string         `json:"notes,omitempty"`
	Tags           []string        `json:"tags"`
	Hash           string          `json:"hash"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty"`
}

func toResponse(tx *transaction.Transaction) transactionResponse {
	return transactionResponse{
		ID:             tx.ID,
		BatchID:        tx.BatchID,
		SourceID:       tx.SourceID,
		UnitID:         tx.UnitID,
		Date:           tx.Date,
		Description:    tx.Description,
		Amount:         tx.Amount,
		SourceCategory: tx.SourceCategory,
		CategoryID:     tx.CategoryID,
		Ignore:         tx.Ignore,
		Notes:          tx.Notes,
		Tags:           tags.Parse(tx.Tags),
		Hash:           tx.Hash,
		CreatedAt:      tx.CreatedAt,
		UpdatedAt:      tx.UpdatedAt,
	}
}

func toResponseList(txs []*transaction.Transaction) []transactionResponse {
	resp := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		resp[i] = toResponse(tx)
	}

	return resp
}
