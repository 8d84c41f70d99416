package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/tally/internal/fingerprint"
	"github.com/MrJamesThe3rd/tally/internal/rules"
	"github.com/MrJamesThe3rd/tally/internal/tags"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=transaction
type Repository interface {
	// FindByHash returns nil, nil when no record carries hash.
	FindByHash(ctx context.Context, hash string) (*Transaction, error)
	// Insert persists tx and fills its ID and CreatedAt. A hash that is already stored yields
	// ErrDuplicate.
	Insert(ctx context.Context, tx *Transaction) error
	ExistingHashes(ctx context.Context, hashes []string) ([]string, error)

	List(ctx context.Context, filter ListFilter) ([]*Transaction, error)
	Get(ctx context.Context, id int64) (*Transaction, error)
	ListTags(ctx context.Context) ([]string, error)
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{repo: repo, logger: logger}
}

type ListFilter struct {
	SourceID  *int64
	BatchID   *uuid.UUID
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
}

// ImportOptions controls a single batch.
type ImportOptions struct {
	// Rules enables auto-categorization when non-nil. Only unit and category fields the row
	// leaves empty are filled.
	Rules *rules.Snapshot
}

// BatchRow is one input row. Err carries a normalization failure, in which case Tx is ignored
// and the row is reported as a validation error in its input position.
type BatchRow struct {
	Index int
	Cells []string
	Tx    NormalizedTransaction
	Err   error
}

type ErrorKind string

const (
	ErrorKindValidation  ErrorKind = "validation"
	ErrorKindPersistence ErrorKind = "persistence"
)

type RowError struct {
	Index       int                    `json:"index"`
	Cells       []string               `json:"cells,omitempty"`
	Transaction *NormalizedTransaction `json:"transaction,omitempty"`
	Kind        ErrorKind              `json:"kind"`
	Error       string                 `json:"error"`
}

type ImportOutcome struct {
	BatchID  uuid.UUID  `json:"batch_id"`
	Imported int        `json:"imported"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors"`
}

// Total counts every row the batch looked at.
func (o *ImportOutcome) Total() int {
	return o.Imported + o.Skipped + len(o.Errors)
}

func (o ImportOutcome) MarshalJSON() ([]byte, error) {
	type alias ImportOutcome

	return json.Marshal(struct {
		alias
		Total int `json:"total"`
	}{alias(o), o.Total()})
}

// ImportBatch persists already normalized rows. See ImportRows.
func (s *Service) ImportBatch(ctx context.Context, txs []NormalizedTransaction, opts ImportOptions) (*ImportOutcome, error) {
	rows := make([]BatchRow, len(txs))
	for i, tx := range txs {
		rows[i] = BatchRow{Index: i, Tx: tx}
	}

	return s.ImportRows(ctx, rows, opts)
}

// ImportRows runs every row, strictly in order, through dedup lookup, rule suggestion and
// persistence. A failing row is recorded and the batch moves on. The only error returned is a
// cancelled context, together with the outcome of the rows processed so far.
func (s *Service) ImportRows(ctx context.Context, rows []BatchRow, opts ImportOptions) (*ImportOutcome, error) {
	out := &ImportOutcome{
		BatchID: uuid.New(),
		Errors:  []RowError{},
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			s.summary(out, opts)
			return out, fmt.Errorf("import batch %s interrupted after %d rows: %w", out.BatchID, out.Total(), err)
		}

		s.importRow(ctx, row, opts, out)
	}

	s.summary(out, opts)

	return out, nil
}

func (s *Service) importRow(ctx context.Context, row BatchRow, opts ImportOptions, out *ImportOutcome) {
	if row.Err != nil {
		s.fail(out, row, nil, ErrorKindValidation, row.Err)
		return
	}

	tx := row.Tx
	tx.Tags = tags.Serialize(tx.Tags)
	tx.Hash = tx.Fingerprint()

	if err := tx.Validate(); err != nil {
		s.fail(out, row, &tx, ErrorKindValidation, err)
		return
	}

	existing, err := s.repo.FindByHash(ctx, tx.Hash)
	if err != nil {
		s.fail(out, row, &tx, ErrorKindPersistence, err)
		return
	}

	if existing != nil {
		out.Skipped++
		return
	}

	if opts.Rules != nil && (tx.UnitID == nil || tx.CategoryID == nil) {
		suggest(&tx, *opts.Rules)
	}

	rec := &Transaction{NormalizedTransaction: tx, BatchID: out.BatchID}

	if err := s.repo.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicate) {
			out.Skipped++
			return
		}

		s.fail(out, row, &tx, ErrorKindPersistence, err)

		return
	}

	out.Imported++
}

func suggest(tx *NormalizedTransaction, snap rules.Snapshot) {
	got := rules.Apply(snap, tx.Candidate())

	if tx.UnitID == nil {
		tx.UnitID = got.UnitID
	}

	if tx.CategoryID == nil {
		tx.CategoryID = got.CategoryID
	}
}

func (s *Service) fail(out *ImportOutcome, row BatchRow, tx *NormalizedTransaction, kind ErrorKind, err error) {
	s.logger.Debug("import row failed", "batch_id", out.BatchID, "row", row.Index, "kind", kind, "error", err)

	out.Errors = append(out.Errors, RowError{
		Index:       row.Index,
		Cells:       row.Cells,
		Transaction: tx,
		Kind:        kind,
		Error:       err.Error(),
	})
}

func (s *Service) summary(out *ImportOutcome, opts ImportOptions) {
	s.logger.Info("import batch finished",
		"batch_id", out.BatchID,
		"imported", out.Imported,
		"skipped", out.Skipped,
		"errors", len(out.Errors),
		"rules", opts.Rules != nil,
	)
}

// FindExisting returns the hashes from candidates that are already stored. Malformed hashes are
// never stored and are dropped before the lookup.
func (s *Service) FindExisting(ctx context.Context, candidates []string) ([]string, error) {
	hashes := make([]string, 0, len(candidates))

	for _, h := range candidates {
		h = strings.ToLower(strings.TrimSpace(h))
		if fingerprint.Valid(h) && !slices.Contains(hashes, h) {
			hashes = append(hashes, h)
		}
	}

	if len(hashes) == 0 {
		return []string{}, nil
	}

	found, err := s.repo.ExistingHashes(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("probe hashes: %w", err)
	}

	return found, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Transaction, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id int64) (*Transaction, error) {
	return s.repo.Get(ctx, id)
}

// Tags returns every tag in use, sorted.
func (s *Service) Tags(ctx context.Context) ([]string, error) {
	stored, err := s.repo.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	return tags.Merge(tags.Parse(stored...)), nil
}

// SuggestTags completes prefix against the tags already in use.
func (s *Service) SuggestTags(ctx context.Context, prefix string, limit int) ([]string, error) {
	known, err := s.Tags(ctx)
	if err != nil {
		return nil, err
	}

	return tags.Suggest(prefix, known, limit), nil
}
