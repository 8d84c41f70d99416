package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrJamesThe3rd/tally/internal/transaction"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ transaction.Repository = (*Store)(nil)

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanTransaction reads a row in selectColumns order.
func scanTransaction(s scanner) (*transaction.Transaction, error) {
	var (
		tx             transaction.Transaction
		date           time.Time
		unitID         sql.NullInt64
		categoryID     sql.NullInt64
		sourceCategory sql.NullString
		notes          sql.NullString
		updatedAt      sql.NullTime
	)

	if err := s.Scan(
		&tx.ID, &tx.BatchID, &tx.SourceID, &unitID, &date, &tx.Description, &tx.Amount,
		&sourceCategory, &categoryID, &tx.Ignore, &notes, &tx.Tags, &tx.Hash,
		&tx.CreatedAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	tx.Date = date.Format(time.DateOnly)

	if unitID.Valid {
		tx.UnitID = &unitID.Int64
	}

	if categoryID.Valid {
		tx.CategoryID = &categoryID.Int64
	}

	if sourceCategory.Valid {
		tx.SourceCategory = &sourceCategory.String
	}

	if notes.Valid {
		tx.Notes = &notes.String
	}

	if updatedAt.Valid {
		tx.UpdatedAt = &updatedAt.Time
	}

	return &tx, nil
}

const selectColumns = `
	id, batch_id, source_id, unit_id, date, description, amount,
	source_category, category_id, ignore, notes, tags, hash,
	created_at, updated_at
`

func (s *Store) FindByHash(ctx context.Context, hash string) (*transaction.Transaction, error) {
	query := `SELECT ` + selectColumns + ` FROM transactions WHERE hash = $1`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("finding transaction by hash: %w", err)
	}

	return tx, nil
}

// Insert relies on the unique hash constraint so that a concurrent import of the same row fails
// with transaction.ErrDuplicate instead of storing it twice.
func (s *Store) Insert(ctx context.Context, tx *transaction.Transaction) error {
	date, err := time.Parse(time.DateOnly, tx.Date)
	if err != nil {
		return fmt.Errorf("parsing date %q: %w", tx.Date, err)
	}

	query := `
		INSERT INTO transactions (
			batch_id, source_id, unit_id, date, description, amount,
			source_category, category_id, ignore, notes, tags, hash, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		RETURNING id, created_at
	`

	err = s.db.QueryRowContext(ctx, query,
		tx.BatchID,
		tx.SourceID,
		tx.UnitID,
		date,
		tx.Description,
		tx.Amount,
		tx.SourceCategory,
		tx.CategoryID,
		tx.Ignore,
		tx.Notes,
		tx.Tags,
		tx.Hash,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("creating transaction %s: %w", tx.Hash, transaction.ErrDuplicate)
		}

		return fmt.Errorf("creating transaction: %w", err)
	}

	return nil
}

func (s *Store) ExistingHashes(ctx context.Context, hashes []string) ([]string, error) {
	if len(hashes) == 0 {
		return []string{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT hash FROM transactions WHERE hash = ANY($1)`, hashes)
	if err != nil {
		return nil, fmt.Errorf("probing hashes: %w", err)
	}
	defer rows.Close()

	found := []string{}

	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning hash: %w", err)
		}

		found = append(found, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hashes: %w", err)
	}

	return found, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*transaction.Transaction, error) {
	query := `SELECT ` + selectColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, transaction.ErrNotFound
		}

		return nil, fmt.Errorf("getting transaction: %w", err)
	}

	return tx, nil
}

func (s *Store) List(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	query := `SELECT ` + selectColumns + ` FROM transactions WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.SourceID != nil {
		query += fmt.Sprintf(" AND source_id = $%d", argIdx)

		args = append(args, *filter.SourceID)
		argIdx++
	}

	if filter.BatchID != nil {
		query += fmt.Sprintf(" AND batch_id = $%d", argIdx)

		args = append(args, *filter.BatchID)
		argIdx++
	}

	if filter.StartDate != nil {
		query += fmt.Sprintf(" AND date >= $%d", argIdx)

		args = append(args, *filter.StartDate)
		argIdx++
	}

	if filter.EndDate != nil {
		query += fmt.Sprintf(" AND date <= $%d", argIdx)

		args = append(args, *filter.EndDate)
		argIdx++
	}

	query += " ORDER BY date ASC, id ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)

		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []*transaction.Transaction

	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}

	return txs, nil
}

func (s *Store) ListTags(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT tags FROM transactions WHERE tags <> ''`)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer rows.Close()

	var out []string

	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning tags: %w", err)
		}

		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tags: %w", err)
	}

	return out, nil
}
