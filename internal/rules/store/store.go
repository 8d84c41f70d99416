package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrJamesThe3rd/tally/internal/rules"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// table returns the rule table and its target column for kind.
func table(kind rules.Kind) (string, string, error) {
	switch kind {
	case rules.KindUnit:
		return "unit_rules", "unit_id", nil
	case rules.KindCategory:
		return "category_rules", "category_id", nil
	}

	return "", "", fmt.Errorf("kind %q: %w", kind, rules.ErrInvalidRule)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(s scanner, kind rules.Kind) (rules.Rule, error) {
	r := rules.Rule{Kind: kind}

	var field, matchType string

	if err := s.Scan(&r.ID, &field, &r.Pattern, &matchType, &r.TargetID, &r.Priority, &r.Active, &r.CreatedAt); err != nil {
		return rules.Rule{}, err
	}

	r.Field = rules.Field(field)
	r.MatchType = rules.MatchType(matchType)

	return r, nil
}

func (s *Store) ListActiveUnitRules(ctx context.Context) ([]rules.Rule, error) {
	return s.list(ctx, rules.KindUnit, true)
}

func (s *Store) ListActiveCategoryRules(ctx context.Context) ([]rules.Rule, error) {
	return s.list(ctx, rules.KindCategory, true)
}

func (s *Store) List(ctx context.Context, kind rules.Kind) ([]rules.Rule, error) {
	return s.list(ctx, kind, false)
}

func (s *Store) list(ctx context.Context, kind rules.Kind, activeOnly bool) ([]rules.Rule, error) {
	tbl, target, err := table(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, rule_type, pattern, match_type, %s, priority, active, created_at
		FROM %s`, target, tbl)

	if activeOnly {
		query += " WHERE active = TRUE"
	}

	query += " ORDER BY priority ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing %s rules: %w", kind, err)
	}
	defer rows.Close()

	var out []rules.Rule

	for rows.Next() {
		r, err := scanRule(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("scanning %s rule: %w", kind, err)
		}

		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rules: %w", kind, err)
	}

	return out, nil
}

func (s *Store) Create(ctx context.Context, r *rules.Rule) error {
	tbl, target, err := table(r.Kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (rule_type, pattern, match_type, %s, priority, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at`, tbl, target)

	err = s.db.QueryRowContext(ctx, query,
		r.Field,
		r.Pattern,
		r.MatchType,
		r.TargetID,
		r.Priority,
		r.Active,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return createError(r.Kind, err)
	}

	return nil
}

// createError reports constraint violations as invalid rules so callers see a client error.
func createError(kind rules.Kind, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.ForeignKeyViolation, pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
			return fmt.Errorf("creating %s rule: %s: %w", kind, pgErr.Message, rules.ErrInvalidRule)
		}
	}

	return fmt.Errorf("creating %s rule: %w", kind, err)
}

func (s *Store) SetActive(ctx context.Context, kind rules.Kind, id int64, active bool) error {
	tbl, _, err := table(kind)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET active = $1 WHERE id = $2`, tbl), active, id)
	if err != nil {
		return fmt.Errorf("toggling %s rule: %w", kind, err)
	}

	return expectOne(res, id)
}

// Reorder assigns priorities 0..n-1 to ids in the given order inside a single database transaction.
func (s *Store) Reorder(ctx context.Context, kind rules.Kind, ids []int64) error {
	tbl, _, err := table(kind)
	if err != nil {
		return err
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := fmt.Sprintf(`UPDATE %s SET priority = $1 WHERE id = $2`, tbl)

	for i, id := range ids {
		res, err := dbTx.ExecContext(ctx, query, i, id)
		if err != nil {
			return fmt.Errorf("reordering %s rule %d: %w", kind, id, err)
		}

		if err := expectOne(res, id); err != nil {
			return err
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func expectOne(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("rule %d: %w", id, rules.ErrNotFound)
	}

	return nil
}

var _ rules.Repository = (*Store)(nil)
