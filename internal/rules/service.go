package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var ErrNotFound = errors.New("rule not found")

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=rules
type Repository interface {
	ListActiveUnitRules(ctx context.Context) ([]Rule, error)
	ListActiveCategoryRules(ctx context.Context) ([]Rule, error)

	List(ctx context.Context, kind Kind) ([]Rule, error)
	Create(ctx context.Context, r *Rule) error
	SetActive(ctx context.Context, kind Kind, id int64, active bool) error
	Reorder(ctx context.Context, kind Kind, ids []int64) error
}

// Service owns rule administration and hands out snapshots for matching.
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

// Snapshot loads the active rules of both kinds. Stored rules were validated on save; any that
// no longer compile are left out and logged.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	units, err := s.repo.ListActiveUnitRules(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list unit rules: %w", err)
	}

	categories, err := s.repo.ListActiveCategoryRules(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list category rules: %w", err)
	}

	return Snapshot{
		Units:      s.compiled(units),
		Categories: s.compiled(categories),
	}, nil
}

func (s *Service) compiled(in []Rule) []Rule {
	out := make([]Rule, 0, len(in))

	for _, r := range in {
		if err := r.Compile(); err != nil {
			s.logger.Warn("skipping stored rule", "rule_id", r.ID, "kind", r.Kind, "error", err)
			continue
		}

		out = append(out, r)
	}

	return out
}

// Suggest evaluates the current rules against c.
func (s *Service) Suggest(ctx context.Context, c Candidate) (Suggestion, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return Suggestion{}, err
	}

	return Apply(snap, c), nil
}

// Test reports whether an unsaved rule would match c.
func (s *Service) Test(r Rule, c Candidate) (bool, error) {
	if err := r.Compile(); err != nil {
		return false, err
	}

	return Match(r, c), nil
}

func (s *Service) List(ctx context.Context, kind Kind) ([]Rule, error) {
	return s.repo.List(ctx, kind)
}

// Create validates and stores a rule. Invalid patterns are rejected here, never at match time.
func (s *Service) Create(ctx context.Context, r *Rule) error {
	if err := r.Compile(); err != nil {
		return err
	}

	return s.repo.Create(ctx, r)
}

func (s *Service) SetActive(ctx context.Context, kind Kind, id int64, active bool) error {
	return s.repo.SetActive(ctx, kind, id, active)
}

// Reorder rewrites priorities so that ids are evaluated in the given order.
func (s *Service) Reorder(ctx context.Context, kind Kind, ids []int64) error {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("rule %d listed twice: %w", id, ErrInvalidRule)
		}

		seen[id] = struct{}{}
	}

	return s.repo.Reorder(ctx, kind, ids)
}
