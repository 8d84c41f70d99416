// Package memstore is an in-memory transaction repository with the same hash uniqueness contract
// as the Postgres store. It backs dry runs and tests.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrJamesThe3rd/tally/internal/transaction"
)

// Store is safe for concurrent use. Data is lost when the process exits.
type Store struct {
	mu     sync.RWMutex
	nextID int64
	rows   []*transaction.Transaction
	byHash map[string]*transaction.Transaction
}

func New() *Store {
	return &Store{byHash: make(map[string]*transaction.Transaction)}
}

var _ transaction.Repository = (*Store)(nil)

func (s *Store) FindByHash(_ context.Context, hash string) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byHash[hash]
	if !ok {
		return nil, nil
	}

	cp := *tx

	return &cp, nil
}

func (s *Store) Insert(_ context.Context, tx *transaction.Transaction) error {
	if tx.Hash == "" {
		return fmt.Errorf("inserting transaction: empty hash")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byHash[tx.Hash]; ok {
		return fmt.Errorf("inserting transaction %s: %w", tx.Hash, transaction.ErrDuplicate)
	}

	s.nextID++
	tx.ID = s.nextID
	tx.CreatedAt = time.Now().UTC()

	cp := *tx
	s.rows = append(s.rows, &cp)
	s.byHash[cp.Hash] = &cp

	return nil
}

func (s *Store) ExistingHashes(_ context.Context, hashes []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := []string{}

	for _, h := range hashes {
		if _, ok := s.byHash[h]; ok && !slices.Contains(found, h) {
			found = append(found, h)
		}
	}

	return found, nil
}

func (s *Store) List(_ context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*transaction.Transaction

	for _, tx := range s.rows {
		if !matches(tx, filter) {
			continue
		}

		cp := *tx
		out = append(out, &cp)
	}

	slices.SortStableFunc(out, func(a, b *transaction.Transaction) int {
		if c := cmp.Compare(a.Date, b.Date); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	return out, nil
}

func matches(tx *transaction.Transaction, f transaction.ListFilter) bool {
	if f.SourceID != nil && tx.SourceID != *f.SourceID {
		return false
	}

	if f.BatchID != nil && tx.BatchID != *f.BatchID {
		return false
	}

	// Dates are YYYY-MM-DD so string order is date order.
	if f.StartDate != nil && tx.Date < f.StartDate.Format(time.DateOnly) {
		return false
	}

	if f.EndDate != nil && tx.Date > f.EndDate.Format(time.DateOnly) {
		return false
	}

	return true
}

func (s *Store) Get(_ context.Context, id int64) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.rows {
		if tx.ID == id {
			cp := *tx
			return &cp, nil
		}
	}

	return nil, transaction.ErrNotFound
}

func (s *Store) ListTags(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string

	for _, tx := range s.rows {
		if tx.Tags != "" {
			out = append(out, tx.Tags)
		}
	}

	return out, nil
}

// Len returns the number of stored transactions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.rows)
}
