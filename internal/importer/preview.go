package importer

import (
	"context"
	"fmt"

	"github.com/MrJamesThe3rd/tally/internal/columns"
	"github.com/MrJamesThe3rd/tally/internal/rules"
	"github.com/MrJamesThe3rd/tally/internal/transaction"
)

type PreviewRow struct {
	Index       int                                `json:"index"`
	Transaction *transaction.NormalizedTransaction `json:"transaction,omitempty"`
	// Duplicate is set when the hash is already stored or appears earlier in the same batch.
	Duplicate  bool              `json:"duplicate"`
	Suggestion *rules.Suggestion `json:"suggestion,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Preview is what an import would do, without storing anything.
type Preview struct {
	Mapping    *columns.Mapping `json:"mapping"`
	Rows       []PreviewRow     `json:"rows"`
	New        int              `json:"new"`
	Duplicates int              `json:"duplicates"`
	Errors     int              `json:"errors"`
}

// Preview normalizes the batch, probes storage for duplicates and evaluates rules.
func (s *Service) Preview(ctx context.Context, req Request) (*Preview, error) {
	p, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	hashes := make([]string, 0, len(p.rows))

	for _, r := range p.rows {
		if r.Err == nil {
			hashes = append(hashes, r.Tx.Hash)
		}
	}

	existing, err := s.transactions.FindExisting(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("probe duplicates: %w", err)
	}

	stored := make(map[string]bool, len(existing))
	for _, h := range existing {
		stored[h] = true
	}

	seen := make(map[string]bool, len(hashes))
	out := &Preview{Mapping: p.mapping, Rows: make([]PreviewRow, 0, len(p.rows))}

	for _, r := range p.rows {
		row := PreviewRow{Index: r.Index}

		if r.Err != nil {
			row.Error = r.Err.Error()
			out.Errors++
			out.Rows = append(out.Rows, row)

			continue
		}

		tx := r.Tx
		row.Transaction = &tx
		row.Duplicate = stored[tx.Hash] || seen[tx.Hash]
		seen[tx.Hash] = true

		if p.opts.Rules != nil {
			sg := rules.Apply(*p.opts.Rules, tx.Candidate())
			row.Suggestion = &sg
		}

		if row.Duplicate {
			out.Duplicates++
		} else {
			out.New++
		}

		out.Rows = append(out.Rows, row)
	}

	return out, nil
}
