// Package importer is the entry point for importing statements: it picks the source profile,
// detects or accepts a column mapping, normalizes rows and hands them to the transaction service.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MrJamesThe3rd/tally/internal/columns"
	"github.com/MrJamesThe3rd/tally/internal/normalize"
	"github.com/MrJamesThe3rd/tally/internal/profile"
	"github.com/MrJamesThe3rd/tally/internal/rules"
	"github.com/MrJamesThe3rd/tally/internal/tabular"
	"github.com/MrJamesThe3rd/tally/internal/transaction"
)

// RuleSource hands out the rule state a batch runs against.
type RuleSource interface {
	Snapshot(ctx context.Context) (rules.Snapshot, error)
}

type Config struct {
	// ApplyRules is used when a request does not say.
	ApplyRules bool
	// DateFormat applies to sources without a profile.
	DateFormat string
}

type Service struct {
	transactions *transaction.Service
	rules        RuleSource
	profiles     *profile.Registry
	cfg          Config
	logger       *slog.Logger
}

func NewService(transactions *transaction.Service, rs RuleSource, profiles *profile.Registry, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	if profiles == nil {
		profiles, _ = profile.NewRegistry()
	}

	return &Service{
		transactions: transactions,
		rules:        rs,
		profiles:     profiles,
		cfg:          cfg,
		logger:       logger,
	}
}

// Request is one batch of raw rows.
type Request struct {
	SourceID int64
	// Profile names the import profile. Empty means the profile bound to SourceID, if any.
	Profile string
	Headers []string
	Rows    [][]string
	// Mapping overrides detection when set.
	Mapping *columns.Mapping
	// ApplyRules overrides Config.ApplyRules when set.
	ApplyRules *bool
}

// Profile resolves the profile for a source. An unknown explicit name is an error; a source
// without a profile gets an anonymous one carrying the configured date format.
func (s *Service) Profile(name string, sourceID int64) (profile.Profile, error) {
	if name != "" {
		p, ok := s.profiles.Get(name)
		if !ok {
			return profile.Profile{}, fmt.Errorf("unknown profile %q: %w", name, transaction.ErrInvalidBatch)
		}

		return p, nil
	}

	if p, ok := s.profiles.ForSource(sourceID); ok {
		return p, nil
	}

	p := profile.Profile{DateFormat: s.cfg.DateFormat}
	if _, err := p.Layout(); err != nil {
		return profile.Profile{}, fmt.Errorf("configured date format: %w", err)
	}

	return p, nil
}

// Profiles lists the registered profiles.
func (s *Service) Profiles() []profile.Profile {
	return s.profiles.List()
}

// DetectColumns suggests a mapping for headers using the profile's synonyms ahead of the defaults.
func (s *Service) DetectColumns(headers []string, profileName string, sourceID int64) (*columns.Mapping, error) {
	p, err := s.Profile(profileName, sourceID)
	if err != nil {
		return nil, err
	}

	return p.Table().Detect(headers), nil
}

// prepared is a request that passed batch-level checks.
type prepared struct {
	profile profile.Profile
	mapping *columns.Mapping
	rows    []transaction.BatchRow
	opts    transaction.ImportOptions
}

// prepare checks the batch as a whole and normalizes every row. Only problems with the request
// itself fail here; bad rows travel on as BatchRow.Err.
func (s *Service) prepare(ctx context.Context, req Request) (*prepared, error) {
	if req.SourceID <= 0 {
		return nil, fmt.Errorf("source id is required: %w", transaction.ErrInvalidBatch)
	}

	if len(req.Headers) == 0 {
		return nil, fmt.Errorf("headers are required: %w", transaction.ErrInvalidBatch)
	}

	if req.Rows == nil {
		return nil, fmt.Errorf("rows are required: %w", transaction.ErrInvalidBatch)
	}

	p, err := s.Profile(req.Profile, req.SourceID)
	if err != nil {
		return nil, err
	}

	m := req.Mapping
	if m == nil {
		m = p.Table().Detect(req.Headers)
	}

	if err := inRange(m, len(req.Headers)); err != nil {
		return nil, fmt.Errorf("%w: %w", transaction.ErrInvalidBatch, err)
	}

	nopts, err := p.NormalizeOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", transaction.ErrInvalidBatch, err)
	}

	n := normalize.New(m, nopts)

	rows := make([]transaction.BatchRow, len(req.Rows))
	for i, cells := range req.Rows {
		tx, err := n.Row(req.SourceID, cells)
		rows[i] = transaction.BatchRow{Index: i, Cells: cells, Tx: tx, Err: err}
	}

	var opts transaction.ImportOptions

	apply := s.cfg.ApplyRules
	if req.ApplyRules != nil {
		apply = *req.ApplyRules
	}

	if apply && s.rules != nil {
		snap, err := s.rules.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("load rules: %w", err)
		}

		opts.Rules = &snap
	}

	return &prepared{profile: p, mapping: m, rows: rows, opts: opts}, nil
}

// Import normalizes and imports one batch. Only a malformed request (ErrInvalidBatch) or an
// unavailable rule store fails the call; row problems are reported in the outcome.
func (s *Service) Import(ctx context.Context, req Request) (*transaction.ImportOutcome, error) {
	p, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	out, err := s.transactions.ImportRows(ctx, p.rows, p.opts)

	if out != nil {
		s.logger.Info("import finished",
			"batch_id", out.BatchID,
			"source_id", req.SourceID,
			"profile", p.profile.Name,
			"imported", out.Imported,
			"skipped", out.Skipped,
			"errors", len(out.Errors),
		)
	}

	return out, err
}

// File is a statement file to import.
type File struct {
	Reader     io.Reader
	Name       string
	SourceID   int64
	Profile    string
	Mapping    *columns.Mapping
	ApplyRules *bool
}

// FileResult is the outcome of importing a file together with what was read from it.
type FileResult struct {
	Outcome  *transaction.ImportOutcome `json:"outcome"`
	Mapping  *columns.Mapping           `json:"mapping"`
	Headers  []string                   `json:"headers"`
	Encoding string                     `json:"encoding,omitempty"`
}

// Read decodes a statement file with the source's profile: delimiter, header row below any
// preamble, and encoding.
func (s *Service) Read(f File) (*tabular.Table, error) {
	p, err := s.Profile(f.Profile, f.SourceID)
	if err != nil {
		return nil, err
	}

	delim, err := p.DelimiterRune()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", transaction.ErrInvalidBatch, err)
	}

	tbl, err := tabular.Read(f.Reader, tabular.FormatFromName(f.Name), tabular.Options{
		Delimiter:  delim,
		FindHeader: p.Table().FindHeader,
	})
	if err != nil {
		if errors.Is(err, tabular.ErrEmpty) || errors.Is(err, tabular.ErrUnknownFormat) {
			return nil, fmt.Errorf("%w: %w", transaction.ErrInvalidBatch, err)
		}

		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}

	return tbl, nil
}

// ImportFile reads and imports a statement file. When the context ends mid-batch the result for
// the rows already processed is returned with the error.
func (s *Service) ImportFile(ctx context.Context, f File) (*FileResult, error) {
	tbl, err := s.Read(f)
	if err != nil {
		return nil, err
	}

	req := Request{
		SourceID:   f.SourceID,
		Profile:    f.Profile,
		Headers:    tbl.Header,
		Rows:       tbl.Rows,
		Mapping:    f.Mapping,
		ApplyRules: f.ApplyRules,
	}

	if req.Rows == nil {
		req.Rows = [][]string{}
	}

	p, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	out, err := s.transactions.ImportRows(ctx, p.rows, p.opts)
	if out != nil {
		s.logger.Info("file import finished",
			"file", f.Name,
			"encoding", tbl.Encoding,
			"header_row", tbl.HeaderRow,
			"batch_id", out.BatchID,
			"source_id", f.SourceID,
			"imported", out.Imported,
			"skipped", out.Skipped,
			"errors", len(out.Errors),
		)
	}

	if out == nil {
		return nil, err
	}

	return &FileResult{Outcome: out, Mapping: p.mapping, Headers: tbl.Header, Encoding: tbl.Encoding}, err
}

func inRange(m *columns.Mapping, width int) error {
	for role, col := range m.Indexes() {
		if col < 0 || col >= width {
			return fmt.Errorf("role %q column %d of %d: %w", role, col, width, columns.ErrColumnOutOfRange)
		}
	}

	return nil
}
