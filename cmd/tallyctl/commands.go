package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/tally/internal/columns"
	"github.com/MrJamesThe3rd/tally/internal/http/auth"
	"github.com/MrJamesThe3rd/tally/internal/importer"
)

type importFlags struct {
	sourceID   int64
	profile    string
	mapping    map[string]int
	applyRules bool
	dryRun     bool
	offline    bool
}

func (f importFlags) file(cmd *cobra.Command, path string, r io.Reader) (importer.File, error) {
	file := importer.File{
		Reader:   r,
		Name:     filepath.Base(path),
		SourceID: f.sourceID,
		Profile:  f.profile,
	}

	if len(f.mapping) > 0 {
		indexes := make(map[columns.Role]int, len(f.mapping))
		for role, col := range f.mapping {
			indexes[columns.Role(role)] = col
		}

		m, err := columns.FromIndexes(indexes)
		if err != nil {
			return importer.File{}, err
		}

		file.Mapping = m
	}

	if cmd.Flags().Changed("apply-rules") {
		file.ApplyRules = &f.applyRules
	}

	return file, nil
}

func addSourceFlags(cmd *cobra.Command, f *importFlags) {
	cmd.Flags().Int64VarP(&f.sourceID, "source", "s", 0, "Source (account) id")
	cmd.Flags().StringVarP(&f.profile, "profile", "p", "", "Import profile (default: the profile bound to the source)")
	cmd.Flags().StringToIntVarP(&f.mapping, "map", "m", nil, "Explicit column mapping, role=column (0-based)")
}

func newProfilesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List import profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts.profilesFile)
			if err != nil {
				return err
			}

			list := a.profiles.List()
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), list)
			}

			t := newTable("NAME", "SOURCE", "DATE FORMAT", "DECIMAL COMMA", "DELIMITER")
			for _, p := range list {
				source := ""
				if p.SourceID > 0 {
					source = strconv.FormatInt(p.SourceID, 10)
				}

				t.Row(p.Name, source, p.DateFormat, strconv.FormatBool(p.DecimalComma), p.Delimiter)
			}

			fmt.Fprintln(cmd.OutOrStdout(), t)

			return nil
		},
	}
}

type detectResult struct {
	Headers  []string         `json:"headers"`
	Mapping  *columns.Mapping `json:"mapping"`
	Encoding string           `json:"encoding"`
	Rows     int              `json:"rows"`
	Missing  string           `json:"missing,omitempty"`
}

func newDetectCmd(opts *rootOptions) *cobra.Command {
	var f importFlags

	cmd := &cobra.Command{
		Use:   "detect <file>",
		Short: "Show how a statement's columns would be mapped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.profilesFile)
			if err != nil {
				return err
			}

			fh, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer fh.Close()

			file, err := f.file(cmd, args[0], fh)
			if err != nil {
				return err
			}

			svc := a.offline()

			tbl, err := svc.Read(file)
			if err != nil {
				return err
			}

			m := file.Mapping
			if m == nil {
				m, err = svc.DetectColumns(tbl.Header, f.profile, f.sourceID)
				if err != nil {
					return err
				}
			}

			res := detectResult{Headers: tbl.Header, Mapping: m, Encoding: tbl.Encoding, Rows: len(tbl.Rows)}
			if err := m.Validate(len(tbl.Header)); err != nil {
				res.Missing = err.Error()
			}

			if opts.json {
				return writeJSON(cmd.OutOrStdout(), res)
			}

			t := newTable("COLUMN", "HEADER", "ROLE")
			for i, h := range tbl.Header {
				role, _ := m.Role(i)
				t.Row(strconv.Itoa(i), h, string(role))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, t)
			fmt.Fprintf(out, "%d data rows, encoding %s\n", res.Rows, res.Encoding)

			if res.Missing != "" {
				fmt.Fprintln(out, "not importable:", res.Missing)
			}

			return nil
		},
	}

	addSourceFlags(cmd, &f)

	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var f importFlags

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a statement file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.offline && !f.dryRun {
				return errors.New("--offline requires --dry-run")
			}

			a, err := newApp(opts.profilesFile)
			if err != nil {
				return err
			}
			defer a.close()

			fh, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer fh.Close()

			file, err := f.file(cmd, args[0], fh)
			if err != nil {
				return err
			}

			svc := a.offline()
			if !f.offline {
				if _, svc, err = a.services(cmd.Context()); err != nil {
					return err
				}
			}

			if f.dryRun {
				return preview(cmd, opts, svc, file)
			}

			res, err := svc.ImportFile(cmd.Context(), file)
			if res == nil {
				return err
			}

			if opts.json {
				if jerr := writeJSON(cmd.OutOrStdout(), res); jerr != nil {
					return jerr
				}

				return err
			}

			out := cmd.OutOrStdout()
			o := res.Outcome

			fmt.Fprintf(out, "batch %s: %d imported, %d skipped, %d errors (of %d rows)\n",
				o.BatchID, o.Imported, o.Skipped, len(o.Errors), o.Total())

			if len(o.Errors) > 0 {
				t := newTable("ROW", "KIND", "ERROR")
				for _, e := range o.Errors {
					t.Row(strconv.Itoa(e.Index), string(e.Kind), e.Error)
				}

				fmt.Fprintln(out, t)
			}

			return err
		},
	}

	addSourceFlags(cmd, &f)
	cmd.Flags().BoolVar(&f.applyRules, "apply-rules", true, "Fill unit and category from rules (default from IMPORT_APPLY_RULES)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Show what would be imported without storing anything")
	cmd.Flags().BoolVar(&f.offline, "offline", false, "With --dry-run, skip the database: no stored duplicates, no rules")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func preview(cmd *cobra.Command, opts *rootOptions, svc *importer.Service, file importer.File) error {
	tbl, err := svc.Read(file)
	if err != nil {
		return err
	}

	rows := tbl.Rows
	if rows == nil {
		rows = [][]string{}
	}

	p, err := svc.Preview(cmd.Context(), importer.Request{
		SourceID:   file.SourceID,
		Profile:    file.Profile,
		Headers:    tbl.Header,
		Rows:       rows,
		Mapping:    file.Mapping,
		ApplyRules: file.ApplyRules,
	})
	if err != nil {
		return err
	}

	if opts.json {
		return writeJSON(cmd.OutOrStdout(), p)
	}

	t := newTable("ROW", "DATE", "AMOUNT", "DESCRIPTION", "STATUS")
	for _, r := range p.Rows {
		status := "new"

		switch {
		case r.Error != "":
			status = r.Error
		case r.Duplicate:
			status = "duplicate"
		}

		if tx := r.Transaction; tx != nil {
			t.Row(strconv.Itoa(r.Index), tx.Date, tx.Amount.StringFixed(2), tx.Description, status)
		} else {
			t.Row(strconv.Itoa(r.Index), "", "", "", status)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, t)
	fmt.Fprintf(out, "dry run: %d new, %d duplicates, %d errors\n", p.New, p.Duplicates, p.Errors)

	return nil
}

func newProbeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <hash>...",
		Short: "Report which transaction hashes are already stored",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.profilesFile)
			if err != nil {
				return err
			}
			defer a.close()

			txSvc, _, err := a.services(cmd.Context())
			if err != nil {
				return err
			}

			existing, err := txSvc.FindExisting(cmd.Context(), args)
			if err != nil {
				return err
			}

			if opts.json {
				return writeJSON(cmd.OutOrStdout(), map[string][]string{"existing": existing})
			}

			for _, h := range existing {
				fmt.Fprintln(cmd.OutOrStdout(), h)
			}

			return nil
		},
	}
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with AUTH_JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts.profilesFile)
			if err != nil {
				return err
			}

			token, err := auth.Issue([]byte(a.cfg.Auth.JWTSecret), a.cfg.Auth.Issuer, subject, ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)

			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(headers...)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
