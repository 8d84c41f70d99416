// Package tabular reads bank statement files into a header row plus data rows.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
)

type Format string

const (
	FormatCSV Format = "csv"
	FormatXLS Format = "xls"
)

// maxXLSRows bounds how much of a legacy workbook is read.
const maxXLSRows = 100000

var (
	ErrUnknownFormat = errors.New("unknown file format")
	ErrEmpty         = errors.New("file has no rows")
)

// FormatFromName picks the format from a file name extension. Unknown extensions read as CSV.
func FormatFromName(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xls":
		return FormatXLS
	default:
		return FormatCSV
	}
}

// HeaderFinder returns the index of the header row in records, or -1.
type HeaderFinder func(records [][]string) int

type Options struct {
	// Delimiter overrides CSV delimiter sniffing.
	Delimiter rune
	// FindHeader locates the header below any preamble. Nil means the first non-blank row.
	FindHeader HeaderFinder
}

// Table is a decoded file. Rows excludes the header, any preamble above it and blank lines.
type Table struct {
	Header    []string
	Rows      [][]string
	HeaderRow int
	Encoding  string
	Delimiter rune
}

func Read(r io.Reader, format Format, opts Options) (*Table, error) {
	var (
		records [][]string
		t       = &Table{}
		err     error
	)

	switch format {
	case FormatCSV, "":
		records, err = readCSV(r, opts.Delimiter, t)
	case FormatXLS:
		records, err = readXLS(r, t)
	default:
		return nil, fmt.Errorf("%q: %w", format, ErrUnknownFormat)
	}

	if err != nil {
		return nil, err
	}

	find := opts.FindHeader
	if find == nil {
		find = firstNonBlank
	}

	idx := find(records)
	if idx < 0 || idx >= len(records) {
		return nil, ErrEmpty
	}

	t.HeaderRow = idx
	t.Header = trimAll(records[idx])

	for _, rec := range records[idx+1:] {
		if blank(rec) {
			continue
		}

		t.Rows = append(t.Rows, rec)
	}

	return t, nil
}

func readCSV(r io.Reader, delimiter rune, t *Table) ([][]string, error) {
	utf8r, charset, err := NewUTF8Reader(r)
	if err != nil {
		return nil, fmt.Errorf("detect encoding: %w", err)
	}

	data, err := io.ReadAll(utf8r)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	if delimiter == 0 {
		delimiter = SniffDelimiter(data)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	t.Encoding = charset
	t.Delimiter = delimiter

	return records, nil
}

func readXLS(r io.Reader, t *Table) ([][]string, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}

		rs = bytes.NewReader(data)
	}

	workbook, err := xls.OpenReader(rs, "cp1252")
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	records := workbook.ReadAllCells(maxXLSRows)
	if len(records) == 0 {
		return nil, ErrEmpty
	}

	t.Encoding = "cp1252"

	return records, nil
}

// delimiters are tried in order; earlier ones win ties.
var delimiters = []rune{',', ';', '\t', '|'}

// SniffDelimiter picks the delimiter that appears most often outside quotes in the first lines.
func SniffDelimiter(data []byte) rune {
	const maxLines = 20

	counts := make(map[rune]int, len(delimiters))
	lines := 0
	inQuotes := false

	for _, c := range string(data) {
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case c == '\n' && !inQuotes:
			lines++
		case !inQuotes:
			counts[c]++
		}

		if lines >= maxLines {
			break
		}
	}

	best := delimiters[0]
	for _, d := range delimiters[1:] {
		if counts[d] > counts[best] {
			best = d
		}
	}

	return best
}

func firstNonBlank(records [][]string) int {
	for i, rec := range records {
		if !blank(rec) {
			return i
		}
	}

	return -1
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}

	return true
}

func trimAll(rec []string) []string {
	out := make([]string, len(rec))
	for i, c := range rec {
		out[i] = strings.TrimSpace(c)
	}

	return out
}
