package tabular_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/tally/internal/tabular"
)

func TestNewUTF8Reader_UTF8Passthrough(t *testing.T) {
	input := "Descrição;Montante\nCafé;12,50\nOperação;-3,00\n"

	r, charset, err := tabular.NewUTF8Reader(strings.NewReader(input))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, input, string(got))
	assert.Equal(t, "UTF-8", charset)
}

func TestNewUTF8Reader_Latin1(t *testing.T) {
	// Windows-1252: ç = 0xE7, ã = 0xE3
	latin1 := []byte{
		'D', 'e', 's', 'c', 'r', 'i', 0xE7, 0xE3, 'o', ';',
		'M', 'o', 'n', 't', 'a', 'n', 't', 'e', '\n',
	}

	r, _, err := tabular.NewUTF8Reader(bytes.NewReader(latin1))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "Descrição;Montante\n", string(got))
}

func TestNewUTF8Reader_UTF8BOM(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Date,Amount\n")...)

	r, _, err := tabular.NewUTF8Reader(bytes.NewReader(input))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "Date,Amount\n", string(got))
}

func TestNewUTF8Reader_MultibyteAcrossSniffWindow(t *testing.T) {
	input := strings.Repeat("a", 4095) + "ç;1\n"

	r, charset, err := tabular.NewUTF8Reader(strings.NewReader(input))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, input, string(got))
	assert.Equal(t, "UTF-8", charset)
}

func TestSniffDelimiter(t *testing.T) {
	type testCase struct {
		name  string
		input string
		want  rune
	}

	tests := []testCase{
		{name: "Comma", input: "Date,Description,Amount\n2024-01-01,Rent,-900\n", want: ','},
		{name: "Semicolon with decimal commas", input: "Data;Descrição;Montante\n01-01-2024;Renda;-900,00\n", want: ';'},
		{name: "Tab", input: "Date\tDescription\tAmount\n", want: '\t'},
		{name: "Quoted commas ignored", input: "\"a,b,c,d\";x;y\n\"e,f,g\";1;2\n", want: ';'},
		{name: "Single column falls back to comma", input: "Date\n2024-01-01\n", want: ','},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tabular.SniffDelimiter([]byte(tt.input)))
		})
	}
}

func TestRead_CSV(t *testing.T) {
	input := "Date,Description,Amount\n\n2024-01-15,SALARY PAYMENT,3000\n2024-01-16,\"Coffee, large\",-4.50\n"

	tbl, err := tabular.Read(strings.NewReader(input), tabular.FormatCSV, tabular.Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Date", "Description", "Amount"}, tbl.Header)
	assert.Equal(t, 0, tbl.HeaderRow)
	assert.Equal(t, ',', tbl.Delimiter)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "Coffee, large", tbl.Rows[1][1])
}

func TestRead_CSVWithPreamble(t *testing.T) {
	input := "Consultar saldos e movimentos\n\nConta ;0123456789\nData mov. ;Descrição ;Montante\n02-01-2024;COMPRA;-10,00\n"

	find := func(records [][]string) int {
		for i, r := range records {
			if len(r) > 0 && strings.TrimSpace(r[0]) == "Data mov." {
				return i
			}
		}

		return -1
	}

	tbl, err := tabular.Read(strings.NewReader(input), tabular.FormatCSV, tabular.Options{FindHeader: find})
	require.NoError(t, err)

	assert.Equal(t, ';', tbl.Delimiter)
	assert.Equal(t, 2, tbl.HeaderRow)
	assert.Equal(t, []string{"Data mov.", "Descrição", "Montante"}, tbl.Header)
	require.Len(t, tbl.Rows, 1)
}

func TestRead_Errors(t *testing.T) {
	_, err := tabular.Read(strings.NewReader("\n\n"), tabular.FormatCSV, tabular.Options{})
	assert.ErrorIs(t, err, tabular.ErrEmpty)

	_, err = tabular.Read(strings.NewReader("a,b"), "ods", tabular.Options{})
	assert.ErrorIs(t, err, tabular.ErrUnknownFormat)
}

func TestFormatFromName(t *testing.T) {
	assert.Equal(t, tabular.FormatXLS, tabular.FormatFromName("Extrato.XLS"))
	assert.Equal(t, tabular.FormatCSV, tabular.FormatFromName("statement.csv"))
	assert.Equal(t, tabular.FormatCSV, tabular.FormatFromName("export"))
}
