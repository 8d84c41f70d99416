package view

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/tally/internal/importer"
	"github.com/MrJamesThe3rd/tally/internal/transaction"
)

const importTimeout = 2 * time.Minute

type importState int

const (
	importStateSetup importState = iota
	importStateFilePick
	importStateReading
	importStatePreview
	importStateImporting
	importStateResult
)

// importFields holds the setup form bindings. It lives behind a pointer so the form keeps
// writing to the same values while the model is copied between updates.
type importFields struct {
	profile    string
	sourceID   string
	applyRules bool
}

type ImportModel struct {
	CommonModel
	importService *importer.Service

	state      importState
	form       *huh.Form
	fields     *importFields
	filePicker filepicker.Model
	spinner    spinner.Model

	path    string
	headers []string
	rows    [][]string
	preview *importer.Preview
	table   table.Model

	result *transaction.ImportOutcome
	errors table.Model
	status string
	err    error
}

func NewImportModel(impSvc *importer.Service, applyRules bool) ImportModel {
	fp := filepicker.New()
	fp.CurrentDirectory, _ = os.Getwd()
	fp.AllowedTypes = []string{".csv", ".txt", ".xls"}
	fp.ShowHidden = false
	fp.DirAllowed = false
	fp.FileAllowed = true
	fp.Height = 15

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := ImportModel{
		importService: impSvc,
		fields:        &importFields{applyRules: applyRules},
		filePicker:    fp,
		spinner:       s,
	}
	m.form = m.buildSetupForm()

	return m
}

func (m ImportModel) Title() string { return "Import Statement" }

func (m ImportModel) ShortHelp() string {
	switch m.state {
	case importStatePreview:
		return "Enter: import | Esc: cancel"
	case importStateReading, importStateImporting:
		return "Working..."
	case importStateResult:
		return "Esc: back to menu"
	}

	return "Esc: back | Enter: select"
}

func (m ImportModel) Init() tea.Cmd {
	return m.form.Init()
}

func (m ImportModel) buildSetupForm() *huh.Form {
	options := []huh.Option[string]{huh.NewOption("Source default", "")}
	for _, p := range m.importService.Profiles() {
		options = append(options, huh.NewOption(p.Name, p.Name))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Profile").
				Options(options...).
				Value(&m.fields.profile),

			huh.NewInput().
				Title("Source ID").
				Placeholder("1").
				Value(&m.fields.sourceID).
				Validate(func(s string) error {
					id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
					if err != nil || id <= 0 {
						return errors.New("source id must be a positive number")
					}

					return nil
				}),

			huh.NewConfirm().
				Title("Apply categorization rules?").
				Value(&m.fields.applyRules),
		),
	).WithWidth(45).WithShowHelp(false)
}

func (m ImportModel) sourceID() int64 {
	id, _ := strconv.ParseInt(strings.TrimSpace(m.fields.sourceID), 10, 64)
	return id
}

func (m ImportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc {
			return m.handleEsc()
		}

		if m.state == importStatePreview {
			return m.updatePreview(msg)
		}

	case spinner.TickMsg:
		if m.state != importStateReading && m.state != importStateImporting {
			return m, nil
		}

		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)

		return m, cmd

	case previewMsg:
		if msg.err != nil {
			m.state = importStateResult
			m.err = msg.err
			m.status = fmt.Sprintf("Error: %v", msg.err)

			return m, nil
		}

		m.headers = msg.headers
		m.rows = msg.rows
		m.preview = msg.preview
		m.table = m.previewTable()
		m.state = importStatePreview

		return m, nil

	case importDoneMsg:
		m.state = importStateResult
		if msg.outcome == nil {
			m.err = msg.err
			m.status = fmt.Sprintf("Error: %v", msg.err)

			return m, nil
		}

		m.result = msg.outcome
		m.status = fmt.Sprintf("Imported %d, skipped %d duplicates, %d errors (batch %s).",
			msg.outcome.Imported, msg.outcome.Skipped, len(msg.outcome.Errors), msg.outcome.BatchID)
		m.errors = errorTable(msg.outcome.Errors)

		if msg.err != nil {
			m.status = warnStyle.Render(fmt.Sprintf("Interrupted: %v", msg.err)) + "\n" + m.status
		}

		return m, nil
	}

	switch m.state {
	case importStateSetup:
		return m.updateSetup(msg)
	case importStateFilePick:
		return m.updateFilePick(msg)
	case importStateResult:
		if m.result != nil && len(m.result.Errors) > 0 {
			var cmd tea.Cmd
			m.errors, cmd = m.errors.Update(msg)

			return m, cmd
		}
	}

	return m, nil
}

func (m ImportModel) handleEsc() (tea.Model, tea.Cmd) {
	switch m.state {
	case importStateFilePick, importStatePreview, importStateResult:
		return m.reset()
	}

	return m, Back
}

func (m ImportModel) reset() (tea.Model, tea.Cmd) {
	m.state = importStateSetup
	m.preview = nil
	m.headers = nil
	m.rows = nil
	m.result = nil
	m.err = nil
	m.status = ""
	m.form = m.buildSetupForm()

	return m, m.form.Init()
}

func (m ImportModel) updateSetup(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	m.state = importStateFilePick

	return m, m.filePicker.Init()
}

func (m ImportModel) updateFilePick(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.filePicker, cmd = m.filePicker.Update(msg)

	if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
		m.path = path
		m.state = importStateReading
		m.status = fmt.Sprintf("Reading %s...", filepath.Base(path))

		return m, tea.Batch(m.spinner.Tick, m.previewCmd(path))
	}

	return m, cmd
}

func (m ImportModel) updatePreview(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEnter {
		m.state = importStateImporting
		m.status = fmt.Sprintf("Importing %d rows...", len(m.rows))

		return m, tea.Batch(m.spinner.Tick, m.importCmd())
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m ImportModel) View() string {
	switch m.state {
	case importStateSetup:
		return lipgloss.NewStyle().Padding(2).Render("Import Statement\n\n" + m.form.View())
	case importStateFilePick:
		return lipgloss.NewStyle().Padding(1).Render(
			fmt.Sprintf("Select file to import (source %d):\n\n%s", m.sourceID(), m.filePicker.View()),
		)
	case importStateReading, importStateImporting:
		return lipgloss.NewStyle().Padding(2).Render(m.spinner.View() + " " + m.status)
	case importStatePreview:
		return m.viewPreview()
	case importStateResult:
		return m.viewResult()
	}

	return ""
}

func (m ImportModel) viewPreview() string {
	p := m.preview

	header := fmt.Sprintf("%s: %s new, %s duplicates, %s errors",
		filepath.Base(m.path),
		successStyle.Render(strconv.Itoa(p.New)),
		warnStyle.Render(strconv.Itoa(p.Duplicates)),
		errorStyle.Render(strconv.Itoa(p.Errors)),
	)

	detail := ""
	if idx := m.table.Cursor(); idx >= 0 && idx < len(p.Rows) && p.Rows[idx].Error != "" {
		detail = "\n" + errorStyle.Render(p.Rows[idx].Error)
	}

	return lipgloss.NewStyle().Padding(1).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			lipgloss.NewStyle().PaddingBottom(1).Render(header),
			framed(m.table.View()),
			detail,
			"\n(Enter to import, Esc to cancel)",
		),
	)
}

func (m ImportModel) viewResult() string {
	style := lipgloss.NewStyle().Padding(2)
	if m.err != nil {
		return style.Render(errorStyle.Render(m.status) + "\n\n(Esc to go back)")
	}

	out := successStyle.Render(m.status)
	if len(m.result.Errors) > 0 {
		out += "\n\n" + framed(m.errors.View())
	}

	return style.Render(out + "\n\n(Esc to go back)")
}

func (m ImportModel) previewTable() table.Model {
	t := newTable([]table.Column{
		{Title: "#", Width: 5},
		{Title: "Date", Width: 12},
		{Title: "Amount", Width: 12},
		{Title: "Description", Width: 40},
		{Title: "Status", Width: 10},
		{Title: "Unit", Width: 6},
		{Title: "Category", Width: 8},
	}, 15)

	rows := make([]table.Row, 0, len(m.preview.Rows))
	for _, r := range m.preview.Rows {
		row := table.Row{strconv.Itoa(r.Index), "", "", "", "error", "", ""}

		if tx := r.Transaction; tx != nil {
			row[1] = tx.Date
			row[2] = FormatAmount(tx.Amount)
			row[3] = tx.Description
			row[5] = FormatRef(tx.UnitID)
			row[6] = FormatRef(tx.CategoryID)

			if sg := r.Suggestion; sg != nil {
				if tx.UnitID == nil && sg.UnitID != nil {
					row[5] = "~" + FormatRef(sg.UnitID)
				}

				if tx.CategoryID == nil && sg.CategoryID != nil {
					row[6] = "~" + FormatRef(sg.CategoryID)
				}
			}
		}

		switch {
		case r.Error != "":
		case r.Duplicate:
			row[4] = "duplicate"
		default:
			row[4] = "new"
		}

		rows = append(rows, row)
	}

	t.SetRows(rows)

	return t
}

func errorTable(errs []transaction.RowError) table.Model {
	t := newTable([]table.Column{
		{Title: "Row", Width: 5},
		{Title: "Kind", Width: 12},
		{Title: "Error", Width: 70},
	}, min(len(errs), 10))

	rows := make([]table.Row, len(errs))
	for i, e := range errs {
		rows[i] = table.Row{strconv.Itoa(e.Index), string(e.Kind), e.Error}
	}

	t.SetRows(rows)

	return t
}

// Messages

type previewMsg struct {
	headers []string
	rows    [][]string
	preview *importer.Preview
	err     error
}

type importDoneMsg struct {
	outcome *transaction.ImportOutcome
	err     error
}

func (m ImportModel) request() importer.Request {
	applyRules := m.fields.applyRules

	return importer.Request{
		SourceID:   m.sourceID(),
		Profile:    m.fields.profile,
		ApplyRules: &applyRules,
	}
}

func (m ImportModel) previewCmd(path string) tea.Cmd {
	req := m.request()

	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return previewMsg{err: err}
		}
		defer f.Close()

		tbl, err := m.importService.Read(importer.File{
			Reader:   f,
			Name:     filepath.Base(path),
			SourceID: req.SourceID,
			Profile:  req.Profile,
		})
		if err != nil {
			return previewMsg{err: err}
		}

		req.Headers = tbl.Header
		req.Rows = tbl.Rows
		if req.Rows == nil {
			req.Rows = [][]string{}
		}

		ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
		defer cancel()

		p, err := m.importService.Preview(ctx, req)
		if err != nil {
			return previewMsg{err: err}
		}

		return previewMsg{headers: req.Headers, rows: req.Rows, preview: p}
	}
}

func (m ImportModel) importCmd() tea.Cmd {
	req := m.request()
	req.Headers = m.headers
	req.Rows = m.rows
	req.Mapping = m.preview.Mapping

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
		defer cancel()

		out, err := m.importService.Import(ctx, req)

		return importDoneMsg{outcome: out, err: err}
	}
}
