package view

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/tally/internal/transaction"
)

const listLimit = 500

type listState int

const (
	listStateBrowse listState = iota
	listStateTimeframe
	listStateSource
)

type ListModel struct {
	CommonModel
	txService *transaction.Service

	state     listState
	table     table.Model
	txs       []*transaction.Transaction
	picker    TimeframePicker
	form      *huh.Form
	sourceArg *string

	filter    transaction.ListFilter
	dateLabel string
	loading   bool
	err       error
}

func NewListModel(txSvc *transaction.Service) ListModel {
	t := newTable([]table.Column{
		{Title: "Date", Width: 12},
		{Title: "Source", Width: 6},
		{Title: "Amount", Width: 12},
		{Title: "Description", Width: 40},
		{Title: "Unit", Width: 6},
		{Title: "Category", Width: 8},
		{Title: "Tags", Width: 24},
	}, 15)

	source := ""

	return ListModel{
		txService: txSvc,
		table:     t,
		picker:    NewTimeframePicker(TimeframeThisMonth),
		sourceArg: &source,
		filter:    transaction.ListFilter{Limit: listLimit},
		dateLabel: TimeframeAll.String(),
		loading:   true,
	}
}

func (m ListModel) Title() string { return "Transactions" }

func (m ListModel) ShortHelp() string {
	if m.state != listStateBrowse {
		return "Esc: cancel"
	}

	return "Esc: back | d: date filter | s: source filter | r: refresh"
}

func (m ListModel) Init() tea.Cmd {
	return m.loadTxsCmd()
}

func (m ListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadListMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.txs = msg.txs
			m.refreshTable()
		}

		return m, nil

	case TimeframeSelectedMsg:
		m.state = listStateBrowse
		m.table.Focus()

		if msg.All {
			m.filter.StartDate, m.filter.EndDate = nil, nil
			m.dateLabel = TimeframeAll.String()
		} else {
			m.filter.StartDate, m.filter.EndDate = &msg.Start, &msg.End
			m.dateLabel = fmt.Sprintf("%s to %s", msg.Start.Format("2006-01-02"), msg.End.Format("2006-01-02"))
		}

		m.loading = true

		return m, m.loadTxsCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 10)
		return m, nil
	}

	switch m.state {
	case listStateTimeframe:
		return m.updateTimeframe(msg)
	case listStateSource:
		return m.updateSource(msg)
	}

	return m.updateBrowse(msg)
}

func (m ListModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadTxsCmd()
		case "d":
			m.picker.Reset()
			m.state = listStateTimeframe
			m.table.Blur()

			return m, m.picker.Init()
		case "s":
			return m.enterSourceFilter()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m ListModel) updateTimeframe(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc && m.picker.IsSelecting() {
		m.state = listStateBrowse
		m.table.Focus()

		return m, nil
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)

	return m, cmd
}

func (m ListModel) enterSourceFilter() (tea.Model, tea.Cmd) {
	*m.sourceArg = ""
	if m.filter.SourceID != nil {
		*m.sourceArg = strconv.FormatInt(*m.filter.SourceID, 10)
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Source ID").
				Description("Empty shows every source.").
				Value(m.sourceArg).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}

					if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil || id <= 0 {
						return fmt.Errorf("source id must be a positive number")
					}

					return nil
				}),
		),
	).WithWidth(45).WithShowHelp(false)

	m.state = listStateSource
	m.table.Blur()

	return m, m.form.Init()
}

func (m ListModel) updateSource(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = listStateBrowse
		m.form = nil
		m.table.Focus()

		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	m.filter.SourceID = nil
	if s := strings.TrimSpace(*m.sourceArg); s != "" {
		id, _ := strconv.ParseInt(s, 10, 64)
		m.filter.SourceID = &id
	}

	m.state = listStateBrowse
	m.form = nil
	m.table.Focus()
	m.loading = true

	return m, m.loadTxsCmd()
}

func (m ListModel) View() string {
	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	if m.state == listStateTimeframe {
		return lipgloss.NewStyle().Padding(2).Render(m.picker.View())
	}

	source := "All"
	if m.filter.SourceID != nil {
		source = strconv.FormatInt(*m.filter.SourceID, 10)
	}

	header := fmt.Sprintf(
		"Filter: [d] Date: %s | [s] Source: %s | %d shown",
		activeStyle(m.dateLabel),
		activeStyle(source),
		len(m.txs),
	)

	body := framed(m.table.View())
	if m.loading {
		body = "Loading transactions..."
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		body,
	)

	if m.state == listStateSource && m.form != nil {
		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(48).
			Render(m.form.View())

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m *ListModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.txs))
	for _, tx := range m.txs {
		rows = append(rows, table.Row{
			tx.Date,
			strconv.FormatInt(tx.SourceID, 10),
			FormatAmount(tx.Amount),
			tx.Description,
			FormatRef(tx.UnitID),
			FormatRef(tx.CategoryID),
			FormatTags(tx.Tags),
		})
	}

	m.table.SetRows(rows)
}

// Messages

type loadListMsg struct {
	txs []*transaction.Transaction
	err error
}

func (m ListModel) loadTxsCmd() tea.Cmd {
	filter := m.filter

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		txs, err := m.txService.List(ctx, filter)

		return loadListMsg{txs: txs, err: err}
	}
}
