package view

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/tally/internal/rules"
)

type rulesState int

const (
	rulesStateBrowse rulesState = iota
	rulesStateCreate
)

type ruleFields struct {
	field     rules.Field
	matchType rules.MatchType
	pattern   string
	target    string
}

// RulesModel lists the unit and category rules in evaluation order and edits them.
type RulesModel struct {
	CommonModel
	rulesService *rules.Service

	state  rulesState
	kind   rules.Kind
	table  table.Model
	rules  []rules.Rule
	form   *huh.Form
	fields *ruleFields

	status string
	err    error
}

func NewRulesModel(svc *rules.Service) RulesModel {
	return RulesModel{
		rulesService: svc,
		kind:         rules.KindCategory,
		table: newTable([]table.Column{
			{Title: "#", Width: 4},
			{Title: "ID", Width: 6},
			{Title: "Field", Width: 16},
			{Title: "Match", Width: 12},
			{Title: "Pattern", Width: 30},
			{Title: "Category", Width: 8},
			{Title: "Active", Width: 6},
		}, 15),
		fields: &ruleFields{},
	}
}

func (m RulesModel) Title() string { return "Rules" }

func (m RulesModel) ShortHelp() string {
	if m.state == rulesStateCreate {
		return "Navigate form | Esc: cancel"
	}

	return "Esc: back | Tab: unit/category | n: new | Space: toggle | K/J: move up/down"
}

func (m RulesModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m RulesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadRulesMsg:
		if msg.kind != m.kind {
			return m, nil
		}

		m.err = msg.err
		if msg.err == nil {
			m.rules = msg.rules
			m.refreshTable()
		}

		return m, nil

	case ruleSavedMsg:
		if msg.err != nil {
			m.status = errorStyle.Render(fmt.Sprintf("Error: %v", msg.err))
		} else {
			m.status = msg.status
		}

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 10)
		return m, nil
	}

	if m.state == rulesStateCreate {
		return m.updateCreate(msg)
	}

	return m.updateBrowse(msg)
}

func (m RulesModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "tab":
			if m.kind == rules.KindUnit {
				m.kind = rules.KindCategory
			} else {
				m.kind = rules.KindUnit
			}

			return m.switchKind()
		case "n":
			return m.enterCreate()
		case " ":
			return m, m.toggleCmd()
		case "K":
			return m.move(-1)
		case "J":
			return m.move(1)
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m RulesModel) switchKind() (tea.Model, tea.Cmd) {
	cols := m.table.Columns()
	cols[5].Title = strings.ToUpper(string(m.kind[:1])) + string(m.kind[1:])

	m.table.SetColumns(cols)
	m.rules = nil
	m.table.SetRows(nil)
	m.status = ""

	return m, m.loadCmd()
}

func (m RulesModel) enterCreate() (tea.Model, tea.Cmd) {
	*m.fields = ruleFields{field: rules.FieldDescription, matchType: rules.MatchContains}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[rules.Field]().
				Title("Field").
				Options(
					huh.NewOption("Description", rules.FieldDescription),
					huh.NewOption("Source category", rules.FieldSourceCategory),
					huh.NewOption("Source", rules.FieldSource),
				).
				Value(&m.fields.field),

			huh.NewSelect[rules.MatchType]().
				Title("Match").
				Options(
					huh.NewOption("Contains", rules.MatchContains),
					huh.NewOption("Starts with", rules.MatchStartsWith),
					huh.NewOption("Exact", rules.MatchExact),
					huh.NewOption("Regex", rules.MatchRegex),
				).
				Value(&m.fields.matchType),

			huh.NewInput().
				Title("Pattern").
				Value(&m.fields.pattern).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("pattern cannot be empty")
					}

					return nil
				}),

			huh.NewInput().
				Title(fmt.Sprintf("Target %s ID", m.kind)).
				Value(&m.fields.target).
				Validate(func(s string) error {
					if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil || id <= 0 {
						return errors.New("target must be a positive number")
					}

					return nil
				}),
		),
	).WithWidth(45).WithShowHelp(false)

	m.state = rulesStateCreate
	m.table.Blur()

	return m, m.form.Init()
}

func (m RulesModel) updateCreate(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = rulesStateBrowse
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

	m.state = rulesStateBrowse
	m.form = nil
	m.table.Focus()

	return m, m.createCmd()
}

func (m RulesModel) View() string {
	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	unit, category := string(rules.KindUnit), string(rules.KindCategory)
	if m.kind == rules.KindUnit {
		unit = activeStyle(unit)
	} else {
		category = activeStyle(category)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(fmt.Sprintf("Rules: %s | %s", unit, category)),
		framed(m.table.View()),
	)

	if m.state == rulesStateCreate && m.form != nil {
		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(48).
			Render(fmt.Sprintf("New %s rule\n\n%s", m.kind, m.form.View()))

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.status != "" {
		content = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m *RulesModel) refreshTable() {
	rows := make([]table.Row, len(m.rules))
	for i, r := range m.rules {
		active := "yes"
		if !r.Active {
			active = "no"
		}

		rows[i] = table.Row{
			strconv.Itoa(i + 1),
			strconv.FormatInt(r.ID, 10),
			string(r.Field),
			string(r.MatchType),
			r.Pattern,
			strconv.FormatInt(r.TargetID, 10),
			active,
		}
	}

	m.table.SetRows(rows)
}

func (m RulesModel) selected() (rules.Rule, bool) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.rules) {
		return rules.Rule{}, false
	}

	return m.rules[idx], true
}

// Messages

type loadRulesMsg struct {
	kind  rules.Kind
	rules []rules.Rule
	err   error
}

type ruleSavedMsg struct {
	status string
	err    error
}

func (m RulesModel) loadCmd() tea.Cmd {
	kind := m.kind

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		list, err := m.rulesService.List(ctx, kind)

		return loadRulesMsg{kind: kind, rules: list, err: err}
	}
}

func (m RulesModel) createCmd() tea.Cmd {
	target, _ := strconv.ParseInt(strings.TrimSpace(m.fields.target), 10, 64)

	r := rules.Rule{
		Kind:      m.kind,
		Field:     m.fields.field,
		Pattern:   strings.TrimSpace(m.fields.pattern),
		MatchType: m.fields.matchType,
		TargetID:  target,
		Priority:  len(m.rules),
		Active:    true,
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		if err := m.rulesService.Create(ctx, &r); err != nil {
			return ruleSavedMsg{err: err}
		}

		return ruleSavedMsg{status: fmt.Sprintf("Created %s rule %d.", r.Kind, r.ID)}
	}
}

func (m RulesModel) toggleCmd() tea.Cmd {
	r, ok := m.selected()
	if !ok {
		return nil
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		if err := m.rulesService.SetActive(ctx, r.Kind, r.ID, !r.Active); err != nil {
			return ruleSavedMsg{err: err}
		}

		return ruleSavedMsg{status: fmt.Sprintf("Rule %d active: %t.", r.ID, !r.Active)}
	}
}

// move swaps the selected rule with its neighbour and stores the new order.
func (m RulesModel) move(delta int) (tea.Model, tea.Cmd) {
	idx := m.table.Cursor()
	to := idx + delta

	if idx < 0 || idx >= len(m.rules) || to < 0 || to >= len(m.rules) {
		return m, nil
	}

	ids := make([]int64, len(m.rules))
	for i, r := range m.rules {
		ids[i] = r.ID
	}

	ids[idx], ids[to] = ids[to], ids[idx]
	kind := m.kind

	m.table.SetCursor(to)

	return m, func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		if err := m.rulesService.Reorder(ctx, kind, ids); err != nil {
			return ruleSavedMsg{err: err}
		}

		return ruleSavedMsg{status: "Order saved."}
	}
}
