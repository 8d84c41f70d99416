package view

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Timeframe is a date range preset for browsing statements.
type Timeframe int

const (
	TimeframeThisMonth Timeframe = iota
	TimeframeLastMonth
	TimeframeLastQuarter
	TimeframeThisYear
	TimeframeAll
	TimeframeCustom
)

func (t Timeframe) String() string {
	switch t {
	case TimeframeThisMonth:
		return "This Month"
	case TimeframeLastMonth:
		return "Last Month"
	case TimeframeLastQuarter:
		return "Last 3 Months"
	case TimeframeThisYear:
		return "This Year"
	case TimeframeAll:
		return "All Time"
	case TimeframeCustom:
		return "Custom Range"
	}

	return "Unknown"
}

// dateRange resolves a preset relative to now. Both bounds are whole days in UTC, matching the
// calendar dates transactions carry.
func (t Timeframe) dateRange(now time.Time) (time.Time, time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	switch t {
	case TimeframeLastMonth:
		return month.AddDate(0, -1, 0), month.AddDate(0, 0, -1)
	case TimeframeLastQuarter:
		return month.AddDate(0, -2, 0), today
	case TimeframeThisYear:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), today
	}

	return month, today
}

// TimeframeSelectedMsg carries the chosen inclusive range. Start and End are zero when All is
// set.
type TimeframeSelectedMsg struct {
	Start time.Time
	End   time.Time
	All   bool
}

type timeframeState int

const (
	timeframeStateSelect timeframeState = iota
	timeframeStateCustom
)

// TimeframePicker selects a preset or a custom range.
type TimeframePicker struct {
	state    timeframeState
	selected Timeframe
	first    Timeframe
	now      func() time.Time

	startInput textinput.Model
	endInput   textinput.Model
	focusIndex int

	err error
}

func NewTimeframePicker(first Timeframe) TimeframePicker {
	si := textinput.New()
	si.Placeholder = time.DateOnly
	si.CharLimit = len(time.DateOnly)
	si.Width = 12
	si.Prompt = "From: "

	ei := textinput.New()
	ei.Placeholder = time.DateOnly
	ei.CharLimit = len(time.DateOnly)
	ei.Width = 12
	ei.Prompt = "To:   "

	return TimeframePicker{
		selected:   first,
		first:      first,
		now:        time.Now,
		startInput: si,
		endInput:   ei,
	}
}

func (m TimeframePicker) Init() tea.Cmd {
	return nil
}

func (m TimeframePicker) Update(msg tea.Msg) (TimeframePicker, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		if m.state == timeframeStateCustom {
			return m.updateCustom(keyMsg)
		}

		return m.updateSelect(keyMsg)
	}

	return m, nil
}

func (m TimeframePicker) updateSelect(msg tea.KeyMsg) (TimeframePicker, tea.Cmd) {
	switch msg.Type {
	case tea.KeyUp:
		if m.selected > m.first {
			m.selected--
		}
	case tea.KeyDown:
		if m.selected < TimeframeCustom {
			m.selected++
		}
	case tea.KeyEnter:
		switch m.selected {
		case TimeframeCustom:
			m.state = timeframeStateCustom
			m.focusIndex = 0
			m.startInput.Focus()

			return m, textinput.Blink
		case TimeframeAll:
			return m, selected(TimeframeSelectedMsg{All: true})
		}

		start, end := m.selected.dateRange(m.now())

		return m, selected(TimeframeSelectedMsg{Start: start, End: end})
	}

	return m, nil
}

func (m TimeframePicker) updateCustom(msg tea.KeyMsg) (TimeframePicker, tea.Cmd) {
	switch msg.String() {
	case "tab", "shift+tab":
		m.focusIndex = 1 - m.focusIndex
		m.startInput.Blur()
		m.endInput.Blur()

		if m.focusIndex == 0 {
			m.startInput.Focus()
		} else {
			m.endInput.Focus()
		}

		return m, textinput.Blink

	case "enter":
		start, err := time.Parse(time.DateOnly, m.startInput.Value())
		if err != nil {
			m.err = errors.New("invalid start date (YYYY-MM-DD)")
			return m, nil
		}

		end, err := time.Parse(time.DateOnly, m.endInput.Value())
		if err != nil {
			m.err = errors.New("invalid end date (YYYY-MM-DD)")
			return m, nil
		}

		if end.Before(start) {
			m.err = errors.New("end date is before start date")
			return m, nil
		}

		m.err = nil

		return m, selected(TimeframeSelectedMsg{Start: start, End: end})

	case "esc":
		m.state = timeframeStateSelect
		m.err = nil

		return m, nil
	}

	var cmds [2]tea.Cmd
	m.startInput, cmds[0] = m.startInput.Update(msg)
	m.endInput, cmds[1] = m.endInput.Update(msg)

	return m, tea.Batch(cmds[:]...)
}

func selected(msg TimeframeSelectedMsg) tea.Cmd {
	return func() tea.Msg { return msg }
}

func (m TimeframePicker) View() string {
	errStr := ""
	if m.err != nil {
		errStr = errorStyle.Render(fmt.Sprintf("\n\nError: %v", m.err))
	}

	if m.state == timeframeStateCustom {
		return fmt.Sprintf(
			"Custom range:\n\n%s\n%s\n\n(Enter to confirm, Tab to switch, Esc to back)%s",
			m.startInput.View(),
			m.endInput.View(),
			errStr,
		)
	}

	s := "Select timeframe:\n\n"
	for tf := m.first; tf <= TimeframeCustom; tf++ {
		cursor := " "
		if m.selected == tf {
			cursor = ">"
		}

		s += fmt.Sprintf("%s %s\n", cursor, tf)
	}

	return s + "\n(Enter to select, Esc to back)" + errStr
}

// IsSelecting reports whether the picker shows the preset list rather than custom inputs.
func (m TimeframePicker) IsSelecting() bool {
	return m.state == timeframeStateSelect
}

func (m *TimeframePicker) Reset() {
	m.state = timeframeStateSelect
	m.selected = m.first
	m.err = nil
	m.startInput.SetValue("")
	m.endInput.SetValue("")
}
