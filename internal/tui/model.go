package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/jxwalker/docfetch/internal/coordinator"
	"github.com/jxwalker/docfetch/internal/engine"
	"github.com/jxwalker/docfetch/internal/projection"
)

type Theme struct {
	title       lipgloss.Style
	label       lipgloss.Style
	section     lipgloss.Style
	row         lipgloss.Style
	rowSelected lipgloss.Style
	busy        lipgloss.Style
	ok          lipgloss.Style
	bad         lipgloss.Style
	border      lipgloss.Style
	footer      lipgloss.Style
}

func defaultTheme() Theme {
	return Theme{
		title:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),
		label:       lipgloss.NewStyle().Faint(true),
		section:     lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true),
		row:         lipgloss.NewStyle(),
		rowSelected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		busy:        lipgloss.NewStyle().Foreground(lipgloss.Color("178")),
		ok:          lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		bad:         lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		border:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1),
		footer:      lipgloss.NewStyle().Faint(true),
	}
}

type tickMsg time.Time

type refreshMsg struct{}

// item is one visible row together with its section.
type item struct {
	section string
	row     projection.Row
}

type Model struct {
	coord    *coordinator.Coordinator
	eng      engine.Engine
	inbox    *Inbox
	logs     *LogBuffer
	th       Theme
	w, h     int
	interval time.Duration

	selected int
	// shown is the layer opened with enter; D acts on it
	shown *engine.Descriptor

	filterOn    bool
	filterInput textinput.Model
	filter      string

	showHelp     bool
	confirmClear bool
	spin         spinner.Model
	refreshErr   error
	status       string
}

// New builds the TUI. inbox must be the Executor the coordinator was created with.
func New(coord *coordinator.Coordinator, eng engine.Engine, inbox *Inbox, logs *LogBuffer, interval time.Duration) *Model {
	if interval <= 0 {
		interval = time.Second
	}
	if logs == nil {
		logs = NewLogBuffer(0)
	}
	ti := textinput.New()
	ti.Placeholder = "filter documents"
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	m := &Model{
		coord:       coord,
		eng:         eng,
		inbox:       inbox,
		logs:        logs,
		th:          defaultTheme(),
		interval:    interval,
		filterInput: ti,
		spin:        sp,
	}
	coord.SetOnRefreshDone(func(err error) { m.refreshErr = err })
	coord.Projection().Subscribe(m.onChange)
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.inbox.next(),
		m.tick(),
		m.spin.Tick,
		func() tea.Msg { return refreshMsg{} },
	)
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// onChange keeps the cursor and the open layer consistent with the list.
func (m *Model) onChange(c projection.Change) {
	if m.shown != nil {
		if _, ok := m.coord.Projection().FindRow(projection.ByDescriptor(m.shown)); !ok {
			m.shown = nil
		}
	}
	m.clampSelection()
}

func (m *Model) clampSelection() {
	n := len(m.visible())
	if m.selected >= n {
		m.selected = n - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

// visible returns the rows matching the current filter in display order.
func (m *Model) visible() []item {
	var out []item
	m.coord.Projection().Each(func(_ projection.Position, s projection.Section, r projection.Row) bool {
		if m.filter == "" || fuzzy.MatchFold(m.filter, s.Title) || fuzzy.MatchFold(m.filter, r.Title()) {
			out = append(out, item{section: s.Title, row: r})
		}
		return true
	})
	return out
}

func (m *Model) current() (item, bool) {
	rows := m.visible()
	if m.selected < 0 || m.selected >= len(rows) {
		return item{}, false
	}
	return rows[m.selected], true
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runMsg:
		msg()
		return m, m.inbox.next()
	case tickMsg:
		return m, m.tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case refreshMsg:
		m.refreshErr = nil
		m.coord.Refresh()
		return m, nil
	case tea.WindowSizeMsg:
		m.w, m.h = msg.Width, msg.Height
		return m, nil
	case tea.KeyMsg:
		if m.filterOn {
			return m.updateFilter(msg)
		}
		if m.confirmClear {
			return m.updateConfirm(msg)
		}
		return m.updateNormal(msg)
	}
	return m, nil
}

func (m *Model) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.inbox.Close()
		return m, tea.Quit
	case "?":
		m.showHelp = !m.showHelp
	case "j", "down":
		m.selected++
		m.clampSelection()
	case "k", "up":
		m.selected--
		m.clampSelection()
	case "enter":
		if it, ok := m.current(); ok {
			m.shown = it.row.Descriptor
			m.coord.EnsureDownloadStarted(it.row.Descriptor)
		}
	case "r":
		m.refreshErr = nil
		m.coord.Refresh()
	case "D":
		d := m.shown
		if d == nil {
			if it, ok := m.current(); ok {
				d = it.row.Descriptor
			}
		}
		if d == nil {
			return m, nil
		}
		if err := m.coord.RemoveDocumentStorage(d); err != nil {
			m.status = "Remove failed: " + err.Error()
		} else {
			m.status = "Removed local copy of " + d.String()
		}
	case "X":
		m.confirmClear = true
	case "/":
		m.filterOn = true
		m.filterInput.SetValue(m.filter)
		m.filterInput.Focus()
	case "esc":
		switch {
		case m.showHelp:
			m.showHelp = false
		case m.shown != nil:
			m.shown = nil
		case m.filter != "":
			m.filter = ""
			m.clampSelection()
		}
	}
	return m, nil
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterOn = false
		m.filterInput.Blur()
		return m, nil
	case tea.KeyEnter:
		m.filter = strings.TrimSpace(m.filterInput.Value())
		m.filterOn = false
		m.filterInput.Blur()
		m.selected = 0
		m.clampSelection()
		return m, nil
	}
	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	return m, cmd
}

func (m *Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.confirmClear = false
	if msg.String() != "y" {
		m.status = "Clear cancelled"
		return m, nil
	}
	m.shown = nil
	if err := m.coord.ClearLocalStorage(); err != nil {
		m.status = "Clear failed: " + err.Error()
		return m, nil
	}
	m.status = "Cleared all local storage"
	return m, nil
}
