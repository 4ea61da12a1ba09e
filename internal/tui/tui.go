// Package tui is the interactive agenda.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/Makepad-fr/agenda/internal/agenda"
	"github.com/Makepad-fr/agenda/internal/auth"
	"github.com/Makepad-fr/agenda/internal/model"
	"github.com/Makepad-fr/agenda/internal/remote"
	"github.com/Makepad-fr/agenda/internal/ui"
)

type mode int

const (
	modeBrowse mode = iota
	modeAddTask
	modeAddEvent
)

// Messages carrying the outcome of engine calls made off the UI loop.
type (
	eventsLoadedMsg struct{ err error }
	deletedMsg      struct {
		ref model.Ref
		err error
	}
	eventAddedMsg struct {
		item model.Item
		err  error
	}
)

// listItem adapts model.Item to list.Item.
type listItem struct{ model.Item }

func (i listItem) Title() string       { return i.Name }
func (i listItem) Description() string { return "" }
func (i listItem) FilterValue() string { return i.Name }

// itemDelegate renders one item per line.
type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(listItem)
	if !ok {
		return
	}
	prefix := "  "
	if index == m.Index() {
		prefix = ui.Current().Selected.Render("> ")
	}
	fmt.Fprintln(w, prefix+ui.ItemRow(it.Item))
}

type keyMap struct {
	toggle, remove, addTask, addEvent key.Binding
	filter, reload, quit              key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		toggle:   key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle")),
		remove:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		addTask:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add task")),
		addEvent: key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "add event")),
		filter:   key.NewBinding(key.WithKeys("f", "1", "2", "3"), key.WithHelp("f/1/2/3", "filter")),
		reload:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) help() []key.Binding {
	return []key.Binding{k.toggle, k.remove, k.addTask, k.addEvent, k.filter, k.reload}
}

type Options struct {
	Logger *zap.Logger
	Now    func() time.Time
}

// Model is the Bubble Tea model. The engine owns the agenda state; the
// model only mirrors its filtered view.
type Model struct {
	ctx    context.Context
	engine *agenda.Engine
	log    *zap.Logger
	now    func() time.Time

	list    list.Model
	spinner spinner.Model
	input   textinput.Model
	keys    keyMap

	mode    mode
	pending int
	status  string
	failed  bool
}

// New builds the model. Remote results are applied with ctx; once it is
// cancelled they are dropped.
func New(ctx context.Context, e *agenda.Engine, opts Options) Model {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	keys := newKeyMap()

	l := list.New(nil, itemDelegate{}, 0, 0)
	l.SetShowHelp(true)
	l.SetShowPagination(true)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = ui.Current().Title
	l.Styles.HelpStyle = ui.Current().Muted
	l.Styles.PaginationStyle = ui.Current().Muted
	l.FilterInput.Prompt = "/ "
	l.SetStatusBarItemName("item", "items")
	l.AdditionalShortHelpKeys = keys.help
	l.AdditionalFullHelpKeys = keys.help

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ui.Current().Accent

	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 200

	m := Model{
		ctx:     ctx,
		engine:  e,
		log:     log.Named("tui"),
		now:     now,
		list:    l,
		spinner: sp,
		input:   ti,
		keys:    keys,
		pending: 1,
	}
	m.refresh()
	return m
}

// Run shows the agenda until the user quits.
func Run(ctx context.Context, e *agenda.Engine, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(ctx, e, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadEvents())
}

func (m Model) loadEvents() tea.Cmd {
	ctx, e := m.ctx, m.engine
	return func() tea.Msg { return eventsLoadedMsg{err: e.LoadEvents(ctx)} }
}

func (m Model) delete(ref model.Ref) tea.Cmd {
	ctx, e := m.ctx, m.engine
	return func() tea.Msg { return deletedMsg{ref: ref, err: e.Delete(ctx, ref)} }
}

func (m Model) addEvent(in eventInput) tea.Cmd {
	ctx, e := m.ctx, m.engine
	return func() tea.Msg {
		it, err := e.AddEvent(ctx, in.title, in.when, in.description)
		return eventAddedMsg{item: it, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventsLoadedMsg:
		m.pending--
		if msg.err != nil {
			m.fail("load events", msg.err)
		} else {
			m.notify("Agenda up to date")
		}
		return m, m.refresh()

	case deletedMsg:
		m.pending--
		if msg.err != nil {
			m.fail("delete "+msg.ref.String(), msg.err)
		} else {
			m.notify("Deleted")
		}
		return m, m.refresh()

	case eventAddedMsg:
		m.pending--
		if msg.err != nil {
			m.fail("add event", msg.err)
		} else {
			m.notify("Added " + msg.item.Name)
		}
		return m, m.refresh()

	case tea.KeyMsg:
		if m.mode != modeBrowse {
			return m.updateInput(msg)
		}
		if m.list.FilterState() == list.Filtering {
			break
		}
		return m.updateBrowse(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.toggle):
		it, ok := m.selected()
		if !ok {
			return m, nil
		}
		toggled, err := m.engine.ToggleCompletion(it.Ref())
		switch {
		case err != nil:
			m.fail("toggle "+it.Ref().String(), err)
		case toggled.Kind == model.KindEvent:
			m.notify(ui.EventCompletionNote)
		default:
			m.status, m.failed = "", false
		}
		return m, m.refresh()

	case key.Matches(msg, m.keys.remove):
		it, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.pending++
		return m, m.delete(it.Ref())

	case key.Matches(msg, m.keys.addTask):
		return m.startInput(modeAddTask, "name | YYYY-MM-DD HH:MM | priority")

	case key.Matches(msg, m.keys.addEvent):
		return m.startInput(modeAddEvent, "title | YYYY-MM-DD HH:MM | description")

	case key.Matches(msg, m.keys.filter):
		f := m.engine.Filter().Next()
		switch msg.String() {
		case "1", "2", "3":
			f = model.Filters[msg.String()[0]-'1']
		}
		m.engine.SetFilter(f)
		return m, m.refresh()

	case key.Matches(msg, m.keys.reload):
		m.pending++
		return m, m.loadEvents()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) startInput(md mode, placeholder string) (tea.Model, tea.Cmd) {
	m.mode = md
	m.status, m.failed = "", false
	m.input.SetValue("")
	m.input.Placeholder = placeholder
	cmd := m.input.Focus()
	return m, cmd
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.mode = modeBrowse
		m.input.Blur()
		return m, nil
	case "enter":
		return m.submit()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	raw := m.input.Value()
	switch m.mode {
	case modeAddTask:
		in, err := parseTaskInput(raw, m.now())
		if err != nil {
			m.status, m.failed = err.Error(), true
			return m, nil
		}
		it, err := m.engine.AddTask(in.name, in.when, in.priority)
		m.closeInput()
		if err != nil {
			m.fail("add task", err)
		} else {
			m.notify("Added " + it.Name)
		}
		return m, m.refresh()

	case modeAddEvent:
		in, err := parseEventInput(raw, m.now())
		if err != nil {
			m.status, m.failed = err.Error(), true
			return m, nil
		}
		m.closeInput()
		m.pending++
		return m, m.addEvent(in)
	}
	return m, nil
}

func (m *Model) closeInput() {
	m.mode = modeBrowse
	m.input.SetValue("")
	m.input.Blur()
}

func (m Model) selected() (model.Item, bool) {
	it, ok := m.list.SelectedItem().(listItem)
	return it.Item, ok
}

// refresh mirrors the engine's filtered view into the list.
func (m *Model) refresh() tea.Cmd {
	items := m.engine.Items()
	li := make([]list.Item, 0, len(items))
	for _, it := range items {
		li = append(li, listItem{it})
	}
	done, pending := agenda.Stats(items)
	m.list.Title = ui.Header(m.engine.Filter().Title(), done, pending)
	return m.list.SetItems(li)
}

func (m *Model) notify(s string) {
	m.status, m.failed = s, false
}

// fail logs err and shows a short generic message.
func (m *Model) fail(op string, err error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, agenda.ErrClosed):
		return
	}
	m.log.Error(op+" failed", zap.Error(err))
	m.status, m.failed = StatusText(err), true
}

// StatusText is the notification shown for a failed operation.
func StatusText(err error) string {
	var reqErr *remote.RequestError
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return "Not logged in. Run `agenda login`."
	case errors.As(err, &reqErr) && reqErr.Unauthorized():
		return "Session rejected by the server. Run `agenda login`."
	case errors.Is(err, agenda.ErrNotFound):
		return "That item no longer exists."
	case errors.As(err, &reqErr):
		return "The agenda server could not complete the request."
	}
	return "Something went wrong. Details are in the log."
}

func (m Model) View() string {
	content := m.list.View()
	if m.mode != modeBrowse {
		title := "Add task"
		if m.mode == modeAddEvent {
			title = "Add event"
		}
		if m.failed && m.status != "" {
			title += "  " + ui.Current().Error.Render(m.status)
		}
		bar := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ui.Current().BorderColor).
			Padding(0, 1)
		content += "\n" + bar.Render(title+"\n"+m.input.View())
	} else {
		content += "\n" + m.statusLine()
	}
	return ui.PanelString([]string{content})
}

func (m Model) statusLine() string {
	var line string
	if m.pending > 0 {
		line = m.spinner.View() + " "
	}
	switch {
	case m.failed:
		line += ui.Current().Error.Render(m.status)
	case m.status != "":
		line += ui.Current().Muted.Render(m.status)
	case m.pending > 0:
		line += ui.Current().Muted.Render("Working...")
	}
	return line
}
