package viewer

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/sldview/internal/reloader"
)

// helpBarHeight is the number of lines reserved for the help bar at the bottom.
const helpBarHeight = 1

// borderChrome is the number of lines consumed by top + bottom borders.
const borderChrome = 2

// Model is the root Bubble Tea model for the viewer TUI. It embeds the
// reload machine as a sub-model: key presses become reloader events, and the
// machine's own messages (load results, dwell ticks) are routed back to it.
type Model struct {
	machine reloader.Machine
	snap    reloader.Snapshot
	source  string

	mode     Mode
	focus    Focus
	width    int
	height   int
	viewport viewport.Model
	help     help.Model
	spinner  spinner.Model
	input    textinput.Model

	// autoRefresh enables auto-refresh the first time a diagram loads.
	autoRefresh bool
	initCmd     tea.Cmd
}

// Option configures a Model.
type Option func(*Model)

// WithInitialID loads id as soon as the program starts.
func WithInitialID(id string) Option {
	return func(m *Model) {
		var cmd tea.Cmd
		m.machine, cmd = m.machine.Update(reloader.LoadDiagram{ID: id})
		m.initCmd = cmd
	}
}

// WithAutoRefresh turns auto-refresh on once the first diagram is loaded.
func WithAutoRefresh(on bool) Option {
	return func(m *Model) { m.autoRefresh = on }
}

// WithSourceName labels the status pane with where diagrams come from.
func WithSourceName(name string) Option {
	return func(m *Model) { m.source = name }
}

// NewModel creates a viewer Model in browse mode with left-pane focus.
func NewModel(machine reloader.Machine, opts ...Option) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	ti := textinput.New()
	ti.Placeholder = "line or voltage level id"
	ti.Prompt = "id> "
	ti.CharLimit = 128

	m := Model{
		machine:  machine,
		mode:     ModeBrowse,
		focus:    PaneLeft,
		viewport: viewport.New(0, 0),
		help:     help.New(),
		spinner:  s,
		input:    ti,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.sync()
	return m
}

// Init starts the spinner and any initial load.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.initCmd)
}

// Snapshot returns the reloader state the model is displaying.
func (m Model) Snapshot() reloader.Snapshot {
	return m.snap
}

// Update handles incoming messages with mode-based routing.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		_, rightWidth := PaneWidths(msg.Width)
		m.viewport.Width = max(rightWidth-borderChrome, 0)
		m.viewport.Height = m.contentHeight()
		m.input.Width = max(msg.Width-len(m.input.Prompt)-1, 0)
		m.sync()
		return m, nil

	case tea.KeyMsg:
		if m.mode == ModeInput {
			return m.handleInputKey(msg)
		}
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	// Everything else belongs to the machine: its own load results and dwell
	// ticks, or events injected from outside such as reloader.SetRuntime.
	// The input still gets a look for its cursor blink.
	var inputCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	m, cmd := m.apply(msg)
	return m, tea.Batch(cmd, inputCmd)
}

// apply feeds msg to the machine and refreshes the derived view state.
func (m Model) apply(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.machine, cmd = m.machine.Update(msg)

	if m.autoRefresh && m.machine.State() == reloader.StateLoaded {
		m.autoRefresh = false
		var autoCmd tea.Cmd
		m.machine, autoCmd = m.machine.Update(reloader.EnableAutoRefresh{})
		cmd = tea.Batch(cmd, autoCmd)
	}

	m.sync()
	return m, cmd
}

// handleKey processes key messages in browse mode.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	km := BrowseKeyMap()

	switch {
	case key.Matches(msg, km.Quit):
		m.machine.Stop()
		return m, tea.Quit
	case key.Matches(msg, km.Open):
		m.mode = ModeInput
		m.input.SetValue("")
		return m, m.input.Focus()
	case key.Matches(msg, km.Next):
		if id, ok := m.nextCachedID(); ok {
			return m.apply(reloader.LoadDiagram{ID: id})
		}
		return m, nil
	case key.Matches(msg, km.Refresh):
		return m.apply(reloader.ManualRefresh{})
	case key.Matches(msg, km.Auto):
		if m.snap.AutoRefreshEnabled {
			return m.apply(reloader.DisableAutoRefresh{})
		}
		return m.apply(reloader.EnableAutoRefresh{})
	case key.Matches(msg, km.Retry):
		return m.apply(reloader.Retry{})
	case key.Matches(msg, km.Clear):
		return m.apply(reloader.ClearDiagram{})
	case key.Matches(msg, km.ClearCache):
		return m.apply(reloader.ClearCache{})
	case key.Matches(msg, km.Focus):
		if m.focus == PaneLeft {
			m.focus = PaneRight
		} else {
			m.focus = PaneLeft
		}
		return m, nil
	case key.Matches(msg, km.Up), key.Matches(msg, km.Down):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleInputKey processes key messages while typing an id.
func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	km := InputKeyMap()

	switch {
	case key.Matches(msg, km.Submit):
		id := strings.TrimSpace(m.input.Value())
		m.mode = ModeBrowse
		m.input.Blur()
		return m.apply(reloader.LoadDiagram{ID: id})
	case key.Matches(msg, km.Cancel):
		m.mode = ModeBrowse
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// nextCachedID returns the cached id after the current one, wrapping around.
func (m Model) nextCachedID() (string, bool) {
	ids := m.snap.CachedIDs
	if len(ids) == 0 {
		return "", false
	}
	for i, id := range ids {
		if id > m.snap.CurrentID {
			return ids[i], true
		}
	}
	return ids[0], true
}

// sync recomputes the snapshot and the detail viewport content.
func (m *Model) sync() {
	m.snap = m.machine.Snapshot()
	m.viewport.SetContent(renderDetail(m.snap, m.viewport.Width))
}

// contentHeight returns the usable height for pane content,
// accounting for border chrome, the help bar and the id input line.
func (m Model) contentHeight() int {
	return max(m.height-borderChrome-helpBarHeight-1, 1)
}
