package display

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/sldview/internal/reloader"
)

// maxNotices bounds the notice history shown under the status line.
const maxNotices = 5

// Model is the Bubble Tea model for the watch status display.
type Model struct {
	title      string
	snap       reloader.Snapshot
	notices    []string
	spinner    spinner.Model
	done       bool
	err        error
	cancelFunc context.CancelFunc
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithCancelFunc sets the function called when the user quits.
func WithCancelFunc(f context.CancelFunc) ModelOption {
	return func(m *Model) { m.cancelFunc = f }
}

// NewModel creates a Model with the given heading.
func NewModel(title string, opts ...ModelOption) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	m := Model{
		title:   title,
		snap:    reloader.Snapshot{State: reloader.StateIdle},
		spinner: s,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init starts the spinner tick.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SnapshotMsg:
		m.snap = msg.Snapshot
		return m, nil

	case NoticeMsg:
		m.notices = append(m.notices, msg.Text)
		if len(m.notices) > maxNotices {
			m.notices = m.notices[len(m.notices)-maxNotices:]
		}
		return m, nil

	case DoneMsg:
		m.done = true
		return m, tea.Quit

	case ErrorMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.done = true
			if m.cancelFunc != nil {
				m.cancelFunc()
			}
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the status line and recent notices.
func (m Model) View() string {
	var b strings.Builder

	if m.title != "" {
		fmt.Fprintf(&b, "  %s\n\n", m.title)
	}
	fmt.Fprintf(&b, "  %s %s\n", stateIndicator(m.snap, m.spinner.View()), Summary(m.snap))
	if last := m.snap.FormattedLastUpdate(); last != "" {
		fmt.Fprintf(&b, "    updated %s\n", last)
	}
	for _, n := range m.notices {
		fmt.Fprintf(&b, "    · %s\n", n)
	}

	if m.done && m.err != nil {
		fmt.Fprintf(&b, "\n  Error: %s\n", m.err)
	}
	return b.String()
}

// stateIndicator returns the Unicode indicator for a reloader state.
func stateIndicator(s reloader.Snapshot, spinnerView string) string {
	switch {
	case s.IsLoading(), s.IsRefreshing():
		return spinnerView
	case s.IsStale():
		return "!"
	case s.IsLoaded():
		return "✓"
	case s.IsError():
		return "✗"
	case s.IsWaitingForRuntime():
		return "…"
	default:
		return "○"
	}
}
