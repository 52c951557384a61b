package viewer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/sldview/internal/diagram"
	"github.com/smileynet/sldview/internal/reloader"
)

// stripANSI removes ANSI escape sequences from a string.
func stripANSI(s string) string {
	var out []byte
	i := 0
	for i < len(s) {
		if s[i] == '\x1b' && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && (s[j] < 'A' || s[j] > 'Z') && (s[j] < 'a' || s[j] > 'z') {
				j++
			}
			if j < len(s) {
				j++
			}
			i = j
		} else {
			out = append(out, s[i])
			i++
		}
	}
	return string(out)
}

// containsPlainText checks if s contains sub after stripping ANSI escapes.
func containsPlainText(s, sub string) bool {
	return strings.Contains(stripANSI(s), sub)
}

func collectKeys(bindings []key.Binding) []string {
	var keys []string
	for _, b := range bindings {
		keys = append(keys, b.Keys()...)
	}
	return keys
}

func containsKey(keys []string, want string) bool {
	for _, k := range keys {
		if k == want {
			return true
		}
	}
	return false
}

type testRuntime struct{}

func (testRuntime) Name() string { return "test" }

func (testRuntime) Fetch(context.Context, string) (diagram.Diagram, error) {
	return diagram.Diagram{}, nil
}

// fakeLoader serves canned diagrams and records the ids it was asked for.
type fakeLoader struct {
	mu       sync.Mutex
	diagrams map[string]diagram.Diagram
	fail     map[string]error
	calls    []string
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		diagrams: map[string]diagram.Diagram{
			"VL1": {ID: "VL1", SVG: "<svg>one</svg>", Metadata: diagram.Metadata{
				Nodes: []diagram.Node{
					{ID: "b1", ComponentType: "BREAKER", EquipmentID: "BRK_1", Open: true},
					{ID: "d1", ComponentType: "DISCONNECTOR", EquipmentID: "DSC_1"},
					{ID: "bb1", ComponentType: "BUSBAR_SECTION"},
				},
				FeederInfos: []diagram.FeederInfo{{ID: "f1", ComponentType: "LINE", EquipmentID: "LINE_A", Side: "ONE"}},
			}},
			"VL2": {ID: "VL2", SVG: "<svg>two</svg>"},
		},
		fail: make(map[string]error),
	}
}

func (l *fakeLoader) Load(_ context.Context, rt diagram.Runtime, id string) (diagram.Diagram, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, id)
	if rt == nil {
		return diagram.Diagram{}, diagram.ErrNoRuntime
	}
	if err, ok := l.fail[id]; ok {
		return diagram.Diagram{}, err
	}
	d, ok := l.diagrams[id]
	if !ok {
		return diagram.Diagram{}, diagram.ErrNotFound
	}
	return d, nil
}

func (l *fakeLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

func newTestModel(l *fakeLoader, opts ...Option) Model {
	machine := reloader.NewMachine(l, reloader.WithRuntime(testRuntime{}), reloader.WithDwell(time.Hour))
	m := NewModel(machine, opts...)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 90, Height: 40})
	return updated.(Model)
}

// drain runs cmd and feeds every resulting message back into the model
// until no commands remain. Spinner, blink and dwell ticks are skipped to
// avoid waiting on timers.
func drain(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 100 {
			t.Fatal("drain: too many steps")
		}
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		msg := runWithTimeout(c)
		switch msg := msg.(type) {
		case nil, timedOut, spinner.TickMsg:
			continue
		case tea.BatchMsg:
			queue = append(queue, msg...)
			continue
		}
		updated, next := m.Update(msg)
		m = updated.(Model)
		queue = append(queue, next)
	}
	return m
}

// timedOut stands in for a command that waits on a timer.
type timedOut struct{}

func runWithTimeout(c tea.Cmd) tea.Msg {
	ch := make(chan tea.Msg, 1)
	go func() { ch <- c() }()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(50 * time.Millisecond):
		return timedOut{}
	}
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

// typeID opens the id prompt, types id and submits it.
func typeID(t *testing.T, m Model, id string) Model {
	t.Helper()
	updated, _ := m.Update(keyRune('/'))
	m = updated.(Model)
	for _, r := range id {
		updated, _ = m.Update(keyRune(r))
		m = updated.(Model)
	}
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return drain(t, updated.(Model), cmd)
}
