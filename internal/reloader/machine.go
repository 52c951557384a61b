package reloader

import (
	"context"
	"io"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/sldview/internal/diagram"
)

// DefaultDwell is how long the machine stays loaded before an auto-refresh.
const DefaultDwell = 60 * time.Second

// refreshErrorPrefix marks a soft error recorded when a background refresh fails.
const refreshErrorPrefix = "refresh failed: "

// fetch tracks the single load the machine is waiting on.
type fetch struct {
	seq uint64
	id  string
}

// Machine is the reload state machine. The zero value is not usable; create
// one with NewMachine.
//
// Machine has value semantics like a Bubble Tea model, but copies share the
// cache and fetch bookkeeping: only the Machine most recently returned by
// Update is valid.
type Machine struct {
	state       State
	currentID   string
	diagram     *diagram.Diagram
	lastError   string
	lastUpdate  time.Time
	autoRefresh bool
	runtime     diagram.Runtime
	cache       *diagram.Cache

	loader diagram.Loader
	dwell  time.Duration
	now    func() time.Time
	logger *slog.Logger

	seq      uint64
	inflight *fetch
	// issued maps an id to the newest unresolved fetch issued for it.
	issued map[string]uint64
	// cancels holds the context cancel func of every unresolved fetch,
	// including superseded ones, keyed by sequence.
	cancels  map[uint64]context.CancelFunc
	dwellGen uint64

	cacheCapacity int
}

// Option configures a Machine.
type Option func(*Machine)

// NewMachine creates a Machine in the idle state that loads through loader.
func NewMachine(loader diagram.Loader, opts ...Option) Machine {
	m := Machine{
		state:         StateIdle,
		loader:        loader,
		dwell:         DefaultDwell,
		now:           time.Now,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		issued:        make(map[string]uint64),
		cancels:       make(map[uint64]context.CancelFunc),
		cacheCapacity: diagram.DefaultCacheCapacity,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.cache = diagram.NewCache(m.cacheCapacity)
	return m
}

// WithDwell overrides the auto-refresh dwell period.
func WithDwell(d time.Duration) Option {
	return func(m *Machine) { m.dwell = d }
}

// WithCacheCapacity bounds the diagram cache. Zero means unbounded.
func WithCacheCapacity(n int) Option {
	return func(m *Machine) { m.cacheCapacity = n }
}

// WithLogger sets the logger used for transition and failure records.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithClock overrides the time source used for lastUpdate.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithRuntime starts the machine with a runtime already injected.
func WithRuntime(rt diagram.Runtime) Option {
	return func(m *Machine) { m.runtime = rt }
}

// Init returns the initial command.
func (m Machine) Init() tea.Cmd {
	return nil
}

// State returns the current state.
func (m Machine) State() State {
	return m.state
}

// Update applies one message and returns the next machine and any command
// to run. Messages the machine does not know are ignored so a Machine can
// sit inside a larger Bubble Tea model.
func (m Machine) Update(msg tea.Msg) (Machine, tea.Cmd) {
	from := m.state
	next, cmd := m.transition(msg)
	if next.state != from {
		next.logger.Debug("reloader transition",
			"from", string(from), "to", string(next.state), "id", next.currentID)
	}
	return next, cmd
}

func (m Machine) transition(msg tea.Msg) (Machine, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadDiagram:
		return m.loadDiagram(msg.ID)
	case ClearDiagram:
		return m.clearDiagram(), nil
	case ClearCache:
		m.cache.Clear()
		return m, nil
	case Retry:
		return m.retry()
	case SetRuntime:
		return m.setRuntime(msg.Runtime)
	case EnableAutoRefresh:
		return m.enableAutoRefresh()
	case DisableAutoRefresh:
		m.autoRefresh = false
		return m, nil
	case ManualRefresh:
		return m.manualRefresh()
	case loadResultMsg:
		return m.applyResult(msg)
	case dwellElapsedMsg:
		return m.dwellElapsed(msg)
	}
	return m, nil
}

// loadDiagram resolves a selection in order: same id, cache hit, runtime
// available, defer until a runtime arrives.
func (m Machine) loadDiagram(id string) (Machine, tea.Cmd) {
	if id == "" {
		return m, nil
	}

	switch m.state {
	case StateIdle:
		switch {
		case id == m.currentID:
			return m, nil
		case m.cache.Has(id):
			return m.loadFromCache(id)
		}
		m.currentID = id
		return m.startLoad()

	case StateWaitingForRuntime:
		if m.cache.Has(id) {
			return m.loadFromCache(id)
		}
		m.currentID = id
		return m.enterWaiting(), nil

	case StateLoaded:
		if id == m.currentID {
			return m, nil
		}
		// Switching subjects must not keep polling the old one.
		m.autoRefresh = false
		if m.cache.Has(id) {
			return m.loadFromCache(id)
		}
		m.currentID = id
		return m.startLoad()

	case StateError:
		if m.cache.Has(id) {
			return m.loadFromCache(id)
		}
		m.currentID = id
		return m.startLoad()
	}

	// loading and refreshing finish their fetch first.
	m.logger.Debug("reloader ignored load while busy", "state", string(m.state), "id", id)
	return m, nil
}

func (m Machine) loadFromCache(id string) (Machine, tea.Cmd) {
	d, _ := m.cache.Get(id)
	m.currentID = id
	m.diagram = &d
	m.lastError = ""
	m.lastUpdate = d.LoadedAt
	return m.enterLoaded()
}

// startLoad enters loading when a runtime is available, otherwise defers.
func (m Machine) startLoad() (Machine, tea.Cmd) {
	if m.runtime == nil {
		return m.enterWaiting(), nil
	}
	m.state = StateLoading
	m.diagram = nil
	m.lastError = ""
	return m.issueFetch()
}

func (m Machine) enterWaiting() Machine {
	m.state = StateWaitingForRuntime
	m.diagram = nil
	m.lastError = ""
	return m
}

func (m Machine) startRefresh() (Machine, tea.Cmd) {
	m.state = StateRefreshing
	m.lastError = ""
	return m.issueFetch()
}

// issueFetch returns the command that runs the loader for the current id.
// The id, runtime and sequence are captured now so a late result is applied
// to the id it was requested for.
func (m Machine) issueFetch() (Machine, tea.Cmd) {
	m.seq++
	seq := m.seq
	id := m.currentID
	rt := m.runtime
	loader := m.loader

	ctx, cancel := context.WithCancel(context.Background())
	m.inflight = &fetch{seq: seq, id: id}
	m.issued[id] = seq
	m.cancels[seq] = cancel

	return m, func() tea.Msg {
		defer cancel()
		d, err := loader.Load(ctx, rt, id)
		return loadResultMsg{seq: seq, id: id, diagram: d, err: err}
	}
}

// enterLoaded moves to loaded. The dwell timer for this entry is armed only
// while auto-refresh is on.
func (m Machine) enterLoaded() (Machine, tea.Cmd) {
	m.state = StateLoaded
	m.dwellGen++
	if !m.autoRefresh {
		return m, nil
	}
	gen := m.dwellGen
	return m, tea.Tick(m.dwell, func(time.Time) tea.Msg {
		return dwellElapsedMsg{gen: gen}
	})
}

func (m Machine) applyResult(msg loadResultMsg) (Machine, tea.Cmd) {
	delete(m.cancels, msg.seq)
	latest := m.issued[msg.id] == msg.seq
	if latest {
		delete(m.issued, msg.id)
	}

	if m.inflight == nil || m.inflight.seq != msg.seq {
		// Superseded fetch: keep the data unless a newer fetch for the same id
		// was issued, but never touch what is displayed.
		if msg.err == nil && latest {
			d := msg.diagram
			d.LoadedAt = m.now()
			m.cache.Set(msg.id, d)
		}
		m.logger.Debug("reloader late result", "id", msg.id, "seq", msg.seq, "cached", msg.err == nil && latest)
		return m, nil
	}
	m.inflight = nil

	if msg.err == nil {
		d := msg.diagram
		d.LoadedAt = m.now()
		m.cache.Set(msg.id, d)
		m.diagram = &d
		m.lastUpdate = d.LoadedAt
		m.lastError = ""
		return m.enterLoaded()
	}

	reason := errorText(msg.err)
	if m.state == StateRefreshing {
		m.logger.Warn("reloader refresh failed", "id", msg.id, "err", reason)
		m.lastError = refreshErrorPrefix + reason
		return m.enterLoaded()
	}

	m.logger.Warn("reloader load failed", "id", msg.id, "err", reason)
	m.state = StateError
	m.diagram = nil
	m.lastError = reason
	return m, nil
}

func (m Machine) retry() (Machine, tea.Cmd) {
	if m.state != StateError {
		return m, nil
	}
	return m.startLoad()
}

func (m Machine) setRuntime(rt diagram.Runtime) (Machine, tea.Cmd) {
	m.runtime = rt
	if m.state == StateWaitingForRuntime && rt != nil {
		return m.startLoad()
	}
	return m, nil
}

func (m Machine) enableAutoRefresh() (Machine, tea.Cmd) {
	if m.state != StateLoaded {
		return m, nil
	}
	m.autoRefresh = true
	if m.runtime != nil && m.currentID != "" {
		return m.startRefresh()
	}
	// No runtime yet: rearm the dwell so the flag takes effect later.
	return m.enterLoaded()
}

func (m Machine) manualRefresh() (Machine, tea.Cmd) {
	if m.state != StateLoaded {
		return m, nil
	}
	if m.runtime == nil {
		return m.enterWaiting(), nil
	}
	return m.startRefresh()
}

func (m Machine) dwellElapsed(msg dwellElapsedMsg) (Machine, tea.Cmd) {
	if m.state != StateLoaded || msg.gen != m.dwellGen || !m.autoRefresh {
		return m, nil
	}
	return m.startRefresh()
}

// clearDiagram drops the in-flight fetch without cancelling it. Its result
// arrives as a late result and is still cached under the id it was issued for.
func (m Machine) clearDiagram() Machine {
	m.inflight = nil
	m.state = StateIdle
	m.currentID = ""
	m.diagram = nil
	m.lastError = ""
	m.lastUpdate = time.Time{}
	m.autoRefresh = false
	// Invalidate any armed dwell timer.
	m.dwellGen++
	return m
}

// Stop cancels every unresolved fetch, superseded ones included. It is meant
// for teardown; results that still arrive are handled as late results.
func (m Machine) Stop() {
	for seq, cancel := range m.cancels {
		cancel()
		delete(m.cancels, seq)
	}
}

// errorText converts a loader failure to the message stored in the machine.
func errorText(err error) string {
	if s := err.Error(); s != "" {
		return s
	}
	return "unknown error"
}
