// Package reloader drives the fetch, cache and refresh lifecycle of a
// single-line diagram as an event-driven state machine.
//
// Machine is a pure transition function in the Bubble Tea style: Update takes
// one message, returns the next Machine and an optional command. Commands run
// the loader or wait out the dwell period and feed their result back as
// another message. Reloader wraps a Machine with a single event loop for
// callers that are not themselves Bubble Tea programs.
package reloader

import "github.com/smileynet/sldview/internal/diagram"

// State names a node of the reload state machine.
type State string

const (
	StateIdle              State = "idle"
	StateWaitingForRuntime State = "waitingForRuntime"
	StateLoading           State = "loading"
	StateLoaded            State = "loaded"
	StateRefreshing        State = "refreshing"
	StateError             State = "error"
)

// Event is a command accepted by the Machine.
// The set is closed: only the types in this file implement it.
type Event interface {
	isEvent()
}

// Verify at compile time that every command implements Event.
var (
	_ Event = LoadDiagram{}
	_ Event = ClearDiagram{}
	_ Event = ClearCache{}
	_ Event = Retry{}
	_ Event = SetRuntime{}
	_ Event = EnableAutoRefresh{}
	_ Event = DisableAutoRefresh{}
	_ Event = ManualRefresh{}
)

// LoadDiagram selects ID as the current diagram, serving it from cache when possible.
type LoadDiagram struct {
	ID string
}

// ClearDiagram drops the current selection and turns auto-refresh off.
// Cached diagrams are kept.
type ClearDiagram struct{}

// ClearCache empties the diagram cache. The displayed diagram is unaffected.
type ClearCache struct{}

// Retry re-issues the failed load for the current diagram.
type Retry struct{}

// SetRuntime injects or replaces the runtime used for loads.
type SetRuntime struct {
	Runtime diagram.Runtime
}

// EnableAutoRefresh turns on periodic reloads of the current diagram.
type EnableAutoRefresh struct{}

// DisableAutoRefresh turns off periodic reloads.
type DisableAutoRefresh struct{}

// ManualRefresh reloads the current diagram in the background.
type ManualRefresh struct{}

func (LoadDiagram) isEvent()        {}
func (ClearDiagram) isEvent()       {}
func (ClearCache) isEvent()         {}
func (Retry) isEvent()              {}
func (SetRuntime) isEvent()         {}
func (EnableAutoRefresh) isEvent()  {}
func (DisableAutoRefresh) isEvent() {}
func (ManualRefresh) isEvent()      {}

// loadResultMsg carries a loader outcome back into the machine.
// id and seq are captured when the fetch is issued, not when it resolves.
type loadResultMsg struct {
	seq     uint64
	id      string
	diagram diagram.Diagram
	err     error
}

// dwellElapsedMsg fires when the loaded state's dwell period ends.
// gen identifies the loaded-state entry that armed it.
type dwellElapsedMsg struct {
	gen uint64
}
