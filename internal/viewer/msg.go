// Package viewer implements a two-pane TUI for browsing single-line diagrams.
// The left pane shows reload status and the cached ids; the right pane shows
// the loaded diagram's metadata. Separate from internal/display which handles
// the plain watch output.
package viewer

// Mode represents the current viewer input mode.
type Mode int

const (
	ModeBrowse Mode = iota // Keys drive the reloader.
	ModeInput              // Typing a diagram id.
)

// Focus represents which pane has keyboard focus.
type Focus int

const (
	PaneLeft  Focus = iota // Status and cache list.
	PaneRight              // Diagram detail viewport.
)
