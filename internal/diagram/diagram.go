// Package diagram defines single-line diagram payloads, the runtime and loader
// seams used to fetch them, and the cache that memoizes successful loads.
package diagram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Diagram is a rendered single-line diagram with its structural metadata.
// Values are treated as immutable once loaded; they are replaced, never edited.
type Diagram struct {
	ID       string   `json:"id"`
	SVG      string   `json:"svg"`
	Metadata Metadata `json:"metadata"`

	// LoadedAt is when the diagram was fetched. Set by the reloader, not the backend.
	LoadedAt time.Time `json:"-"`
}

// Metadata describes the graph behind a diagram's SVG.
type Metadata struct {
	Nodes       []Node       `json:"nodes"`
	Wires       []Wire       `json:"wires"`
	FeederInfos []FeederInfo `json:"feederInfos"`
}

// Node is a drawn element of the diagram (busbar, switch, feeder end...).
type Node struct {
	ID            string `json:"id"`
	ComponentType string `json:"componentType,omitempty"`
	EquipmentID   string `json:"equipmentId,omitempty"`
	Open          bool   `json:"open"`
	VID           string `json:"vid"`
	NextVID       string `json:"nextVId,omitempty"`
}

// Wire connects two nodes.
type Wire struct {
	ID      string `json:"id"`
	NodeID1 string `json:"nodeId1"`
	NodeID2 string `json:"nodeId2"`
}

// FeederInfo labels a feeder with its equipment.
type FeederInfo struct {
	ID            string `json:"id"`
	ComponentType string `json:"componentType"`
	EquipmentID   string `json:"equipmentId"`
	Side          string `json:"side,omitempty"`
}

// switchTypes are the component types that can be opened or closed.
var switchTypes = map[string]bool{
	"BREAKER":           true,
	"DISCONNECTOR":      true,
	"LOAD_BREAK_SWITCH": true,
}

// Switches returns the nodes whose component type is a switching device.
func (m Metadata) Switches() []Node {
	var out []Node
	for _, n := range m.Nodes {
		if switchTypes[n.ComponentType] {
			out = append(out, n)
		}
	}
	return out
}

// OpenSwitches counts switching devices currently drawn open.
func (m Metadata) OpenSwitches() int {
	count := 0
	for _, n := range m.Switches() {
		if n.Open {
			count++
		}
	}
	return count
}

// ParseMetadata decodes diagram metadata JSON. Empty input yields zero Metadata.
// Unknown fields are ignored: backends emit far more layout detail than is modeled here.
func ParseMetadata(data []byte) (Metadata, error) {
	var md Metadata
	if len(bytes.TrimSpace(data)) == 0 {
		return md, nil
	}
	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}, fmt.Errorf("diagram: parsing metadata: %w", err)
	}
	return md, nil
}

// Runtime is the execution context a Loader needs to reach a diagram backend,
// typically a connected session. It is injected from outside and may be
// replaced on reconnect.
type Runtime interface {
	Name() string
	Fetch(ctx context.Context, id string) (Diagram, error)
}

// Loader performs one fallible diagram load for id using rt.
type Loader interface {
	Load(ctx context.Context, rt Runtime, id string) (Diagram, error)
}

// LoaderFunc adapts an ordinary function to the Loader interface.
type LoaderFunc func(ctx context.Context, rt Runtime, id string) (Diagram, error)

// Load calls f(ctx, rt, id).
func (f LoaderFunc) Load(ctx context.Context, rt Runtime, id string) (Diagram, error) {
	return f(ctx, rt, id)
}

var (
	// ErrNotFound indicates the backend has no diagram for the requested id.
	ErrNotFound = errors.New("diagram: not found")
	// ErrNoRuntime indicates a load was attempted without a runtime.
	ErrNoRuntime = errors.New("diagram: no runtime")
	// ErrEmptyDiagram indicates the backend returned a diagram without SVG content.
	ErrEmptyDiagram = errors.New("diagram: empty svg")
)

// LoadError wraps a failure to load a specific diagram through a runtime.
type LoadError struct {
	ID      string
	Runtime string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s via %s: %s", e.ID, e.Runtime, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Verify RuntimeLoader satisfies Loader at compile time.
var _ Loader = RuntimeLoader{}

// RuntimeLoader loads diagrams by delegating to the runtime's Fetch.
// A positive Timeout bounds each call.
type RuntimeLoader struct {
	Timeout time.Duration
}

// Load fetches id through rt and checks that the result carries SVG content.
func (l RuntimeLoader) Load(ctx context.Context, rt Runtime, id string) (Diagram, error) {
	if rt == nil {
		return Diagram{}, &LoadError{ID: id, Runtime: "none", Err: ErrNoRuntime}
	}
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	d, err := rt.Fetch(ctx, id)
	if err != nil {
		return Diagram{}, &LoadError{ID: id, Runtime: rt.Name(), Err: err}
	}
	if d.SVG == "" {
		return Diagram{}, &LoadError{ID: id, Runtime: rt.Name(), Err: ErrEmptyDiagram}
	}
	if d.ID == "" {
		d.ID = id
	}
	return d, nil
}
