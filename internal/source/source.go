// Package source provides the runtimes that fetch diagrams from a backend:
// an HTTP client for the network service and a directory reader for exported
// or bundled diagrams. A Registry builds them by name from configuration.
package source

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smileynet/sldview/internal/diagram"
)

// Factory creates a runtime.
type Factory func() (diagram.Runtime, error)

// Registry maps source names to factory functions.
// It is not safe for concurrent use; registration should happen at startup.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a named source factory. Overwrites if name already exists.
// Panics if name is empty or f is nil (programmer error).
func (r *Registry) Register(name string, f Factory) {
	if name == "" {
		panic("source: Register called with empty name")
	}
	if f == nil {
		panic("source: Register called with nil factory")
	}
	r.factories[name] = f
}

// NewRuntime instantiates a runtime by source name.
func (r *Registry) NewRuntime(name string) (diagram.Runtime, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, &UnknownSourceError{
			Name:      name,
			Available: r.Available(),
		}
	}
	rt, err := f()
	if err != nil {
		return nil, fmt.Errorf("source factory %q: %w", name, err)
	}
	return rt, nil
}

// Available returns registered source names in sorted order.
func (r *Registry) Available() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownSourceError indicates a source name is not registered.
type UnknownSourceError struct {
	Name      string
	Available []string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown source %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}
