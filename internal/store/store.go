// Package store exports diagrams to the filesystem in the layout the dir
// source reads back: <id>.svg next to <id>.json metadata.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/smileynet/sldview/internal/diagram"
)

// FileStore persists diagrams under a base directory.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a FileStore that saves diagrams under baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

// Dir returns the base directory.
func (s *FileStore) Dir() string { return s.baseDir }

// Save writes the diagram's SVG and metadata, returning the paths written.
func (s *FileStore) Save(d diagram.Diagram) (svgPath, metaPath string, err error) {
	svgPath, metaPath, err = s.paths(d.ID)
	if err != nil {
		return "", "", err
	}

	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return "", "", fmt.Errorf("store: creating directory: %w", err)
	}

	data, err := json.MarshalIndent(d.Metadata, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("store: marshaling metadata: %w", err)
	}

	// Metadata first: a watcher reacting to the SVG then sees both files.
	if err := os.WriteFile(metaPath, data, 0o644); err != nil {
		return "", "", fmt.Errorf("store: writing %s: %w", metaPath, err)
	}
	if err := os.WriteFile(svgPath, []byte(d.SVG), 0o644); err != nil {
		return "", "", fmt.Errorf("store: writing %s: %w", svgPath, err)
	}
	return svgPath, metaPath, nil
}

// Load reads an exported diagram.
// Returns (diagram, true, nil) if found, (zero, false, nil) if not found.
func (s *FileStore) Load(id string) (diagram.Diagram, bool, error) {
	svgPath, metaPath, err := s.paths(id)
	if err != nil {
		return diagram.Diagram{}, false, err
	}

	svg, err := os.ReadFile(svgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return diagram.Diagram{}, false, nil
		}
		return diagram.Diagram{}, false, fmt.Errorf("store: reading %s: %w", svgPath, err)
	}

	data, err := os.ReadFile(metaPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return diagram.Diagram{}, false, fmt.Errorf("store: reading %s: %w", metaPath, err)
	}
	md, err := diagram.ParseMetadata(data)
	if err != nil {
		return diagram.Diagram{}, false, fmt.Errorf("store: %s: %w", metaPath, err)
	}
	return diagram.Diagram{ID: id, SVG: string(svg), Metadata: md}, true, nil
}

// Remove deletes both files for id. Missing files are not an error.
func (s *FileStore) Remove(id string) error {
	svgPath, metaPath, err := s.paths(id)
	if err != nil {
		return err
	}
	for _, p := range []string{svgPath, metaPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("store: removing %s: %w", p, err)
		}
	}
	return nil
}

// ErrInvalidID indicates a diagram ID is empty or contains path traversal components.
var ErrInvalidID = errors.New("store: invalid diagram ID")

// paths returns the filesystem paths for a diagram's files.
// It rejects IDs that are empty, dot-segments, or contain path separators.
func (s *FileStore) paths(id string) (svgPath, metaPath string, err error) {
	if id == "" || id == "." || id == ".." || id != filepath.Base(id) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	base := filepath.Join(s.baseDir, id)
	return base + ".svg", base + ".json", nil
}
