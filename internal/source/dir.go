package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/smileynet/sldview/internal/diagram"
)

// Verify DirRuntime satisfies diagram.Runtime at compile time.
var _ diagram.Runtime = (*DirRuntime)(nil)

// DirRuntime reads diagrams stored as <id>.svg with optional <id>.json
// metadata, the layout written by store.FileStore.
type DirRuntime struct {
	fsys fs.FS
}

// NewDirRuntime creates a DirRuntime over fsys.
func NewDirRuntime(fsys fs.FS) *DirRuntime {
	return &DirRuntime{fsys: fsys}
}

// Name returns "dir".
func (r *DirRuntime) Name() string { return "dir" }

// Fetch reads the diagram for id. A missing SVG file is diagram.ErrNotFound;
// a missing metadata file yields empty metadata.
func (r *DirRuntime) Fetch(ctx context.Context, id string) (diagram.Diagram, error) {
	if err := ctx.Err(); err != nil {
		return diagram.Diagram{}, err
	}
	if !validID(id) {
		return diagram.Diagram{}, fmt.Errorf("source: invalid diagram id %q", id)
	}

	svg, err := fs.ReadFile(r.fsys, id+".svg")
	if errors.Is(err, fs.ErrNotExist) {
		return diagram.Diagram{}, fmt.Errorf("source: %s.svg: %w", id, diagram.ErrNotFound)
	}
	if err != nil {
		return diagram.Diagram{}, fmt.Errorf("source: reading %s.svg: %w", id, err)
	}

	mdBytes, err := fs.ReadFile(r.fsys, id+".json")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return diagram.Diagram{}, fmt.Errorf("source: reading %s.json: %w", id, err)
	}
	md, err := diagram.ParseMetadata(mdBytes)
	if err != nil {
		return diagram.Diagram{}, err
	}
	return diagram.Diagram{ID: id, SVG: string(svg), Metadata: md}, nil
}

// IDs lists the diagram ids available in the directory, sorted.
func (r *DirRuntime) IDs() ([]string, error) {
	matches, err := fs.Glob(r.fsys, "*.svg")
	if err != nil {
		return nil, fmt.Errorf("source: listing diagrams: %w", err)
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, strings.TrimSuffix(m, ".svg"))
	}
	return ids, nil
}

// validID rejects ids that would escape the directory.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}
