// Package sldview provides embedded sample diagrams and an overlay filesystem
// that checks local disk first, falling back to embedded.
package sldview

import (
	"embed"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

//go:embed samples/*.svg samples/*.json
var rawSamples embed.FS

// Samples is the embedded diagram filesystem with the "samples/" prefix stripped.
// It holds <id>.svg and <id>.json pairs readable by the dir source.
var Samples = mustSub(rawSamples, "samples")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// OverlayFS returns a filesystem that checks localDir on disk first,
// falling back to the embedded filesystem for files not found locally.
// Directory listings merge both, local entries winning on name clashes.
func OverlayFS(localDir string, embedded fs.FS) fs.FS {
	return overlayFS{localDir: localDir, embedded: embedded}
}

type overlayFS struct {
	localDir string
	embedded fs.FS
}

// Verify overlayFS supports directory listing at compile time.
var _ fs.ReadDirFS = overlayFS{}

func (o overlayFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if o.localDir != "" {
		f, err := os.Open(filepath.Join(o.localDir, filepath.FromSlash(name)))
		if err == nil {
			return f, nil
		}
	}
	return o.embedded.Open(name)
}

func (o overlayFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}

	merged := make(map[string]fs.DirEntry)
	embedded, embErr := fs.ReadDir(o.embedded, name)
	for _, e := range embedded {
		merged[e.Name()] = e
	}

	var localErr error = fs.ErrNotExist
	if o.localDir != "" {
		var local []fs.DirEntry
		local, localErr = os.ReadDir(filepath.Join(o.localDir, filepath.FromSlash(name)))
		for _, e := range local {
			merged[e.Name()] = e
		}
	}

	if embErr != nil && localErr != nil {
		if errors.Is(embErr, fs.ErrNotExist) {
			return nil, localErr
		}
		return nil, embErr
	}

	out := make([]fs.DirEntry, 0, len(merged))
	for _, e := range merged {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}
