package source

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/smileynet/sldview/internal/diagram"
)

func TestDirRuntime_Fetch(t *testing.T) {
	fsys := fstest.MapFS{
		"VL1.svg":  {Data: []byte("<svg id='VL1'/>")},
		"VL1.json": {Data: []byte(sampleMetadata)},
		"VL2.svg":  {Data: []byte("<svg id='VL2'/>")},
		"BAD.svg":  {Data: []byte("<svg/>")},
		"BAD.json": {Data: []byte("{")},
	}
	rt := NewDirRuntime(fsys)

	tests := []struct {
		name      string
		id        string
		wantSVG   string
		wantNodes int
		wantErr   error
		anyErr    bool
	}{
		{name: "svg and metadata", id: "VL1", wantSVG: "<svg id='VL1'/>", wantNodes: 1},
		{name: "svg only", id: "VL2", wantSVG: "<svg id='VL2'/>"},
		{name: "missing", id: "VL3", wantErr: diagram.ErrNotFound},
		{name: "bad metadata", id: "BAD", anyErr: true},
		{name: "path escape", id: "../VL1", anyErr: true},
		{name: "empty id", id: "", anyErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := rt.Fetch(context.Background(), tt.id)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			case tt.anyErr:
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			case err != nil:
				t.Fatalf("unexpected error: %v", err)
			}
			if d.ID != tt.id || d.SVG != tt.wantSVG {
				t.Errorf("diagram = %+v", d)
			}
			if len(d.Metadata.Nodes) != tt.wantNodes {
				t.Errorf("nodes = %d, want %d", len(d.Metadata.Nodes), tt.wantNodes)
			}
		})
	}
}

func TestDirRuntime_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rt := NewDirRuntime(fstest.MapFS{"VL1.svg": {Data: []byte("<svg/>")}})
	if _, err := rt.Fetch(ctx, "VL1"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestDirRuntime_IDs(t *testing.T) {
	rt := NewDirRuntime(fstest.MapFS{
		"VL2.svg":   {Data: []byte("<svg/>")},
		"VL1.svg":   {Data: []byte("<svg/>")},
		"VL1.json":  {Data: []byte("{}")},
		"notes.txt": {Data: []byte("x")},
	})
	ids, err := rt.IDs()
	if err != nil {
		t.Fatalf("IDs() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "VL1" || ids[1] != "VL2" {
		t.Errorf("IDs() = %v, want [VL1 VL2]", ids)
	}
}
