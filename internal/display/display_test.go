package display

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/smileynet/sldview/internal/diagram"
	"github.com/smileynet/sldview/internal/reloader"
)

func loadedSnapshot() reloader.Snapshot {
	return reloader.Snapshot{
		State:     reloader.StateLoaded,
		CurrentID: "VL1",
		Diagram: &diagram.Diagram{
			ID:  "VL1",
			SVG: "<svg/>",
			Metadata: diagram.Metadata{
				Nodes: []diagram.Node{
					{ID: "b1", ComponentType: "BREAKER", Open: true},
					{ID: "d1", ComponentType: "DISCONNECTOR"},
					{ID: "bb", ComponentType: "BUSBAR_SECTION"},
				},
				FeederInfos: []diagram.FeederInfo{{ID: "f1"}},
			},
		},
	}
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
}

// --- isTTY ---

func TestIsTTY_NonFileWriter(t *testing.T) {
	var buf bytes.Buffer
	if isTTY(&buf) {
		t.Error("non-*os.File writer should not be a TTY")
	}
}

func TestIsTTY_RegularFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "test")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	if isTTY(f) {
		t.Error("regular file should not be a TTY")
	}
}

// --- Summary ---

func TestSummary(t *testing.T) {
	stale := loadedSnapshot()
	stale.Err = "refresh failed: timeout"
	auto := loadedSnapshot()
	auto.AutoRefreshEnabled = true

	tests := []struct {
		name string
		snap reloader.Snapshot
		want string
	}{
		{name: "idle", snap: reloader.Snapshot{State: reloader.StateIdle}, want: "idle"},
		{name: "loading", snap: reloader.Snapshot{State: reloader.StateLoading, CurrentID: "VL2"}, want: "loading VL2"},
		{name: "loaded", snap: loadedSnapshot(), want: "loaded VL1 nodes=3 feeders=1 open=1"},
		{name: "auto-refresh", snap: auto, want: "loaded VL1 nodes=3 feeders=1 open=1 [auto]"},
		{name: "stale", snap: stale, want: "loaded VL1 nodes=3 feeders=1 open=1 [stale]: refresh failed: timeout"},
		{name: "error", snap: reloader.Snapshot{State: reloader.StateError, CurrentID: "VL9", Err: "not found"}, want: "error VL9: not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summary(tt.snap); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}

// --- Bridge ---

func TestBridge_MultipleEvents(t *testing.T) {
	b := NewBridge()

	go func() {
		b.Send(reloader.Snapshot{State: reloader.StateLoading})
		b.Notice("%s changed", "VL1.svg")
		b.Done()
	}()

	var events []Event
	for ev := range b.Events() {
		events = append(events, ev)
	}

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if n, ok := events[1].(NoticeMsg); !ok || n.Text != "VL1.svg changed" {
		t.Errorf("events[1] = %#v, want NoticeMsg", events[1])
	}
	if _, ok := events[2].(DoneMsg); !ok {
		t.Errorf("last event should be DoneMsg, got %T", events[2])
	}
}

func TestBridge_ErrorSendsErrorAndCloses(t *testing.T) {
	b := NewBridge()

	go b.Error(errors.New("watch exploded"))

	got := <-b.Events()
	em, ok := got.(ErrorMsg)
	if !ok || em.Err.Error() != "watch exploded" {
		t.Fatalf("got %#v, want ErrorMsg", got)
	}
	if _, open := <-b.Events(); open {
		t.Error("channel should be closed after Error")
	}
}

// --- PlainDisplay ---

func TestPlainDisplay_RendersSnapshots(t *testing.T) {
	var buf bytes.Buffer
	d := &PlainDisplay{w: &buf, now: fixedClock}

	ch := make(chan Event, 5)
	ch <- SnapshotMsg{Snapshot: reloader.Snapshot{State: reloader.StateLoading, CurrentID: "VL1"}}
	ch <- SnapshotMsg{Snapshot: loadedSnapshot()}
	ch <- SnapshotMsg{Snapshot: loadedSnapshot()}
	ch <- NoticeMsg{Text: "VL1.svg changed"}
	ch <- DoneMsg{}
	close(ch)

	if err := d.Run(context.Background(), ch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "[09:30:00] loading VL1\n" +
		"[09:30:00] loaded VL1 nodes=3 feeders=1 open=1\n" +
		"[09:30:00] VL1.svg changed\n"
	if buf.String() != want {
		t.Errorf("output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestPlainDisplay_HandlesContextCancellation(t *testing.T) {
	var buf bytes.Buffer
	d := &PlainDisplay{w: &buf, now: fixedClock}
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan Event) // Unbuffered, will block.

	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx, ch)
	}()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestPlainDisplay_ReturnsProducerError(t *testing.T) {
	var buf bytes.Buffer
	d := &PlainDisplay{w: &buf, now: fixedClock}

	ch := make(chan Event, 1)
	ch <- ErrorMsg{Err: errors.New("source unreachable")}
	close(ch)

	err := d.Run(context.Background(), ch)
	if err == nil || !strings.Contains(err.Error(), "source unreachable") {
		t.Errorf("expected producer error, got %v", err)
	}
}

func TestPlainDisplay_ClosedChannelReturnsNil(t *testing.T) {
	d := &PlainDisplay{w: &bytes.Buffer{}, now: fixedClock}
	ch := make(chan Event)
	close(ch)
	if err := d.Run(context.Background(), ch); err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
}

// --- New factory ---

func TestNew_ForcePlainReturnsPlainDisplay(t *testing.T) {
	d := New(Options{Writer: os.Stdout, ForcePlain: true})

	if _, ok := d.(*PlainDisplay); !ok {
		t.Errorf("ForcePlain should return *PlainDisplay, got %T", d)
	}
}

func TestNew_NonTTYReturnsPlainDisplay(t *testing.T) {
	var buf bytes.Buffer
	d := New(Options{Writer: &buf, Title: "VL1"})

	if _, ok := d.(*PlainDisplay); !ok {
		t.Errorf("non-TTY writer should return *PlainDisplay, got %T", d)
	}
}

func TestNew_DefaultsWriterToStdout(t *testing.T) {
	d := New(Options{ForcePlain: true})

	pd, ok := d.(*PlainDisplay)
	if !ok {
		t.Fatalf("expected *PlainDisplay, got %T", d)
	}
	if pd.w != os.Stdout {
		t.Error("default Writer should be os.Stdout")
	}
}
