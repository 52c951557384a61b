// Package display renders a stream of reloader snapshots, either as a compact
// terminal UI or as timestamped text lines when output is not a terminal.
package display

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/smileynet/sldview/internal/reloader"
)

// Event is sent to a Display via the update channel.
// Implemented by SnapshotMsg, NoticeMsg, DoneMsg and ErrorMsg.
type Event interface {
	isDisplayEvent()
}

// Verify at compile time that message types implement Event.
var (
	_ Event = SnapshotMsg{}
	_ Event = NoticeMsg{}
	_ Event = DoneMsg{}
	_ Event = ErrorMsg{}
)

// SnapshotMsg carries the reloader state after a transition.
type SnapshotMsg struct {
	Snapshot reloader.Snapshot
}

// NoticeMsg is a one-line message shown alongside snapshots, such as a file change.
type NoticeMsg struct {
	Text string
}

// DoneMsg signals that the producer finished normally.
type DoneMsg struct{}

// ErrorMsg signals that the producer failed.
type ErrorMsg struct {
	Err error
}

func (SnapshotMsg) isDisplayEvent() {}
func (NoticeMsg) isDisplayEvent()   {}
func (DoneMsg) isDisplayEvent()     {}
func (ErrorMsg) isDisplayEvent()    {}

// Display renders snapshot updates.
type Display interface {
	Run(ctx context.Context, events <-chan Event) error
}

// Options configures display creation.
type Options struct {
	Writer     io.Writer          // Output destination (default: os.Stdout).
	ForcePlain bool               // Force plain text even if TTY.
	Title      string             // Heading for the TUI, usually the diagram id.
	CancelFunc context.CancelFunc // Called by the TUI on quit (ignored by PlainDisplay).
}

// New returns a TUI display when the writer is a TTY, or a plain text
// display otherwise. ForcePlain overrides TTY detection.
func New(opts Options) Display {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}

	if opts.ForcePlain || !isTTY(opts.Writer) {
		return &PlainDisplay{w: opts.Writer, now: time.Now}
	}

	return &TUIDisplay{title: opts.Title, w: opts.Writer, cancelFunc: opts.CancelFunc}
}

// isTTY reports whether w is connected to a terminal.
func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Bridge manages the channel between a snapshot producer and a Display consumer.
type Bridge struct {
	ch chan Event
}

// NewBridge creates a Bridge with a buffered event channel.
func NewBridge() *Bridge {
	return &Bridge{ch: make(chan Event, 16)}
}

// Events returns the read-only channel for Display.Run to consume.
func (b *Bridge) Events() <-chan Event {
	return b.ch
}

// Send delivers a snapshot to the display.
// It blocks if the channel buffer (16) is full.
func (b *Bridge) Send(s reloader.Snapshot) {
	b.ch <- SnapshotMsg{Snapshot: s}
}

// Notice delivers a one-line message to the display.
func (b *Bridge) Notice(format string, args ...any) {
	b.ch <- NoticeMsg{Text: fmt.Sprintf(format, args...)}
}

// Done signals normal completion and closes the channel.
func (b *Bridge) Done() {
	b.ch <- DoneMsg{}
	close(b.ch)
}

// Error signals failure and closes the channel.
func (b *Bridge) Error(err error) {
	b.ch <- ErrorMsg{Err: err}
	close(b.ch)
}

// Summary renders a snapshot as a single line: state, id, metadata counts
// and the error, if any.
func Summary(s reloader.Snapshot) string {
	var b strings.Builder
	b.WriteString(string(s.State))
	if s.CurrentID != "" {
		b.WriteString(" " + s.CurrentID)
	}
	if s.Diagram != nil {
		md := s.Diagram.Metadata
		fmt.Fprintf(&b, " nodes=%d feeders=%d open=%d", len(md.Nodes), len(md.FeederInfos), md.OpenSwitches())
	}
	if s.AutoRefreshEnabled {
		b.WriteString(" [auto]")
	}
	if s.IsStale() {
		b.WriteString(" [stale]")
	}
	if s.Err != "" {
		b.WriteString(": " + s.Err)
	}
	return b.String()
}

// PlainDisplay renders snapshots as timestamped text lines.
// Consecutive identical lines are printed once.
type PlainDisplay struct {
	w    io.Writer
	now  func() time.Time
	last string
}

// Run loops over events, printing each change as a text line.
// Returns the producer's error if it failed, or context error if cancelled.
func (d *PlainDisplay) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch msg := ev.(type) {
			case SnapshotMsg:
				d.render(Summary(msg.Snapshot))
			case NoticeMsg:
				d.render(msg.Text)
			case DoneMsg:
				return nil
			case ErrorMsg:
				return msg.Err
			}
		}
	}
}

func (d *PlainDisplay) render(line string) {
	if line == d.last {
		return
	}
	d.last = line
	_, _ = fmt.Fprintf(d.w, "[%s] %s\n", d.now().Format("15:04:05"), line)
}

// TUIDisplay renders snapshots using a Bubble Tea terminal UI.
// Falls back to PlainDisplay if the TUI program fails to start.
type TUIDisplay struct {
	title      string
	w          io.Writer
	cancelFunc context.CancelFunc
}

// Run starts the Bubble Tea program and feeds events from the channel.
// If the TUI fails to initialize, it falls back to plain text output.
func (d *TUIDisplay) Run(ctx context.Context, events <-chan Event) error {
	var opts []ModelOption
	if d.cancelFunc != nil {
		opts = append(opts, WithCancelFunc(d.cancelFunc))
	}
	model := NewModel(d.title, opts...)
	p := tea.NewProgram(model, tea.WithOutput(d.w), tea.WithContext(ctx))

	// Forward events through an intermediate channel so we can stop
	// the goroutine cleanly on TUI failure before falling back.
	fwd := make(chan Event, 16)
	stop := make(chan struct{})

	go func() {
		defer close(fwd)
		for ev := range events {
			select {
			case fwd <- ev:
			case <-stop:
				return
			}
		}
	}()

	go func() {
		for ev := range fwd {
			p.Send(ev)
		}
	}()

	final, err := p.Run()
	if err != nil {
		close(stop)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Fall back to plain text for remaining events from the original channel.
		plain := &PlainDisplay{w: d.w, now: time.Now}
		return plain.Run(ctx, events)
	}
	if m, ok := final.(Model); ok {
		return m.err
	}
	return nil
}
