package reloader

import (
	"context"
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/smileynet/sldview/internal/diagram"
)

// ErrStopped is returned by Reloader commands after Run has returned.
var ErrStopped = errors.New("reloader: stopped")

// envelope carries a message into the event loop. ack, when set, is closed
// once the message has been applied.
type envelope struct {
	msg tea.Msg
	ack chan struct{}
}

// Reloader owns a Machine and serializes every event through one goroutine.
// Commands block until their transition has been applied, so a Snapshot read
// right after a command reflects it. Run must be running for commands to return.
type Reloader struct {
	session string
	machine Machine // owned by the Run goroutine

	events  chan envelope
	done    chan struct{}
	updates chan Snapshot

	mu      sync.RWMutex
	snap    Snapshot
	changed chan struct{} // closed and replaced on every publish
}

// New creates a Reloader whose machine loads through loader.
func New(loader diagram.Loader, opts ...Option) *Reloader {
	m := NewMachine(loader, opts...)
	session := uuid.NewString()
	m.logger = m.logger.With("session", session)

	return &Reloader{
		session: session,
		machine: m,
		events:  make(chan envelope, 16),
		done:    make(chan struct{}),
		updates: make(chan Snapshot, 1),
		snap:    m.Snapshot(),
		changed: make(chan struct{}),
	}
}

// Session returns the id that tags this reloader's log records.
func (r *Reloader) Session() string {
	return r.session
}

// Run processes events until ctx is done. On return the in-flight fetch is
// cancelled and further commands fail with ErrStopped.
func (r *Reloader) Run(ctx context.Context) error {
	defer close(r.done)
	defer r.machine.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-r.events:
			var cmd tea.Cmd
			r.machine, cmd = r.machine.Update(env.msg)
			r.publish(r.machine.Snapshot())
			if env.ack != nil {
				close(env.ack)
			}
			if cmd != nil {
				go r.exec(ctx, cmd)
			}
		}
	}
}

// exec runs cmd off the loop and feeds its message back in.
func (r *Reloader) exec(ctx context.Context, cmd tea.Cmd) {
	msg := cmd()
	switch msg := msg.(type) {
	case nil:
		return
	case tea.BatchMsg:
		for _, c := range msg {
			if c != nil {
				go r.exec(ctx, c)
			}
		}
		return
	}
	select {
	case r.events <- envelope{msg: msg}:
	case <-ctx.Done():
	case <-r.done:
	}
}

func (r *Reloader) publish(s Snapshot) {
	r.mu.Lock()
	r.snap = s
	close(r.changed)
	r.changed = make(chan struct{})
	r.mu.Unlock()

	// Latest wins: drop an unread snapshot rather than block the loop.
	select {
	case <-r.updates:
	default:
	}
	r.updates <- s
}

// Send applies ev and waits for the transition to complete.
func (r *Reloader) Send(ev Event) error {
	env := envelope{msg: ev, ack: make(chan struct{})}
	select {
	case r.events <- env:
	case <-r.done:
		return ErrStopped
	}
	select {
	case <-env.ack:
		return nil
	case <-r.done:
		return ErrStopped
	}
}

// Snapshot returns the projection after the most recent transition.
func (r *Reloader) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// Updates delivers snapshots as transitions happen. Only the newest unread
// snapshot is kept; slow readers skip intermediate ones.
func (r *Reloader) Updates() <-chan Snapshot {
	return r.updates
}

// Await blocks until the machine settles (idle, loaded or error) and returns
// that snapshot. It waits silently while a runtime is missing.
func (r *Reloader) Await(ctx context.Context) (Snapshot, error) {
	for {
		r.mu.RLock()
		snap, changed := r.snap, r.changed
		r.mu.RUnlock()

		if snap.Settled() {
			return snap, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-r.done:
			return snap, ErrStopped
		}
	}
}

// LoadDiagram selects id, from cache when possible.
func (r *Reloader) LoadDiagram(id string) error { return r.Send(LoadDiagram{ID: id}) }

// ClearDiagram drops the current selection; cached diagrams stay.
func (r *Reloader) ClearDiagram() error { return r.Send(ClearDiagram{}) }

// ClearCache empties the cache.
func (r *Reloader) ClearCache() error { return r.Send(ClearCache{}) }

// Retry re-issues a failed load.
func (r *Reloader) Retry() error { return r.Send(Retry{}) }

// SetRuntime injects or replaces the runtime.
func (r *Reloader) SetRuntime(rt diagram.Runtime) error { return r.Send(SetRuntime{Runtime: rt}) }

// EnableAutoRefresh turns on periodic reloads of a loaded diagram.
func (r *Reloader) EnableAutoRefresh() error { return r.Send(EnableAutoRefresh{}) }

// DisableAutoRefresh turns off periodic reloads.
func (r *Reloader) DisableAutoRefresh() error { return r.Send(DisableAutoRefresh{}) }

// ManualRefresh reloads a loaded diagram in the background.
func (r *Reloader) ManualRefresh() error { return r.Send(ManualRefresh{}) }
